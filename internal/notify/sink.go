package notify

import (
	"sync"

	"github.com/sirupsen/logrus"

	"solana-sniper/internal/logging"
)

// Sink receives events. Notify must return without blocking on I/O.
type Sink interface {
	Notify(e Event)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(e Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(e)
		}
	}
}

// LogSink writes events to a logrus entry.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a LogSink.
func NewLogSink(log *logrus.Entry) *LogSink {
	if log == nil {
		log = logging.Component(nil, "notify")
	}
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(e Event) {
	entry := s.log.WithField("event", string(e.Kind()))
	switch ev := e.(type) {
	case ExecutionFailed:
		entry = entry.WithField("position_id", ev.PositionID)
		if ev.Persistent {
			entry.Error(ev.Message())
			return
		}
		entry.Warn(ev.Message())
	case AnalysisDegraded, CapacityReached:
		entry.Warn(e.Message())
	case PriceUnavailable:
		entry.WithField("position_id", ev.PositionID).Error(ev.Message())
	case PositionOpened:
		entry.WithField("position_id", ev.PositionID).Info(ev.Message())
	case RungExecuted:
		entry.WithField("position_id", ev.PositionID).Info(ev.Message())
	case PositionClosed:
		entry.WithField("position_id", ev.PositionID).Info(ev.Message())
	case CandidateRejected:
		entry.Debug(ev.Message())
	default:
		entry.Info(e.Message())
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Sink.
func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of one kind.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}
