package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"solana-sniper/internal/logging"
)

// WebhookConfig configures the webhook sink.
type WebhookConfig struct {
	URL           string
	QueueSize     int
	RatePerSecond float64
	MaxAttempts   int
	Timeout       time.Duration
	RetryBase     time.Duration
}

// webhookPayload is the JSON body posted per event. Text is compatible with
// Slack and Discord incoming webhooks.
type webhookPayload struct {
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Event Event  `json:"event"`
}

// WebhookSink posts events to an HTTP endpoint from a background goroutine.
// When the queue is full, events are dropped and counted.
type WebhookSink struct {
	cfg     WebhookConfig
	client  *resty.Client
	limiter *rate.Limiter
	queue   chan Event
	log     *logrus.Entry

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

var _ Sink = (*WebhookSink)(nil)

// NewWebhookSink creates a webhook sink. Call Run to start delivery.
func NewWebhookSink(cfg WebhookConfig, log *logrus.Entry) *WebhookSink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if log == nil {
		log = logging.Component(nil, "webhook")
	}
	return &WebhookSink{
		cfg:     cfg,
		client:  resty.New().SetTimeout(cfg.Timeout).SetHeader("Content-Type", "application/json"),
		limiter: rate.NewLimiter(limit, 1),
		queue:   make(chan Event, cfg.QueueSize),
		log:     log,
	}
}

// Notify enqueues the event or drops it when the queue is full.
func (s *WebhookSink) Notify(e Event) {
	select {
	case s.queue <- e:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.log.WithField("dropped", s.dropped.Load()).Warn("webhook queue full, dropping events")
		}
	}
}

// Run delivers queued events until ctx is cancelled.
func (s *WebhookSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if err := s.deliver(ctx, e); err != nil {
				s.failed.Add(1)
				s.log.WithError(err).WithField("event", string(e.Kind())).Warn("webhook delivery failed")
				continue
			}
			s.sent.Add(1)
		}
	}
}

func (s *WebhookSink) deliver(ctx context.Context, e Event) error {
	body := webhookPayload{Kind: e.Kind(), Text: e.Message(), Event: e}
	if rej, ok := e.(CandidateRejected); ok && rej.Checklist != "" {
		body.Text += "\n" + rej.Checklist
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBase
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		resp, err := s.client.R().SetContext(ctx).SetBody(body).Post(s.cfg.URL)
		if err != nil {
			return err
		}
		code := resp.StatusCode()
		if code == http.StatusTooManyRequests || code >= 500 {
			return fmt.Errorf("webhook status %d", code)
		}
		if code >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook status %d: %s", code, resp.String()))
		}
		return nil
	}, policy)
}

// Sent returns the number of delivered events.
func (s *WebhookSink) Sent() int64 { return s.sent.Load() }

// Dropped returns the number of events dropped because the queue was full.
func (s *WebhookSink) Dropped() int64 { return s.dropped.Load() }

// Failed returns the number of events that exhausted their attempts.
func (s *WebhookSink) Failed() int64 { return s.failed.Load() }
