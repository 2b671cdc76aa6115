package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrStreamClosed is returned by calls on a closed LogStream.
var ErrStreamClosed = errors.New("log stream closed")

// WSClientConfig configures a LogStream.
type WSClientConfig struct {
	ReconnectDelay    time.Duration // first reconnect delay
	MaxReconnectDelay time.Duration // reconnect backoff ceiling
	PingInterval      time.Duration
	ReadTimeout       time.Duration // read deadline; also detects dead peers
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration // wait for a subscription confirmation
	BufferSize        int           // per-subscription notification buffer
	Commitment        string
}

// DefaultWSConfig returns the stream defaults.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    500 * time.Millisecond,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  15 * time.Second,
		BufferSize:        4096,
		Commitment:        DefaultCommitment,
	}
}

func (cfg WSClientConfig) withDefaults() WSClientConfig {
	def := DefaultWSConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	return cfg
}

// LogStream implements WSClient over gorilla/websocket. A dropped connection
// is redialled with exponential backoff and every live subscription is
// re-issued; subscriber channels survive reconnects.
//
// Notifications are delivered without blocking: when a subscriber's buffer
// is full the notification is dropped and counted, so one slow consumer
// cannot stall the socket for the others.
type LogStream struct {
	endpoint string
	config   WSClientConfig
	log      *logrus.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	subsMu  sync.RWMutex
	subs    map[int64]*subscription // by server subscription id
	pending map[uint64]*pendingSub  // by request id

	requestID atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	redial    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

type subscription struct {
	ch     chan LogNotification
	filter LogsFilter
}

type pendingSub struct {
	sub     *subscription
	confirm chan int64
}

var _ WSClient = (*LogStream)(nil)

// NewWSClient dials endpoint and starts the read and keepalive loops.
// A nil config uses DefaultWSConfig; a nil log discards diagnostics.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, log *logrus.Entry) (*LogStream, error) {
	var cfg WSClientConfig
	if config != nil {
		cfg = *config
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	s := &LogStream{
		endpoint: endpoint,
		config:   cfg.withDefaults(),
		log:      log,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]*pendingSub),
		redial:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = conn

	s.wg.Add(3)
	go s.readLoop()
	go s.reconnectLoop()
	go s.pingLoop()
	return s, nil
}

// Dropped returns how many notifications were discarded on full buffers.
func (s *LogStream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *LogStream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", s.endpoint, err)
	}
	return conn, nil
}

// SubscribeLogs subscribes to program logs matching filter.
func (s *LogStream) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	sub := &subscription{
		ch:     make(chan LogNotification, s.config.BufferSize),
		filter: filter,
	}
	if _, err := s.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return sub.ch, nil
}

// subscribe sends logsSubscribe for sub. The read loop registers sub under
// the confirmed id before reading the next frame, so notifications that
// follow the confirmation are never missed.
func (s *LogStream) subscribe(ctx context.Context, sub *subscription) (int64, error) {
	if s.closed.Load() {
		return 0, ErrStreamClosed
	}

	var selector any = "all"
	if len(sub.filter.Mentions) > 0 {
		selector = map[string]any{"mentions": sub.filter.Mentions}
	}
	reqID := s.requestID.Add(1)
	p := &pendingSub{sub: sub, confirm: make(chan int64, 1)}

	s.subsMu.Lock()
	s.pending[reqID] = p
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.pending, reqID)
		s.subsMu.Unlock()
	}()

	err := s.write(wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params:  []any{selector, map[string]string{"commitment": s.config.Commitment}},
	})
	if err != nil {
		return 0, fmt.Errorf("logsSubscribe: %w", err)
	}

	timer := time.NewTimer(s.config.SubscribeTimeout)
	defer timer.Stop()
	select {
	case id := <-p.confirm:
		return id, nil
	case <-timer.C:
		return 0, fmt.Errorf("logsSubscribe: no confirmation after %s", s.config.SubscribeTimeout)
	case <-s.done:
		return 0, ErrStreamClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *LogStream) write(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

// Close stops the loops and closes every subscriber channel. Safe to call
// more than once.
func (s *LogStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.subsMu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.subsMu.Unlock()
	return nil
}

// readLoop reads frames until the stream closes. On a read error it asks
// reconnectLoop for a new connection and waits for it.
func (s *LogStream) readLoop() {
	defer s.wg.Done()

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			if !s.sleep(50 * time.Millisecond) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.log.WithError(err).Warn("websocket read failed, reconnecting")
			s.dropConn(conn)
			select {
			case s.redial <- struct{}{}:
			default:
			}
			continue
		}
		s.dispatch(message)
	}
}

// dropConn forgets conn if it is still the current connection.
func (s *LogStream) dropConn(conn *websocket.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// reconnectLoop redials with exponential backoff whenever readLoop loses
// the connection, then re-issues the live subscriptions.
func (s *LogStream) reconnectLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.redial:
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.config.ReconnectDelay
		b.MaxInterval = s.config.MaxReconnectDelay
		b.MaxElapsedTime = 0
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		attempt := 0
		err := backoff.Retry(func() error {
			attempt++
			conn, err := s.dial(ctx)
			if err != nil {
				s.log.WithError(err).WithField("attempt", attempt).Warn("websocket redial failed")
				return err
			}
			s.connMu.Lock()
			defer s.connMu.Unlock()
			if s.closed.Load() {
				conn.Close()
				return backoff.Permanent(ErrStreamClosed)
			}
			s.conn = conn
			return nil
		}, backoff.WithContext(b, ctx))
		cancel()
		if err != nil {
			return
		}

		s.log.WithField("attempts", attempt).Info("websocket reconnected")
		s.resubscribe()
	}
}

// resubscribe re-issues every subscription under a new id. A subscription
// the node refuses to restore has its channel closed so the consumer sees
// the stream end.
func (s *LogStream) resubscribe() {
	s.subsMu.RLock()
	current := make(map[int64]*subscription, len(s.subs))
	for id, sub := range s.subs {
		current[id] = sub
	}
	s.subsMu.RUnlock()

	for oldID, sub := range current {
		s.subsMu.Lock()
		delete(s.subs, oldID)
		s.subsMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.SubscribeTimeout)
		_, err := s.subscribe(ctx, sub)
		cancel()
		if err != nil {
			s.log.WithError(err).WithField("mentions", sub.filter.Mentions).Warn("resubscribe failed")
			s.subsMu.Lock()
			if !s.registeredLocked(sub) {
				close(sub.ch)
			}
			s.subsMu.Unlock()
		}
	}
}

// registeredLocked reports whether sub is live under any id. A confirmation
// can land just after subscribe gave up waiting for it.
func (s *LogStream) registeredLocked(sub *subscription) bool {
	for _, live := range s.subs {
		if live == sub {
			return true
		}
	}
	return false
}

func (s *LogStream) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.done:
		return false
	case <-t.C:
		return true
	}
}

// dispatch routes one frame: a subscription confirmation, a logs
// notification, or an error reply.
func (s *LogStream) dispatch(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.log.WithError(err).Debug("undecodable websocket frame")
		return
	}

	switch {
	case env.Method == "logsNotification" && env.Params != nil:
		s.deliver(env.Params)
	case env.Error != nil:
		s.log.WithFields(logrus.Fields{
			"request": env.ID,
			"code":    env.Error.Code,
		}).Warn(env.Error.Message)
	case env.ID != 0 && len(env.Result) > 0:
		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err != nil {
			return
		}
		s.subsMu.Lock()
		p, ok := s.pending[env.ID]
		if ok {
			delete(s.pending, env.ID)
			s.subs[subID] = p.sub
		}
		s.subsMu.Unlock()
		if ok {
			p.confirm <- subID
		}
	}
}

func (s *LogStream) deliver(p *wsNotificationParams) {
	s.subsMu.RLock()
	sub, ok := s.subs[p.Subscription]
	s.subsMu.RUnlock()
	if !ok {
		return
	}

	n := LogNotification{
		Signature: p.Result.Value.Signature,
		Logs:      p.Result.Value.Logs,
		Err:       p.Result.Value.Err,
	}
	if p.Result.Context != nil {
		n.Slot = p.Result.Context.Slot
	}
	if len(sub.filter.Mentions) == 1 {
		n.Mention = sub.filter.Mentions[0]
	}

	select {
	case sub.ch <- n:
	default:
		if dropped := s.dropped.Add(1); dropped%1000 == 1 {
			s.log.WithField("dropped", dropped).Warn("subscriber buffer full, dropping log notifications")
		}
	}
}

// pingLoop keeps idle connections alive. Write errors surface in readLoop.
func (s *LogStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			}
			s.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// wsEnvelope covers every frame the node sends on a logs stream.
type wsEnvelope struct {
	ID     uint64                `json:"id"`
	Method string                `json:"method"`
	Result json.RawMessage       `json:"result"`
	Params *wsNotificationParams `json:"params"`
	Error  *RPCError             `json:"error"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string   `json:"signature"`
			Logs      []string `json:"logs"`
			Err       any      `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
