package discovery

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"solana-sniper/internal/address"
	"solana-sniper/internal/bounded"
	"solana-sniper/internal/cache"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/solana"
)

// TransactionFetcher is the RPC subset used to resolve launch mints.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// LogConfig configures a LogSource.
type LogConfig struct {
	Programs       []string      // program IDs to subscribe to
	Buffer         int           // launches held between scans
	ResolveTimeout time.Duration // per getTransaction call
	DedupeTTL      time.Duration // how long a mint or signature stays seen
}

// LogSource discovers launches from Solana program log subscriptions.
// Start subscribes; Scan drains and resolves what arrived since the last call.
type LogSource struct {
	ws     solana.WSClient
	rpc    TransactionFetcher
	parser *Parser
	cfg    LogConfig
	seen   *cache.TTL[struct{}]
	log    *logrus.Entry
	now    func() time.Time

	launches chan *Launch
	dropped  atomic.Int64

	mu       sync.Mutex
	returned []*domain.Candidate
	wg       sync.WaitGroup
}

// NewLogSource creates a LogSource. Zero config values take defaults.
func NewLogSource(ws solana.WSClient, rpc TransactionFetcher, cfg LogConfig, log *logrus.Entry) *LogSource {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1000
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 5 * time.Second
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = time.Hour
	}
	if log == nil {
		log = logging.Component(nil, "discovery")
	}
	return &LogSource{
		ws:       ws,
		rpc:      rpc,
		parser:   NewParser(),
		cfg:      cfg,
		seen:     cache.New[struct{}](cfg.DedupeTTL),
		log:      log,
		now:      time.Now,
		launches: make(chan *Launch, cfg.Buffer),
	}
}

// Start subscribes to every configured program. Subscriptions end when ctx
// is cancelled or the websocket client is closed.
func (s *LogSource) Start(ctx context.Context) error {
	for _, program := range s.cfg.Programs {
		ch, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", program, err)
		}
		s.log.WithField("program", program).Info("subscribed to program logs")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.consume(ctx, ch)
		}()
	}
	go s.seen.Run(ctx, s.cfg.DedupeTTL)
	return nil
}

// Wait blocks until every subscription consumer has returned.
func (s *LogSource) Wait() {
	s.wg.Wait()
}

// Dropped returns how many launches were discarded on a full buffer.
func (s *LogSource) Dropped() int64 {
	return s.dropped.Load()
}

func (s *LogSource) consume(ctx context.Context, ch <-chan solana.LogNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-ch:
			if !ok {
				return
			}
			s.handle(notif)
		}
	}
}

func (s *LogSource) handle(notif solana.LogNotification) {
	if notif.Failed() {
		return
	}
	launch, ok := s.parser.Detect(notif.Signature, notif.Slot, notif.Logs)
	if !ok {
		return
	}
	// A transaction mentioning several subscribed programs arrives once per subscription.
	if !s.seen.Add("sig:"+notif.Signature, struct{}{}) {
		return
	}
	select {
	case s.launches <- launch:
	default:
		s.dropped.Add(1)
		s.log.WithField("signature", notif.Signature).Warn("launch buffer full, dropping")
	}
}

// Scan resolves buffered launches into candidates. Only Solana is served.
func (s *LogSource) Scan(ctx context.Context, network domain.Network) iter.Seq2[*domain.Candidate, error] {
	return func(yield func(*domain.Candidate, error) bool) {
		if network != domain.NetworkSolana {
			return
		}
		for ctx.Err() == nil {
			if c, ok := s.takeReturned(); ok {
				if !yield(c, nil) {
					return
				}
				continue
			}
			var launch *Launch
			select {
			case launch = <-s.launches:
			default:
				return
			}
			c, err := s.resolve(ctx, launch)
			if c == nil && err == nil {
				continue
			}
			if !yield(c, err) {
				return
			}
		}
	}
}

// Return holds a resolved candidate for the next Scan. Its mint stays
// marked as seen, so it is only served again from here.
func (s *LogSource) Return(c *domain.Candidate) {
	if c == nil || c.Network != domain.NetworkSolana {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returned = append(s.returned, c)
}

func (s *LogSource) takeReturned() (*domain.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.returned) == 0 {
		return nil, false
	}
	c := s.returned[0]
	s.returned = s.returned[1:]
	return c, true
}

// resolve returns (nil, nil) for launches that yield no new candidate.
func (s *LogSource) resolve(ctx context.Context, launch *Launch) (*domain.Candidate, error) {
	tx, err := bounded.Call(ctx, s.cfg.ResolveTimeout, func(ctx context.Context) (*solana.Transaction, error) {
		return s.rpc.GetTransaction(ctx, launch.Signature)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve launch %s: %w", launch.Signature, err)
	}
	if tx == nil || (tx.Meta != nil && tx.Meta.Err != nil) {
		return nil, nil
	}
	mint := LaunchMint(tx)
	if mint == "" {
		return nil, nil
	}
	mint, err = address.Normalize(domain.NetworkSolana, mint)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", launch.Signature, err)
	}
	if !s.seen.Add("mint:"+mint, struct{}{}) {
		return nil, nil
	}

	discoveredAt := s.now().UnixMilli()
	if tx.BlockTime > 0 {
		discoveredAt = tx.BlockTime * 1000
	}
	s.log.WithFields(logrus.Fields{
		"mint":      mint,
		"program":   launch.Program,
		"signature": launch.Signature,
		"slot":      launch.Slot,
	}).Info("launch discovered")

	return &domain.Candidate{
		ID:           idhash.ComputeCandidateID(domain.NetworkSolana, mint),
		Network:      domain.NetworkSolana,
		Address:      mint,
		TxSignature:  launch.Signature,
		DiscoveredAt: discoveredAt,
	}, nil
}
