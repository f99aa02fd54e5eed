package integrity

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/ActionLedger/internal/ledger"
	"go.uber.org/zap"
)

// Config holds integrity sweep configuration.
type Config struct {
	SweepInterval time.Duration
	VerifyTimeout time.Duration
	Concurrency   int
}

// AlertFunc is an optional callback invoked when an agent's chain transitions
// from valid to invalid.
type AlertFunc func(ctx context.Context, agentID string, res *ledger.VerificationResult)

// MetricsRecordFunc is an optional callback for recording verification results.
type MetricsRecordFunc func(valid bool)

// Sweeper periodically verifies every agent chain in the store. A chain that
// goes invalid fires the alert callback once, on the transition; it will not
// re-fire until the chain has been observed valid again.
type Sweeper struct {
	store     ledger.Store
	cfg       Config
	logger    *zap.Logger
	onAlert   AlertFunc
	onMetrics MetricsRecordFunc

	mu      sync.Mutex
	invalid map[string]bool
}

// New creates a Sweeper.
func New(store ledger.Store, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.VerifyTimeout == 0 {
		cfg.VerifyTimeout = time.Minute
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}

	return &Sweeper{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		invalid: make(map[string]bool),
	}
}

// SetAlert configures the invalid-transition callback.
func (s *Sweeper) SetAlert(fn AlertFunc) {
	s.onAlert = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (s *Sweeper) SetMetricsRecord(fn MetricsRecordFunc) {
	s.onMetrics = fn
}

// Start runs the sweep loop until stop is closed.
func (s *Sweeper) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepInterval-time.Second)
			s.SweepAll(ctx)
			cancel()
		case <-stop:
			return
		}
	}
}

// SweepAll verifies every agent's chain with bounded concurrency.
func (s *Sweeper) SweepAll(ctx context.Context) {
	agents, err := s.store.Agents(ctx)
	if err != nil {
		s.logger.Error("integrity: list agents", zap.Error(err))
		return
	}

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, agentID := range agents {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vctx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
			defer cancel()

			res, err := s.store.Verify(vctx, agentID)
			if err != nil {
				s.logger.Error("integrity: verify", zap.String("agent_id", agentID), zap.Error(err))
				return
			}

			if s.onMetrics != nil {
				s.onMetrics(res.IsValid)
			}

			s.mu.Lock()
			wasInvalid := s.invalid[agentID]
			s.invalid[agentID] = !res.IsValid
			s.mu.Unlock()

			switch {
			case res.IsValid && wasInvalid:
				s.logger.Info("integrity: chain recovered", zap.String("agent_id", agentID))
			case res.IsValid:
				s.logger.Debug("integrity: chain valid",
					zap.String("agent_id", agentID),
					zap.Int("events_checked", res.EventsChecked),
				)
			case !wasInvalid:
				// Transition: valid → invalid
				s.logger.Error("integrity: chain INVALID",
					zap.String("agent_id", agentID),
					zap.Int64p("first_invalid_sequence", res.FirstInvalidSequence),
				)
				if s.onAlert != nil {
					s.onAlert(ctx, agentID, res)
				}
			}
		}(agentID)
	}

	wg.Wait()
}
