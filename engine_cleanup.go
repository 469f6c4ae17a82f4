package authcore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// RunCleanup purges accounts that registered with an email address,
// never confirmed it, and are older than the configured retention. It
// returns how many accounts were removed.
//
// Each candidate is re-read inside a transaction before deletion, so an
// account that confirms its address between the listing and the delete
// survives the sweep.
func (e *Engine) RunCleanup(ctx context.Context) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	cutoff := e.now().Add(-e.config.Cleanup.Retention)

	principals, err := e.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for i := range principals {
		candidate := principals[i]
		if !staleUnverified(&candidate, cutoff) {
			continue
		}

		err := e.store.WithinTx(ctx, func(tx CredentialStore) error {
			current, err := tx.FindByUsername(ctx, candidate.Username)
			if err != nil {
				return err
			}
			if current == nil || !staleUnverified(current, cutoff) {
				return nil
			}
			if err := tx.DeleteUser(ctx, current.ID); err != nil {
				return err
			}
			purged++
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return purged, err
		}
	}

	e.metricInc(MetricCleanupRun)
	e.metrics.Add(MetricCleanupPurged, uint64(purged))
	e.emitAudit(ctx, auditEventCleanupRun, true, "", "", nil, func() map[string]string {
		return map[string]string{"purged": strconv.Itoa(purged)}
	})

	return purged, nil
}

func staleUnverified(p *Principal, cutoff time.Time) bool {
	return p.Email != "" && !p.EmailVerified && p.CreatedAt.Before(cutoff)
}

// sweeper runs RunCleanup on a fixed interval until stopped.
type sweeper struct {
	engine   *Engine
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newSweeper(engine *Engine, cfg CleanupConfig) *sweeper {
	return &sweeper{
		engine:   engine,
		interval: cfg.Interval,
		done:     make(chan struct{}),
	}
}

func (s *sweeper) start() {
	s.wg.Add(1)
	go s.run()
}

func (s *sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are dropped here; the next tick retries.
			s.engine.RunCleanup(context.Background())
		case <-s.done:
			return
		}
	}
}

func (s *sweeper) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
