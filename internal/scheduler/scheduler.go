// Package scheduler implements the scheduler loop (C5): each tick expires
// overdue Tests, enumerates idle workers, and fans out new PENDING Tests
// across their countries and the currently enabled mirrors, all inside one
// transaction.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/metrics"
	"github.com/kiwix/mirrors-qa/internal/store"
)

// Result reports what a single tick did, for logging and tests.
type Result struct {
	Expired int
	Created int
}

// Tick runs the 3-step algorithm from spec.md §4.5 inside a single
// transaction against db.
func Tick(ctx context.Context, db *sql.DB, cfg *config.BackendConfig, log zerolog.Logger) (Result, error) {
	var result Result
	err := store.WithTx(ctx, db, func(q *store.Queries) error {
		expired, err := q.ExpireTests(ctx, intervalLiteral(cfg.ExpireTestsSince))
		if err != nil {
			return err
		}
		result.Expired = len(expired)
		if len(expired) > 0 {
			log.Info().Strs("test_ids", expired).Msg("expired pending tests")
		}

		idle, err := q.GetIdleWorkers(ctx, intervalLiteral(cfg.IdleWorkerSince))
		if err != nil {
			return err
		}

		mirrors, err := q.ListEnabledMirrors(ctx)
		if err != nil {
			return err
		}

		for _, worker := range idle {
			if len(worker.Countries) == 0 {
				continue
			}
			pending, err := q.CountPendingTestsForWorker(ctx, worker.ID)
			if err != nil {
				return err
			}
			if pending > 0 {
				continue
			}
			for _, country := range worker.Countries {
				for _, mirror := range mirrors {
					if _, err := q.CreateTest(ctx, worker.ID, mirror.BaseURL, country); err != nil {
						return err
					}
					result.Created++
				}
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func intervalLiteral(d time.Duration) string {
	return fmt.Sprintf("%f seconds", d.Seconds())
}

// Run drives the loop: tick, log, sleep, repeat, until ctx is canceled.
func Run(ctx context.Context, db *sql.DB, cfg *config.BackendConfig, log zerolog.Logger) {
	for {
		start := time.Now()
		result, err := Tick(ctx, db, cfg, log)
		metrics.SchedulerTickDurationSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SchedulerTickErrorsTotal.Inc()
			log.Error().Err(err).Msg("scheduler tick failed, will retry next tick")
		} else {
			metrics.TestsExpiredTotal.Add(float64(result.Expired))
			metrics.TestsCreatedTotal.Add(float64(result.Created))
			log.Info().Int("expired", result.Expired).Int("created", result.Created).Msg("scheduler tick complete")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.SchedulerSleep):
		}
	}
}
