package match

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

const pendingBatchSize = 50

// Retrier sweeps matches whose channel is still pending and retries
// provisioning with exponential backoff. A match that exhausts maxAttempts is
// left alone and logged for the operational alerting path.
type Retrier struct {
	engine      *Engine
	interval    time.Duration
	baseBackoff time.Duration
	maxRetries  uint64
	maxAttempts int
}

// NewRetrier creates a retrier sweeping every interval. maxAttempts bounds
// the total provisioning attempts per match across all sweeps.
func NewRetrier(engine *Engine, interval time.Duration, maxAttempts int) *Retrier {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Retrier{
		engine:      engine,
		interval:    interval,
		baseBackoff: 500 * time.Millisecond,
		maxRetries:  3,
		maxAttempts: maxAttempts,
	}
}

// Run blocks, sweeping until ctx is cancelled.
func (r *Retrier) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("provisioning sweep: %v", err)
			}
		}
	}
}

// Sweep retries every channel-pending match once, with in-sweep backoff, and
// aggregates the failures.
func (r *Retrier) Sweep(ctx context.Context) error {
	pending, err := r.engine.matches.ListPendingChannel(ctx, pendingBatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	var errs error
	for i := range pending {
		rec := pending[i]
		if rec.ProvisionAttempts >= r.maxAttempts {
			log.Printf("match for event %s exceeded %d provisioning attempts; needs operator attention", rec.EventRef, r.maxAttempts)
			continue
		}

		backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, r.engine.callTimeout)
			defer cancel()
			if err := r.engine.provision(callCtx, &rec); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", rec.EventRef, err))
		}
	}
	return errs
}
