package resolve

import (
	"context"
	"log"
	"time"

	"warrant-ledgerv1/internal/model"

	"golang.org/x/time/rate"
)

// identityStore is the slice of the ledger the sweep needs: listing
// unresolved warrants and writing resolved identities back.
type identityStore interface {
	Unresolved() []string
	SetStockInfo(warrantNumber string, info *model.StockInfo) (model.Snapshot, bool)
}

// Sweeper backfills stock info for warrants loaded from storage without
// one. External calls are paced by a rate limiter so the scrape targets
// are not hammered at startup.
type Sweeper struct {
	pipeline *Pipeline
	store    identityStore
	limiter  *rate.Limiter

	// OnResolved receives the post-write-back snapshot for each warrant
	// the sweep resolves, so connected clients see identities appear.
	OnResolved func(model.Snapshot)

	// OnOutcome is an optional metrics hook called once per attempt.
	OnOutcome func(outcome string, took time.Duration)
}

// NewSweeper creates a Sweeper pacing one external resolution per delay.
func NewSweeper(pipeline *Pipeline, store identityStore, delay time.Duration) *Sweeper {
	return &Sweeper{
		pipeline: pipeline,
		store:    store,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Run performs one pass over all currently-unresolved warrants. Failures
// stay unresolved; they are not retried until the next process start.
// Blocks until the pass completes or ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	nums := s.store.Unresolved()
	if len(nums) == 0 {
		return
	}
	log.Printf("[sweep] backfilling stock info for %d warrants", len(nums))

	resolved := 0
	for _, num := range nums {
		if err := s.limiter.Wait(ctx); err != nil {
			log.Printf("[sweep] cancelled: %v", err)
			return
		}

		start := time.Now()
		info, outcome := s.pipeline.Resolve(ctx, num)
		if s.OnOutcome != nil {
			s.OnOutcome(outcome, time.Since(start))
		}
		if info == nil {
			continue
		}

		if snap, ok := s.store.SetStockInfo(num, info); ok {
			resolved++
			if s.OnResolved != nil {
				s.OnResolved(snap)
			}
		}
	}
	log.Printf("[sweep] done: %d/%d resolved", resolved, len(nums))
}
