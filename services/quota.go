package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dealmatch/models"
)

// ViewCounterStore increments the view counter for one (dealer, day) window
// and returns the count after the increment. The increment-and-return must
// be a single atomic operation at the storage layer — never a read followed
// by a write — so two concurrent views can't both see "2 remaining" and both
// get admitted into one slot.
type ViewCounterStore interface {
	IncrViews(ctx context.Context, dealerID uuid.UUID, day string, ttl time.Duration) (int64, error)
}

// QuotaGuard enforces the per-plan daily viewing limit. The counter store is
// injected, not ambient: day windows are explicit keys, so "reset" is just
// the next window going unqueried.
type QuotaGuard struct {
	store ViewCounterStore
	loc   *time.Location
	now   func() time.Time
	log   zerolog.Logger
}

// NewQuotaGuard creates a guard counting in the given location's calendar days.
func NewQuotaGuard(store ViewCounterStore, loc *time.Location, log zerolog.Logger) *QuotaGuard {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaGuard{
		store: store,
		loc:   loc,
		now:   time.Now,
		log:   log.With().Str("component", "quota").Logger(),
	}
}

// CheckAndConsume atomically consumes one view slot. Losing a race is a
// normal "not allowed" result, not an error; the guard may slightly
// over-admit under contention but never blocks a dealer who has quota left.
func (g *QuotaGuard) CheckAndConsume(ctx context.Context, dealerID uuid.UUID, plan models.Plan) (models.QuotaDecision, error) {
	now := g.now().In(g.loc)
	resetAt := nextMidnight(now)

	if plan.Unlimited() {
		return models.QuotaDecision{Allowed: true, Remaining: -1, ResetAt: resetAt}, nil
	}

	day := now.Format("2006-01-02")
	// TTL slightly past the window close so a counter read near midnight
	// still resolves; the key is never queried again after rollover.
	count, err := g.store.IncrViews(ctx, dealerID, day, time.Until(resetAt)+time.Hour)
	if err != nil {
		return models.QuotaDecision{}, fmt.Errorf("incr views: %w", err)
	}

	remaining := plan.DailyViewLimit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	allowed := count <= int64(plan.DailyViewLimit)
	if !allowed {
		g.log.Info().
			Str("dealer_id", dealerID.String()).
			Str("plan", plan.ID).
			Int("limit", plan.DailyViewLimit).
			Msg("daily view limit reached")
	}
	return models.QuotaDecision{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
