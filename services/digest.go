package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dealmatch/metrics"
	"dealmatch/models"
	"dealmatch/storage"
)

// Digest is one dealer's daily ranked selection.
type Digest struct {
	DealerID uuid.UUID    `json:"dealer_id"`
	Date     time.Time    `json:"date"`
	Items    []DigestItem `json:"items"`
}

// DigestItem is one position in a digest.
type DigestItem struct {
	Rank        int                   `json:"rank"`
	Listing     models.VehicleListing `json:"listing"`
	Match       models.VehicleMatch   `json:"match"`
	Explanation []string              `json:"explanation"`
}

// Dispatcher delivers a built digest. The real transactional email sender
// lives outside this module.
type Dispatcher interface {
	Dispatch(ctx context.Context, digest *Digest) error
}

// DigestStore is the persistence the digest builder reads from.
type DigestStore interface {
	ListDealerPreferences(ctx context.Context) ([]models.DealerPreferences, error)
	ListFreshMatches(ctx context.Context, dealerID uuid.UUID, since time.Time, limit int) ([]storage.ScoredListing, error)
	GetLearnedPreferences(ctx context.Context, dealerID uuid.UUID) (*models.LearnedPreferences, error)
}

// DigestDedupe guards against double-sends per (dealer, day).
type DigestDedupe interface {
	OnceDaily(ctx context.Context, subject, day string, ttl time.Duration) (bool, error)
}

// DigestService builds ranked daily digests from fresh matches.
type DigestService struct {
	store      DigestStore
	dedupe     DigestDedupe
	dispatcher Dispatcher
	maxItems   int
	log        zerolog.Logger
}

// NewDigestService creates a digest builder.
func NewDigestService(store DigestStore, dedupe DigestDedupe, dispatcher Dispatcher, maxItems int, log zerolog.Logger) *DigestService {
	if maxItems <= 0 {
		maxItems = 10
	}
	return &DigestService{
		store:      store,
		dedupe:     dedupe,
		dispatcher: dispatcher,
		maxItems:   maxItems,
		log:        log.With().Str("component", "digest").Logger(),
	}
}

// BuildForDealer assembles a dealer's digest from the last 24 hours of
// fresh matches, best final score first, with explanations rendered once.
func (s *DigestService) BuildForDealer(ctx context.Context, dealerID uuid.UUID, now time.Time) (*Digest, error) {
	scored, err := s.store.ListFreshMatches(ctx, dealerID, now.Add(-24*time.Hour), s.maxItems)
	if err != nil {
		return nil, fmt.Errorf("list fresh matches: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	learned, err := s.store.GetLearnedPreferences(ctx, dealerID)
	if err != nil {
		s.log.Warn().Err(err).Str("dealer_id", dealerID.String()).Msg("learned profile unavailable for digest")
		learned = nil
	}

	digest := &Digest{DealerID: dealerID, Date: now}
	for i, sl := range scored {
		match := sl.Match
		listing := sl.Listing
		digest.Items = append(digest.Items, DigestItem{
			Rank:        i + 1,
			Listing:     listing,
			Match:       match,
			Explanation: Explain(&match, &listing, learned),
		})
	}
	return digest, nil
}

// RunDaily builds and dispatches digests for every dealer with saved
// preferences, at most once per calendar day each.
func (s *DigestService) RunDaily(ctx context.Context, now time.Time) error {
	dealers, err := s.store.ListDealerPreferences(ctx)
	if err != nil {
		return fmt.Errorf("list dealers: %w", err)
	}

	day := now.Format("2006-01-02")
	for _, prefs := range dealers {
		first, err := s.dedupe.OnceDaily(ctx, prefs.DealerID.String(), day, 48*time.Hour)
		if err != nil {
			s.log.Warn().Err(err).Str("dealer_id", prefs.DealerID.String()).Msg("digest dedupe check failed")
			continue
		}
		if !first {
			continue
		}

		digest, err := s.BuildForDealer(ctx, prefs.DealerID, now)
		if err != nil {
			s.log.Error().Err(err).Str("dealer_id", prefs.DealerID.String()).Msg("failed to build digest")
			continue
		}
		if digest == nil {
			continue
		}

		if err := s.dispatcher.Dispatch(ctx, digest); err != nil {
			s.log.Error().Err(err).Str("dealer_id", prefs.DealerID.String()).Msg("failed to dispatch digest")
			continue
		}
		metrics.DigestsBuilt.Inc()
	}
	return nil
}

// LogDispatcher is the dispatcher used until the email side is wired up: it
// only records what would have been sent.
type LogDispatcher struct {
	Log zerolog.Logger
}

func (d *LogDispatcher) Dispatch(_ context.Context, digest *Digest) error {
	d.Log.Info().
		Str("dealer_id", digest.DealerID.String()).
		Int("items", len(digest.Items)).
		Msg("digest ready for delivery")
	return nil
}
