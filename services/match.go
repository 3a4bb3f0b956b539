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

// MatchStore is the persistence the match pipeline needs.
type MatchStore interface {
	GetDealerPreferences(ctx context.Context, dealerID uuid.UUID) (*models.DealerPreferences, error)
	ListDealerPreferences(ctx context.Context) ([]models.DealerPreferences, error)
	GetLearnedPreferences(ctx context.Context, dealerID uuid.UUID) (*models.LearnedPreferences, error)
	UpsertMatch(ctx context.Context, m *models.VehicleMatch) error
	GetMatchByID(ctx context.Context, id uuid.UUID) (*models.VehicleMatch, error)
	GetMatchForDealerListing(ctx context.Context, dealerID, listingID uuid.UUID) (*models.VehicleMatch, error)
	InsertInteraction(ctx context.Context, i *models.Interaction) error
	SetMatchFlag(ctx context.Context, matchID uuid.UUID, typ models.InteractionType) error
}

// InteractionJournal parks interactions that could not reach primary
// storage for later replay.
type InteractionJournal interface {
	Append(i *models.Interaction, stage string) error
}

// MatchService runs the scoring pipeline (base score -> boost -> persisted
// match) and consumes the interaction stream.
type MatchService struct {
	store   MatchStore
	learner *Learner
	journal InteractionJournal
	log     zerolog.Logger
}

// NewMatchService creates a MatchService.
func NewMatchService(store MatchStore, learner *Learner, journal InteractionJournal, log zerolog.Logger) *MatchService {
	return &MatchService{
		store:   store,
		learner: learner,
		journal: journal,
		log:     log.With().Str("component", "match").Logger(),
	}
}

// ProcessListing scores one listing for one dealer and persists the match.
// Returns (nil, nil) when the listing's source is disabled for the dealer.
func (s *MatchService) ProcessListing(ctx context.Context, dealerID uuid.UUID, listing *models.VehicleListing) (*models.VehicleMatch, error) {
	prefs, err := s.store.GetDealerPreferences(ctx, dealerID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	if prefs == nil {
		// No settings saved yet: every filter unset, full credit across the board.
		prefs = &models.DealerPreferences{DealerID: dealerID}
	}
	if !sourceEnabled(prefs, listing.Source) {
		return nil, nil
	}

	base, breakdown, err := ScoreListing(listing, prefs)
	if err != nil {
		return nil, fmt.Errorf("score listing: %w", err)
	}

	// Boost degrades to 0 when the profile can't be read; scoring never
	// fails visibly over personalization.
	boost := 0
	learned, err := s.store.GetLearnedPreferences(ctx, dealerID)
	if err != nil {
		s.log.Warn().Err(err).Str("dealer_id", dealerID.String()).Msg("learned profile unavailable, boost 0")
	} else {
		boost = BoostFromProfile(learned, listing)
	}

	now := time.Now().UTC()
	match := &models.VehicleMatch{
		ID:         uuid.New(),
		DealerID:   dealerID,
		ListingID:  listing.ID,
		BaseScore:  base,
		Boost:      boost,
		FinalScore: base + boost,
		Breakdown:  breakdown,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// Rescoring an existing pair updates scores in place; the match keeps its
	// identity and interaction flags.
	if existing, err := s.store.GetMatchForDealerListing(ctx, dealerID, listing.ID); err == nil && existing != nil {
		match.ID = existing.ID
		match.CreatedAt = existing.CreatedAt
		match.Viewed = existing.Viewed
		match.Saved = existing.Saved
		match.Skipped = existing.Skipped
		match.ContactedSeller = existing.ContactedSeller
	}
	if err := s.store.UpsertMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("upsert match: %w", err)
	}

	metrics.MatchesScored.Inc()
	metrics.BaseScore.Observe(float64(base))
	metrics.BoostApplied.Observe(float64(boost))
	return match, nil
}

// ProcessListingForAllDealers fans a fresh listing out to every dealer with
// saved preferences. Scoring is independent per dealer; one dealer's bad
// filter never blocks the rest.
func (s *MatchService) ProcessListingForAllDealers(ctx context.Context, listing *models.VehicleListing) (int, error) {
	dealers, err := s.store.ListDealerPreferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("list dealers: %w", err)
	}

	processed := 0
	for _, prefs := range dealers {
		if _, err := s.ProcessListing(ctx, prefs.DealerID, listing); err != nil {
			s.log.Warn().Err(err).
				Str("dealer_id", prefs.DealerID.String()).
				Str("listing_id", listing.ID.String()).
				Msg("failed to score listing for dealer")
			continue
		}
		processed++
	}
	return processed, nil
}

// RecordInteraction is the single entry point of the interaction stream:
// boundary validation, the append-only log, match flags, then the learner.
// Each record feeds the learner exactly once; a storage failure diverts the
// record to the local journal instead of losing it.
func (s *MatchService) RecordInteraction(ctx context.Context, i *models.Interaction) error {
	if !i.Type.Valid() {
		metrics.InteractionsRejected.Inc()
		return fmt.Errorf("%w: %q", models.ErrInvalidInteractionType, i.Type)
	}

	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}

	if err := s.store.InsertInteraction(ctx, i); err != nil {
		s.log.Warn().Err(err).Str("interaction_id", i.ID.String()).Msg("interaction log unavailable, journaling")
		metrics.InteractionsJournaled.Inc()
		return s.journal.Append(i, storage.JournalStageFull)
	}

	if i.MatchID != nil {
		if err := s.store.SetMatchFlag(ctx, *i.MatchID, i.Type); err != nil {
			s.log.Warn().Err(err).Str("match_id", i.MatchID.String()).Msg("failed to update match flags")
		}
	}

	if err := s.learner.Observe(ctx, i.DealerID, i); err != nil {
		s.log.Warn().Err(err).Str("interaction_id", i.ID.String()).Msg("learner update failed, journaling")
		metrics.InteractionsJournaled.Inc()
		return s.journal.Append(i, storage.JournalStageLearn)
	}

	metrics.InteractionsTotal.WithLabelValues(string(i.Type)).Inc()
	return nil
}

// ReplayJournaled re-runs one parked interaction. Full-stage entries go
// through the whole pipeline again; learn-stage entries only re-run the
// learner (their interaction row already landed).
func (s *MatchService) ReplayJournaled(ctx context.Context, entry storage.JournalEntry) error {
	if entry.Stage == storage.JournalStageLearn {
		return s.learner.Observe(ctx, entry.Interaction.DealerID, &entry.Interaction)
	}

	i := entry.Interaction
	if err := s.store.InsertInteraction(ctx, &i); err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	if i.MatchID != nil {
		if err := s.store.SetMatchFlag(ctx, *i.MatchID, i.Type); err != nil {
			s.log.Warn().Err(err).Str("match_id", i.MatchID.String()).Msg("failed to update match flags on replay")
		}
	}
	return s.learner.Observe(ctx, i.DealerID, &i)
}

func sourceEnabled(prefs *models.DealerPreferences, source string) bool {
	if len(prefs.EnabledSources) == 0 {
		return true
	}
	for _, s := range prefs.EnabledSources {
		if s == source {
			return true
		}
	}
	return false
}
