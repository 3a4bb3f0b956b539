package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dealmatch/models"
	"dealmatch/storage"
)

type fakeMatchStore struct {
	*fakeLearnerStore

	prefs            map[uuid.UUID]*models.DealerPreferences
	matches          map[uuid.UUID]*models.VehicleMatch
	interactions     []*models.Interaction
	flags            map[uuid.UUID]models.InteractionType
	insertErr        error
	learnedErr       error
	updateLearnedErr error
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{
		fakeLearnerStore: newFakeLearnerStore(),
		prefs:            make(map[uuid.UUID]*models.DealerPreferences),
		matches:          make(map[uuid.UUID]*models.VehicleMatch),
		flags:            make(map[uuid.UUID]models.InteractionType),
	}
}

func (s *fakeMatchStore) GetDealerPreferences(_ context.Context, dealerID uuid.UUID) (*models.DealerPreferences, error) {
	return s.prefs[dealerID], nil
}

func (s *fakeMatchStore) ListDealerPreferences(_ context.Context) ([]models.DealerPreferences, error) {
	var out []models.DealerPreferences
	for _, p := range s.prefs {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeMatchStore) GetLearnedPreferences(ctx context.Context, dealerID uuid.UUID) (*models.LearnedPreferences, error) {
	if s.learnedErr != nil {
		return nil, s.learnedErr
	}
	return s.fakeLearnerStore.GetLearnedPreferences(ctx, dealerID)
}

func (s *fakeMatchStore) UpdateLearnedPreferences(ctx context.Context, dealerID uuid.UUID, fn func(*models.LearnedPreferences) error) error {
	if s.updateLearnedErr != nil {
		return s.updateLearnedErr
	}
	return s.fakeLearnerStore.UpdateLearnedPreferences(ctx, dealerID, fn)
}

func (s *fakeMatchStore) UpsertMatch(_ context.Context, m *models.VehicleMatch) error {
	s.matches[m.ID] = m
	return nil
}

func (s *fakeMatchStore) GetMatchByID(_ context.Context, id uuid.UUID) (*models.VehicleMatch, error) {
	return s.matches[id], nil
}

func (s *fakeMatchStore) GetMatchForDealerListing(_ context.Context, dealerID, listingID uuid.UUID) (*models.VehicleMatch, error) {
	for _, m := range s.matches {
		if m.DealerID == dealerID && m.ListingID == listingID {
			return m, nil
		}
	}
	return nil, nil
}

func (s *fakeMatchStore) InsertInteraction(_ context.Context, i *models.Interaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.interactions = append(s.interactions, i)
	return nil
}

func (s *fakeMatchStore) SetMatchFlag(_ context.Context, matchID uuid.UUID, typ models.InteractionType) error {
	s.flags[matchID] = typ
	return nil
}

type fakeJournal struct {
	entries []storage.JournalEntry
}

func (j *fakeJournal) Append(i *models.Interaction, stage string) error {
	j.entries = append(j.entries, storage.JournalEntry{Interaction: *i, Stage: stage})
	return nil
}

func newTestMatchService(store *fakeMatchStore, journal *fakeJournal) *MatchService {
	learner := NewLearner(store, zerolog.Nop())
	return NewMatchService(store, learner, journal, zerolog.Nop())
}

func TestProcessListing_PersistsScoredMatch(t *testing.T) {
	store := newFakeMatchStore()
	dealerID := uuid.New()
	store.prefs[dealerID] = &models.DealerPreferences{
		DealerID:       dealerID,
		PreferredMakes: []string{"BMW"},
		MinYear:        2018,
		MaxPrice:       20000,
		MaxMileage:     60000,
	}
	svc := newTestMatchService(store, &fakeJournal{})

	match, err := svc.ProcessListing(context.Background(), dealerID, testListing())
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if match == nil {
		t.Fatalf("expected a match")
	}
	if match.BaseScore < 70 || match.BaseScore > 90 {
		t.Fatalf("unexpected base score %d", match.BaseScore)
	}
	if match.Boost != 0 {
		t.Fatalf("expected 0 boost for a dealer with no history, got %d", match.Boost)
	}
	if match.FinalScore != match.BaseScore {
		t.Fatalf("final score must be base + boost")
	}
	if _, ok := store.matches[match.ID]; !ok {
		t.Fatalf("match was not persisted")
	}
}

func TestProcessListing_RescoreKeepsMatchIdentityAndFlags(t *testing.T) {
	store := newFakeMatchStore()
	dealerID := uuid.New()
	store.prefs[dealerID] = &models.DealerPreferences{DealerID: dealerID}
	svc := newTestMatchService(store, &fakeJournal{})
	listing := testListing()

	first, err := svc.ProcessListing(context.Background(), dealerID, listing)
	if err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	first.Saved = true
	store.matches[first.ID] = first

	second, err := svc.ProcessListing(context.Background(), dealerID, listing)
	if err != nil {
		t.Fatalf("rescore failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("rescore must keep the match id: %s vs %s", second.ID, first.ID)
	}
	if !second.Saved {
		t.Fatalf("rescore must keep interaction flags")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("rescore must keep created_at")
	}
}

func TestProcessListing_NoPreferencesScoresFullCredit(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestMatchService(store, &fakeJournal{})

	match, err := svc.ProcessListing(context.Background(), uuid.New(), testListing())
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if match.BaseScore != 100 {
		t.Fatalf("expected 100 for a dealer with no saved filters, got %d", match.BaseScore)
	}
}

func TestProcessListing_DisabledSourceIsSkipped(t *testing.T) {
	store := newFakeMatchStore()
	dealerID := uuid.New()
	store.prefs[dealerID] = &models.DealerPreferences{
		DealerID:       dealerID,
		EnabledSources: []string{"auction_house_b"},
	}
	svc := newTestMatchService(store, &fakeJournal{})

	match, err := svc.ProcessListing(context.Background(), dealerID, testListing())
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match for a disabled source")
	}
	if len(store.matches) != 0 {
		t.Fatalf("nothing should be persisted for a disabled source")
	}
}

func TestProcessListing_BoostDegradesWhenProfileUnavailable(t *testing.T) {
	store := newFakeMatchStore()
	store.learnedErr = errors.New("connection refused")
	dealerID := uuid.New()
	store.prefs[dealerID] = &models.DealerPreferences{DealerID: dealerID}
	svc := newTestMatchService(store, &fakeJournal{})

	match, err := svc.ProcessListing(context.Background(), dealerID, testListing())
	if err != nil {
		t.Fatalf("scoring must survive a profile read failure: %v", err)
	}
	if match.Boost != 0 {
		t.Fatalf("expected boost to degrade to 0, got %d", match.Boost)
	}
}

func TestRecordInteraction_RejectsUnknownType(t *testing.T) {
	store := newFakeMatchStore()
	journal := &fakeJournal{}
	svc := newTestMatchService(store, journal)

	err := svc.RecordInteraction(context.Background(), &models.Interaction{
		DealerID: uuid.New(),
		Type:     "PURCHASED",
	})
	if !errors.Is(err, models.ErrInvalidInteractionType) {
		t.Fatalf("expected ErrInvalidInteractionType, got %v", err)
	}
	if len(store.interactions) != 0 || len(journal.entries) != 0 {
		t.Fatalf("rejected interaction must not be stored or journaled")
	}
}

func TestRecordInteraction_FeedsLearnerAndFlagsMatch(t *testing.T) {
	store := newFakeMatchStore()
	journal := &fakeJournal{}
	svc := newTestMatchService(store, journal)

	dealerID := uuid.New()
	matchID := uuid.New()
	store.listings[matchID] = testListing()

	err := svc.RecordInteraction(context.Background(), &models.Interaction{
		DealerID: dealerID,
		MatchID:  &matchID,
		Type:     models.InteractionSave,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if len(store.interactions) != 1 {
		t.Fatalf("expected 1 stored interaction, got %d", len(store.interactions))
	}
	if store.interactions[0].ID == uuid.Nil {
		t.Fatalf("expected an id to be assigned")
	}
	if store.flags[matchID] != models.InteractionSave {
		t.Fatalf("expected the match to be flagged saved")
	}
	if learned := store.profiles[dealerID]; learned == nil || learned.TotalSaves != 1 {
		t.Fatalf("expected the learner to observe the save")
	}
	if len(journal.entries) != 0 {
		t.Fatalf("nothing should be journaled on the happy path")
	}
}

func TestRecordInteraction_JournalsOnStorageFailure(t *testing.T) {
	store := newFakeMatchStore()
	store.insertErr = errors.New("connection refused")
	journal := &fakeJournal{}
	svc := newTestMatchService(store, journal)

	err := svc.RecordInteraction(context.Background(), &models.Interaction{
		DealerID: uuid.New(),
		Type:     models.InteractionView,
	})
	if err != nil {
		t.Fatalf("journaling path must not surface an error: %v", err)
	}
	if len(journal.entries) != 1 {
		t.Fatalf("expected 1 journaled entry, got %d", len(journal.entries))
	}
	if journal.entries[0].Stage != storage.JournalStageFull {
		t.Fatalf("expected full-stage entry, got %q", journal.entries[0].Stage)
	}
}

func TestRecordInteraction_JournalsLearnStageOnLearnerFailure(t *testing.T) {
	store := newFakeMatchStore()
	store.updateLearnedErr = errors.New("lock timeout")
	journal := &fakeJournal{}
	svc := newTestMatchService(store, journal)

	dealerID := uuid.New()
	matchID := uuid.New()
	store.listings[matchID] = testListing()

	err := svc.RecordInteraction(context.Background(), &models.Interaction{
		DealerID: dealerID,
		MatchID:  &matchID,
		Type:     models.InteractionSave,
	})
	if err != nil {
		t.Fatalf("journaling path must not surface an error: %v", err)
	}
	if len(store.interactions) != 1 {
		t.Fatalf("the interaction row should still have landed")
	}
	if len(journal.entries) != 1 || journal.entries[0].Stage != storage.JournalStageLearn {
		t.Fatalf("expected one learn-stage entry, got %v", journal.entries)
	}
}

func TestReplayJournaled_LearnStageOnlyRerunsTheLearner(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestMatchService(store, &fakeJournal{})

	dealerID := uuid.New()
	matchID := uuid.New()
	store.listings[matchID] = testListing()

	entry := storage.JournalEntry{
		Stage: storage.JournalStageLearn,
		Interaction: models.Interaction{
			ID:       uuid.New(),
			DealerID: dealerID,
			MatchID:  &matchID,
			Type:     models.InteractionSave,
		},
	}
	if err := svc.ReplayJournaled(context.Background(), entry); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(store.interactions) != 0 {
		t.Fatalf("learn-stage replay must not re-insert the interaction row")
	}
	if learned := store.profiles[dealerID]; learned == nil || learned.TotalSaves != 1 {
		t.Fatalf("expected the learner to observe the replayed save")
	}
}

func TestReplayJournaled_FullStageRunsWholePipeline(t *testing.T) {
	store := newFakeMatchStore()
	svc := newTestMatchService(store, &fakeJournal{})

	dealerID := uuid.New()
	matchID := uuid.New()
	store.listings[matchID] = testListing()

	entry := storage.JournalEntry{
		Stage: storage.JournalStageFull,
		Interaction: models.Interaction{
			ID:       uuid.New(),
			DealerID: dealerID,
			MatchID:  &matchID,
			Type:     models.InteractionSkip,
		},
	}
	if err := svc.ReplayJournaled(context.Background(), entry); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(store.interactions) != 1 {
		t.Fatalf("full-stage replay must insert the interaction row")
	}
	if store.flags[matchID] != models.InteractionSkip {
		t.Fatalf("full-stage replay must flag the match")
	}
	if learned := store.profiles[dealerID]; learned == nil || learned.TotalSkips != 1 {
		t.Fatalf("expected the learner to observe the replayed skip")
	}
}
