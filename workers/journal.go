package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dealmatch/services"
	"dealmatch/storage"
)

// JournalWorker drains the local interaction journal back into primary
// storage. Interactions parked during an outage are replayed oldest first,
// so learned profiles converge on the full interaction history.
type JournalWorker struct {
	journal *storage.SQLiteJournal
	matches *services.MatchService
	log     zerolog.Logger
	trigger chan struct{}
}

// NewJournalWorker creates a journal replay worker.
func NewJournalWorker(journal *storage.SQLiteJournal, matches *services.MatchService, log zerolog.Logger) *JournalWorker {
	return &JournalWorker{
		journal: journal,
		matches: matches,
		log:     log.With().Str("component", "journal_worker").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests an immediate replay pass.
func (w *JournalWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run replays up to batchSize entries every interval until ctx is done.
func (w *JournalWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		}
		w.replayBatch(ctx, batchSize)
	}
}

func (w *JournalWorker) replayBatch(ctx context.Context, batchSize int) {
	entries, err := w.journal.GetPending(batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to read journal")
		return
	}
	if len(entries) == 0 {
		return
	}

	replayed := 0
	for _, entry := range entries {
		if err := w.matches.ReplayJournaled(ctx, entry); err != nil {
			// Storage is likely still down; stop and retry next tick.
			w.log.Warn().Err(err).
				Str("interaction_id", entry.Interaction.ID.String()).
				Msg("replay failed, will retry")
			break
		}
		if err := w.journal.MarkProcessed(entry.Interaction.ID); err != nil {
			w.log.Error().Err(err).
				Str("interaction_id", entry.Interaction.ID.String()).
				Msg("failed to mark journal entry processed")
			break
		}
		replayed++
	}

	if replayed > 0 {
		w.log.Info().Int("replayed", replayed).Msg("journal entries replayed")
	}
}
