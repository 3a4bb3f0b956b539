package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"dealmatch/models"
)

// Journal stages: full entries replay the whole interaction pipeline,
// learn entries only re-run the learner update (the interaction row itself
// already made it to Postgres).
const (
	JournalStageFull  = "full"
	JournalStageLearn = "learn"
)

// JournalEntry is one interaction parked locally after a storage failure.
type JournalEntry struct {
	Interaction models.Interaction
	Stage       string
	JournaledAt time.Time
}

// SQLiteJournal is the local write-ahead journal for interactions. When
// Postgres is unreachable the interaction lands here instead of being lost;
// the journal worker replays it later, so the learned profile is eventually
// consistent with dealer behavior.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interaction_journal (
		id TEXT PRIMARY KEY,
		dealer_id TEXT NOT NULL,
		match_id TEXT,
		type TEXT NOT NULL,
		duration_sec INTEGER,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		stage TEXT NOT NULL DEFAULT 'full',
		journaled_at DATETIME NOT NULL,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_journal_pending
		ON interaction_journal(journaled_at) WHERE processed_at IS NULL;
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append parks an interaction for later replay. Keyed by interaction id, so
// re-journaling the same record is harmless.
func (j *SQLiteJournal) Append(i *models.Interaction, stage string) error {
	var matchID *string
	if i.MatchID != nil {
		s := i.MatchID.String()
		matchID = &s
	}
	var metadata *string
	if len(i.Metadata) > 0 {
		s := string(i.Metadata)
		metadata = &s
	}

	_, err := j.db.Exec(`
		INSERT OR IGNORE INTO interaction_journal
			(id, dealer_id, match_id, type, duration_sec, metadata, created_at, stage, journaled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID.String(), i.DealerID.String(), matchID, string(i.Type),
		i.DurationSec, metadata, i.CreatedAt, stage, time.Now().UTC(),
	)
	return err
}

// GetPending returns unprocessed entries, oldest first.
func (j *SQLiteJournal) GetPending(limit int) ([]JournalEntry, error) {
	rows, err := j.db.Query(`
		SELECT id, dealer_id, match_id, type, duration_sec, metadata, created_at, stage, journaled_at
		FROM interaction_journal
		WHERE processed_at IS NULL
		ORDER BY journaled_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var id, dealerID string
		var matchID, metadata sql.NullString
		if err := rows.Scan(
			&id, &dealerID, &matchID, (*string)(&e.Interaction.Type),
			&e.Interaction.DurationSec, &metadata, &e.Interaction.CreatedAt, &e.Stage, &e.JournaledAt,
		); err != nil {
			return nil, err
		}

		e.Interaction.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		e.Interaction.DealerID, err = uuid.Parse(dealerID)
		if err != nil {
			return nil, err
		}
		if matchID.Valid {
			mid, err := uuid.Parse(matchID.String)
			if err != nil {
				return nil, err
			}
			e.Interaction.MatchID = &mid
		}
		if metadata.Valid {
			e.Interaction.Metadata = json.RawMessage(metadata.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkProcessed stamps an entry after successful replay.
func (j *SQLiteJournal) MarkProcessed(id uuid.UUID) error {
	_, err := j.db.Exec(`UPDATE interaction_journal SET processed_at = ? WHERE id = ?`,
		time.Now().UTC(), id.String())
	return err
}

// PendingCount reports how many entries still await replay.
func (j *SQLiteJournal) PendingCount() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM interaction_journal WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}
