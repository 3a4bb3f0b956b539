package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidInteractionType = errors.New("invalid interaction type")

// InteractionType enumerates the behavioral events the engine accepts.
type InteractionType string

const (
	InteractionView          InteractionType = "VIEW"
	InteractionSave          InteractionType = "SAVE"
	InteractionSkip          InteractionType = "SKIP"
	InteractionContactSeller InteractionType = "CONTACT_SELLER"
	InteractionShare         InteractionType = "SHARE"
)

// Valid reports whether t is a known interaction type. Anything else is
// rejected at the boundary before it can reach the learner.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionView, InteractionSave, InteractionSkip, InteractionContactSeller, InteractionShare:
		return true
	}
	return false
}

// Decisive reports whether t changes learned weights (VIEW/SHARE are
// informational only).
func (t InteractionType) Decisive() bool {
	return t == InteractionSave || t == InteractionSkip
}

// Interaction is one append-only behavioral event. Records are never mutated
// or deleted, and each record feeds the learner exactly once, at creation.
type Interaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	DealerID    uuid.UUID       `json:"dealer_id" db:"dealer_id"`
	MatchID     *uuid.UUID      `json:"match_id" db:"match_id"`
	Type        InteractionType `json:"type" db:"type"`
	DurationSec *int            `json:"duration_sec" db:"duration_sec"`
	Metadata    json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
