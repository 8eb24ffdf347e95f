package models

import (
	"fmt"
	"time"
)

// SchemaVersion is stamped into every persisted document. Loaders reject
// payloads whose required fields are missing rather than guessing.
const SchemaVersion = 1

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation transcript sent to the provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LifecycleState classifies where an adventure is in its lifecycle.
type LifecycleState string

const (
	StateActive    LifecycleState = "active"
	StatePaused    LifecycleState = "paused"
	StateCompleted LifecycleState = "completed"
)

// CompletionReason records why an adventure ended. It is NONE unless the
// lifecycle state is COMPLETED.
type CompletionReason string

const (
	ReasonNone     CompletionReason = "none"
	ReasonStoryEnd CompletionReason = "story_end"
	ReasonDeath    CompletionReason = "death"
	ReasonVictory  CompletionReason = "victory"
)

// AdventureRecord is one narrative instance owned by a user. The transcript
// is append-only: the two seed entries are written at creation and every turn
// appends a user/assistant pair. Order is the provider's conversation context
// and must never change.
type AdventureRecord struct {
	SchemaVersion    int              `json:"schema_version"`
	AdventureID      string           `json:"adventure_id"`
	OwnerID          string           `json:"owner_id"`
	Theme            string           `json:"theme"`
	Transcript       []Message        `json:"transcript"`
	TurnCount        int              `json:"turn_count"`
	TotalActionCount int              `json:"total_action_count"`
	State            LifecycleState   `json:"lifecycle_state"`
	CompletionReason CompletionReason `json:"completion_reason"`
	CreatedAt        time.Time        `json:"created_at"`
	LastActionAt     time.Time        `json:"last_action_at"`
	PausedAt         *time.Time       `json:"paused_at,omitempty"`
	ResumedAt        *time.Time       `json:"resumed_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// Validate checks the fields a loaded document must carry. A record failing
// validation is treated as corrupt and skipped by callers.
func (r *AdventureRecord) Validate() error {
	if r.AdventureID == "" {
		return fmt.Errorf("adventure record missing adventure_id")
	}
	if r.OwnerID == "" {
		return fmt.Errorf("adventure record %s missing owner_id", r.AdventureID)
	}
	switch r.State {
	case StateActive, StatePaused, StateCompleted:
	default:
		return fmt.Errorf("adventure record %s has invalid lifecycle state %q", r.AdventureID, r.State)
	}
	switch r.CompletionReason {
	case ReasonNone, ReasonStoryEnd, ReasonDeath, ReasonVictory:
	default:
		return fmt.Errorf("adventure record %s has invalid completion reason %q", r.AdventureID, r.CompletionReason)
	}
	if r.State == StateCompleted && r.CompletionReason == ReasonNone {
		return fmt.Errorf("adventure record %s completed without a reason", r.AdventureID)
	}
	if len(r.Transcript) == 0 {
		return fmt.Errorf("adventure record %s has an empty transcript", r.AdventureID)
	}
	for i, msg := range r.Transcript {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("adventure record %s transcript[%d] has invalid role %q", r.AdventureID, i, msg.Role)
		}
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("adventure record %s missing created_at", r.AdventureID)
	}
	return nil
}

// Clone returns a deep copy so callers can hand records out without exposing
// the engine's mutable state.
func (r *AdventureRecord) Clone() *AdventureRecord {
	cp := *r
	cp.Transcript = append([]Message(nil), r.Transcript...)
	cp.PausedAt = cloneTime(r.PausedAt)
	cp.ResumedAt = cloneTime(r.ResumedAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Summary projects the record into the lightweight form kept in the owner's
// index, so listings never load full transcripts.
func (r *AdventureRecord) Summary() AdventureSummary {
	return AdventureSummary{
		AdventureID:      r.AdventureID,
		Theme:            r.Theme,
		State:            r.State,
		TurnCount:        r.TurnCount,
		TotalActionCount: r.TotalActionCount,
		CompletionReason: r.CompletionReason,
		CreatedAt:        r.CreatedAt,
		LastActionAt:     r.LastActionAt,
	}
}

// AdventureSummary is the index projection of an AdventureRecord.
type AdventureSummary struct {
	AdventureID      string           `json:"adventure_id"`
	Theme            string           `json:"theme"`
	State            LifecycleState   `json:"lifecycle_state"`
	TurnCount        int              `json:"turn_count"`
	TotalActionCount int              `json:"total_action_count"`
	CompletionReason CompletionReason `json:"completion_reason"`
	CreatedAt        time.Time        `json:"created_at"`
	LastActionAt     time.Time        `json:"last_action_at"`
}

// UserIndex is the per-owner metadata document: one summary per adventure
// plus the owner's current (default-target) adventure.
type UserIndex struct {
	SchemaVersion      int                         `json:"schema_version"`
	OwnerID            string                      `json:"owner_id"`
	CurrentAdventureID string                      `json:"current_adventure_id,omitempty"`
	Summaries          map[string]AdventureSummary `json:"adventure_summaries"`
}

// NewUserIndex creates an empty index for an owner.
func NewUserIndex(ownerID string) *UserIndex {
	return &UserIndex{
		SchemaVersion: SchemaVersion,
		OwnerID:       ownerID,
		Summaries:     make(map[string]AdventureSummary),
	}
}

// Validate checks a loaded index document.
func (i *UserIndex) Validate() error {
	if i.OwnerID == "" {
		return fmt.Errorf("user index missing owner_id")
	}
	if i.Summaries == nil {
		return fmt.Errorf("user index for %s missing adventure_summaries", i.OwnerID)
	}
	return nil
}

// Put inserts or refreshes a summary.
func (i *UserIndex) Put(s AdventureSummary) {
	if i.Summaries == nil {
		i.Summaries = make(map[string]AdventureSummary)
	}
	i.Summaries[s.AdventureID] = s
}

// Remove drops a summary. The current pointer is left to the caller, which
// knows which adventure should become the new default.
func (i *UserIndex) Remove(adventureID string) {
	delete(i.Summaries, adventureID)
}

// MostRecentResumable returns the non-completed adventure with the latest
// last-action timestamp, or ok=false when none qualifies.
func (i *UserIndex) MostRecentResumable() (string, bool) {
	var best string
	var bestAt time.Time
	for id, s := range i.Summaries {
		if s.State == StateCompleted {
			continue
		}
		if best == "" || s.LastActionAt.After(bestAt) {
			best = id
			bestAt = s.LastActionAt
		}
	}
	return best, best != ""
}

// Clone returns a deep copy of the index.
func (i *UserIndex) Clone() *UserIndex {
	cp := *i
	cp.Summaries = make(map[string]AdventureSummary, len(i.Summaries))
	for k, v := range i.Summaries {
		cp.Summaries[k] = v
	}
	return &cp
}
