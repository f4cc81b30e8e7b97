package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known action types. LogAction accepts arbitrary tags; these cover
// the platform's standard operations.
const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionApprove = "APPROVE"
	ActionReview  = "REVIEW"
)

// Entry is a single record in the append-only audit ledger. Once persisted
// an entry is never updated or deleted; integrity is protected by the hash
// chain (PreviousHash links to the prior entry, CurrentHash covers the
// entry's own content).
//
// Request provenance (IPAddress, UserAgent, RequestID) is part of the
// hashed envelope. A legitimate in-place rewrite of those fields (for
// example normalising addresses behind a new proxy) is therefore
// indistinguishable from tampering; that strictness is intentional.
type Entry struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	BlockNumber       int64          `db:"block_number" json:"block_number"`
	PreviousHash      string         `db:"previous_hash" json:"previous_hash"`
	CurrentHash       string         `db:"current_hash" json:"current_hash"`
	ActorID           string         `db:"actor_id" json:"actor_id"`
	ActorEmail        string         `db:"actor_email" json:"actor_email"`
	ActorName         string         `db:"actor_name" json:"actor_name"`
	ActionType        string         `db:"action_type" json:"action_type"`
	ActionDescription string         `db:"action_description" json:"action_description"`
	EntityType        string         `db:"entity_type" json:"entity_type"`
	EntityID          string         `db:"entity_id" json:"entity_id"`
	DataBefore        map[string]any `db:"data_before" json:"data_before,omitempty"`
	DataAfter         map[string]any `db:"data_after" json:"data_after,omitempty"`
	DataChanges       map[string]any `db:"data_changes" json:"data_changes,omitempty"`
	IPAddress         string         `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent         string         `db:"user_agent" json:"user_agent,omitempty"`
	RequestID         string         `db:"request_id" json:"request_id,omitempty"`
	Metadata          map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// ComputeHash canonicalises the entry's content (everything except ID and
// CurrentHash) and returns its SHA-256 digest. Recomputing the hash of a
// stored entry must reproduce CurrentHash exactly; any divergence means
// the record was altered after the fact.
func (e *Entry) ComputeHash() string {
	return Digest(CanonicalBytes(map[string]any{
		"block_number":       e.BlockNumber,
		"previous_hash":      e.PreviousHash,
		"actor_id":           e.ActorID,
		"actor_email":        e.ActorEmail,
		"actor_name":         e.ActorName,
		"action_type":        e.ActionType,
		"action_description": e.ActionDescription,
		"entity_type":        e.EntityType,
		"entity_id":          e.EntityID,
		"data_before":        e.DataBefore,
		"data_after":         e.DataAfter,
		"data_changes":       e.DataChanges,
		"ip_address":         e.IPAddress,
		"user_agent":         e.UserAgent,
		"request_id":         e.RequestID,
		"metadata":           e.Metadata,
		"created_at":         e.CreatedAt,
	}))
}

// NormalizeActionType maps an action tag to its canonical uppercase form.
func NormalizeActionType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeEntityType maps an entity type to its canonical lowercase form.
func NormalizeEntityType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Filter selects entries for queries. Zero values mean "any".
type Filter struct {
	ActorID    string
	ActionType string
	EntityType string
	EntityID   string
	Start      *time.Time
	End        *time.Time
}

// Stats summarises the ledger for the admin dashboard.
type Stats struct {
	TotalEntries  int64            `json:"total_entries"`
	RecentEntries int64            `json:"recent_entries"`
	UniqueActors  int64            `json:"unique_actors"`
	ByActionType  map[string]int64 `json:"by_action_type"`
	ByEntityType  map[string]int64 `json:"by_entity_type"`
}

// BrokenLink reports a chain-structure failure: the entry at BlockNumber
// does not correctly follow its predecessor (reordering, deletion or
// insertion of records).
type BrokenLink struct {
	BlockNumber int64  `json:"block_number"`
	Expected    string `json:"expected_previous_hash"`
	Got         string `json:"got_previous_hash"`
	Reason      string `json:"reason"`
}

// TamperedEntry reports a content failure: recomputing the entry's hash
// from its stored fields no longer reproduces the stored CurrentHash.
type TamperedEntry struct {
	BlockNumber  int64  `json:"block_number"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
}

// Report is the result of a full chain verification. An integrity
// violation is a normal outcome reported here, not an error.
type Report struct {
	Verified        bool            `json:"verified"`
	EntriesChecked  int             `json:"entries_checked"`
	BrokenLinks     []BrokenLink    `json:"broken_links"`
	TamperedEntries []TamperedEntry `json:"tampered_entries"`
	Message         string          `json:"message"`
}
