package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// insertAttempts bounds the optimistic-concurrency retry loop when a
// concurrent writer claims the same block number.
const insertAttempts = 3

// ActionInput carries everything a caller supplies when recording an
// action. Actor identity comes from the authentication layer upstream;
// the writer trusts it as given.
type ActionInput struct {
	ActorID           string
	ActorEmail        string
	ActorName         string
	ActionType        string
	ActionDescription string
	EntityType        string
	EntityID          string
	DataBefore        map[string]any
	DataAfter         map[string]any
	IPAddress         string
	UserAgent         string
	RequestID         string
	Metadata          map[string]any
}

// Writer appends entries to the ledger. The read-tip-then-insert sequence
// is a race under concurrent writers, so it is protected twice: a mutex
// serialises writers within this process, and the store's unique
// block_number constraint plus a bounded retry loop resolves races
// between processes.
type Writer struct {
	mu      sync.Mutex
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
}

// NewWriter creates a Writer. timeout bounds each best-effort Record
// call; LogAction relies on the caller's context instead.
func NewWriter(store Store, logger zerolog.Logger, timeout time.Duration) *Writer {
	return &Writer{store: store, logger: logger, timeout: timeout}
}

// LogAction records one action as the next entry in the chain and
// returns the persisted entry. It reads the chain tip, computes the
// field diff, assembles the candidate, hashes its full canonical
// content, and inserts it.
func (w *Writer) LogAction(ctx context.Context, in ActionInput) (*Entry, error) {
	if NormalizeActionType(in.ActionType) == "" {
		return nil, fmt.Errorf("ledger: action type is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		tip, err := w.store.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("read chain tip: %w", err)
		}

		entry := w.buildEntry(in, tip)
		stored, err := w.store.Insert(ctx, entry)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, ErrDuplicateBlock) {
			return nil, err
		}
		// Another writer claimed this block; refresh the tip and retry.
		lastErr = err
	}
	return nil, fmt.Errorf("append after %d attempts: %w", insertAttempts, lastErr)
}

// Record is the best-effort variant used on business request paths.
// Failures are logged for operational visibility and swallowed so an
// audit outage never fails the action that triggered logging. The write
// is bounded by the writer's timeout and survives cancellation of the
// parent request context.
func (w *Writer) Record(ctx context.Context, in ActionInput) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	if _, err := w.LogAction(ctx, in); err != nil {
		w.logger.Error().Err(err).
			Str("action_type", NormalizeActionType(in.ActionType)).
			Str("entity_type", NormalizeEntityType(in.EntityType)).
			Str("entity_id", in.EntityID).
			Str("actor_id", in.ActorID).
			Msg("audit write dropped")
	}
}

func (w *Writer) buildEntry(in ActionInput, tip *Entry) *Entry {
	block := int64(1)
	prevHash := ""
	if tip != nil {
		block = tip.BlockNumber + 1
		prevHash = tip.CurrentHash
	}

	entry := &Entry{
		BlockNumber:       block,
		PreviousHash:      prevHash,
		ActorID:           in.ActorID,
		ActorEmail:        in.ActorEmail,
		ActorName:         in.ActorName,
		ActionType:        NormalizeActionType(in.ActionType),
		ActionDescription: in.ActionDescription,
		EntityType:        NormalizeEntityType(in.EntityType),
		EntityID:          in.EntityID,
		DataBefore:        in.DataBefore,
		DataAfter:         in.DataAfter,
		DataChanges:       Diff(in.DataBefore, in.DataAfter),
		IPAddress:         in.IPAddress,
		UserAgent:         in.UserAgent,
		RequestID:         in.RequestID,
		Metadata:          in.Metadata,
		// Postgres stores timestamptz at microsecond precision; truncate
		// up front so recomputing the hash from a scanned row matches.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	entry.CurrentHash = entry.ComputeHash()
	return entry
}
