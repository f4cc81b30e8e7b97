package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateBlock is returned by Store.Insert when another writer won
// the race for the same block number. The writer retries with a fresh
// chain tip.
var ErrDuplicateBlock = errors.New("ledger: duplicate block number")

// Store is the append-only persistence contract for ledger entries.
// Implementations must guarantee durability of a successful Insert and
// stable ordering by creation time; they never expose update or delete.
type Store interface {
	// Insert persists a fully assembled entry (including its hash) and
	// returns the stored row. It fails with ErrDuplicateBlock when the
	// block number is already taken.
	Insert(ctx context.Context, e *Entry) (*Entry, error)

	// Latest returns the most recently created entry, the current chain
	// tip. It returns (nil, nil) when the ledger is empty.
	Latest(ctx context.Context) (*Entry, error)

	// ScanByBlock returns up to limit entries with block numbers >= from,
	// ordered by block number ascending. Used for batched chain walks.
	ScanByBlock(ctx context.Context, from int64, limit int) ([]*Entry, error)

	// Find returns a page of entries matching the filter, ordered by
	// creation time descending, together with the total match count.
	Find(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)

	// Stats aggregates ledger counters; recentWindow bounds the
	// "recent entries" counter.
	Stats(ctx context.Context, recentWindow time.Duration) (*Stats, error)
}
