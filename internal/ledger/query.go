package ledger

import (
	"context"
	"time"
)

// DefaultStatsWindow bounds the "recent entries" counter in Stats.
const DefaultStatsWindow = 24 * time.Hour

// MaxHistoryPage caps EntityHistory results. "Full history" requests are
// still bounded so a hot entity cannot pull the whole table.
const MaxHistoryPage = 1000

// QueryService serves read-only, side-effect-free views of the ledger.
type QueryService struct {
	store        Store
	recentWindow time.Duration
}

func NewQueryService(store Store, recentWindow time.Duration) *QueryService {
	if recentWindow <= 0 {
		recentWindow = DefaultStatsWindow
	}
	return &QueryService{store: store, recentWindow: recentWindow}
}

// Entries returns a filtered page ordered by creation time descending,
// plus the total match count.
func (q *QueryService) Entries(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return q.store.Find(ctx, f, limit, offset)
}

// EntityHistory returns the recorded actions for one entity, most recent
// first, capped at MaxHistoryPage.
func (q *QueryService) EntityHistory(ctx context.Context, entityType, entityID string) ([]*Entry, int, error) {
	f := Filter{
		EntityType: NormalizeEntityType(entityType),
		EntityID:   entityID,
	}
	return q.store.Find(ctx, f, MaxHistoryPage, 0)
}

// ActorActivity returns a page of the given actor's recorded actions.
func (q *QueryService) ActorActivity(ctx context.Context, actorID string, limit, offset int) ([]*Entry, int, error) {
	return q.store.Find(ctx, Filter{ActorID: actorID}, limit, offset)
}

// Stats aggregates ledger counters for the admin dashboard.
func (q *QueryService) Stats(ctx context.Context) (*Stats, error) {
	return q.store.Stats(ctx, q.recentWindow)
}
