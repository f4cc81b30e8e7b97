package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists ledger entries in the audit_ledger table. The table
// carries a UNIQUE constraint on block_number and the application role
// has no UPDATE/DELETE grants, so the append-only discipline is enforced
// by the database as well as by this type's API.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const ledgerCols = `id, block_number, previous_hash, current_hash,
	actor_id, actor_email, actor_name,
	action_type, action_description, entity_type, entity_id,
	data_before, data_after, data_changes,
	ip_address, user_agent, request_id, metadata, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var before, after, changes, meta []byte
	err := row.Scan(
		&e.ID, &e.BlockNumber, &e.PreviousHash, &e.CurrentHash,
		&e.ActorID, &e.ActorEmail, &e.ActorName,
		&e.ActionType, &e.ActionDescription, &e.EntityType, &e.EntityID,
		&before, &after, &changes,
		&e.IPAddress, &e.UserAgent, &e.RequestID, &meta, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalSnapshot(before, &e.DataBefore); err != nil {
		return nil, err
	}
	if err := unmarshalSnapshot(after, &e.DataAfter); err != nil {
		return nil, err
	}
	if err := unmarshalSnapshot(changes, &e.DataChanges); err != nil {
		return nil, err
	}
	if err := unmarshalSnapshot(meta, &e.Metadata); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func unmarshalSnapshot(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func marshalSnapshot(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

func (s *PGStore) Insert(ctx context.Context, e *Entry) (*Entry, error) {
	before, err := marshalSnapshot(e.DataBefore)
	if err != nil {
		return nil, err
	}
	after, err := marshalSnapshot(e.DataAfter)
	if err != nil {
		return nil, err
	}
	changes, err := marshalSnapshot(e.DataChanges)
	if err != nil {
		return nil, err
	}
	meta, err := marshalSnapshot(e.Metadata)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO audit_ledger (
			block_number, previous_hash, current_hash,
			actor_id, actor_email, actor_name,
			action_type, action_description, entity_type, entity_id,
			data_before, data_after, data_changes,
			ip_address, user_agent, request_id, metadata, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
		) RETURNING id`,
		e.BlockNumber, e.PreviousHash, e.CurrentHash,
		e.ActorID, e.ActorEmail, e.ActorName,
		e.ActionType, e.ActionDescription, e.EntityType, e.EntityID,
		before, after, changes,
		e.IPAddress, e.UserAgent, e.RequestID, meta, e.CreatedAt,
	)

	stored := *e
	if err := row.Scan(&stored.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateBlock
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return &stored, nil
}

func (s *PGStore) Latest(ctx context.Context) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_ledger ORDER BY block_number DESC LIMIT 1", ledgerCols)
	e, err := scanEntry(s.pool.QueryRow(ctx, q))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tip: %w", err)
	}
	return e, nil
}

func (s *PGStore) ScanByBlock(ctx context.Context, from int64, limit int) ([]*Entry, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM audit_ledger WHERE block_number >= $1 ORDER BY block_number ASC LIMIT $2",
		ledgerCols)
	rows, err := s.pool.Query(ctx, q, from, limit)
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGStore) Find(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if f.ActorID != "" {
		where = append(where, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, f.ActorID)
		idx++
	}
	if f.ActionType != "" {
		where = append(where, fmt.Sprintf("action_type = $%d", idx))
		args = append(args, NormalizeActionType(f.ActionType))
		idx++
	}
	if f.EntityType != "" {
		where = append(where, fmt.Sprintf("entity_type = $%d", idx))
		args = append(args, NormalizeEntityType(f.EntityType))
		idx++
	}
	if f.EntityID != "" {
		where = append(where, fmt.Sprintf("entity_id = $%d", idx))
		args = append(args, f.EntityID)
		idx++
	}
	if f.Start != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *f.Start)
		idx++
	}
	if f.End != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *f.End)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_ledger %s", whereClause)
	var total int
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM audit_ledger %s ORDER BY created_at DESC, block_number DESC LIMIT $%d OFFSET $%d",
		ledgerCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *PGStore) Stats(ctx context.Context, recentWindow time.Duration) (*Stats, error) {
	st := &Stats{
		ByActionType: map[string]int64{},
		ByEntityType: map[string]int64{},
	}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(DISTINCT actor_id)
		FROM audit_ledger`,
		time.Now().UTC().Add(-recentWindow),
	).Scan(&st.TotalEntries, &st.RecentEntries, &st.UniqueActors)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}

	if err := s.groupCounts(ctx, "action_type", st.ByActionType); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, "entity_type", st.ByEntityType); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *PGStore) groupCounts(ctx context.Context, col string, dst map[string]int64) error {
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_ledger GROUP BY %s", col, col)
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("ledger stats by %s: %w", col, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", col, err)
		}
		dst[key] = n
	}
	return rows.Err()
}
