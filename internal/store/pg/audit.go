package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"enerkpi.org/internal/audit"
)

var _ audit.Store = (*AuditStore)(nil)

// AuditStore implements audit.Store on PostgreSQL. Append-only.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Append(ctx context.Context, rec *audit.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, actor_id, actor_email, action, entity_kind, entity_id, before_state, after_state, occurred_at, origin)
		values ($1,nullif($2,''),$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.ActorID, rec.ActorEmail, rec.Action, rec.EntityKind, rec.EntityID,
		nullableJSON(rec.Before), nullableJSON(rec.After), rec.OccurredAt, rec.Origin)
	return err
}

// Query filters the trail, newest first, and reports the total match count
// for pagination.
func (s *AuditStore) Query(ctx context.Context, f audit.Filter, limit, offset int) ([]audit.Record, int64, error) {
	where, args := buildAuditFilter(f)

	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_log `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select id, coalesce(actor_id,''), actor_email, action, entity_kind, entity_id,
		       before_state, after_state, occurred_at, origin
		from audit_log %s
		order by occurred_at desc
		limit $%d offset $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recs, err := scanAuditRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *AuditStore) ActivityByActor(ctx context.Context, since time.Time) ([]audit.ActorActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		select actor_email, count(*), max(occurred_at)
		from audit_log
		where occurred_at >= $1
		group by actor_email
		order by count(*) desc
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []audit.ActorActivity
	for rows.Next() {
		var a audit.ActorActivity
		if err := rows.Scan(&a.Email, &a.Count, &a.LastActionAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *AuditStore) RecentModifications(ctx context.Context, entityKind string, since time.Time) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(actor_id,''), actor_email, action, entity_kind, entity_id,
		       before_state, after_state, occurred_at, origin
		from audit_log
		where entity_kind=$1 and occurred_at >= $2
		order by occurred_at desc
		limit 100
	`, entityKind, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func buildAuditFilter(f audit.Filter) (string, []any) {
	conds := []string{"occurred_at >= $1", "occurred_at <= $2"}
	args := []any{f.From, f.To}
	if f.Action != "" {
		args = append(args, f.Action)
		conds = append(conds, fmt.Sprintf("action=$%d", len(args)))
	}
	if f.EntityKind != "" {
		args = append(args, f.EntityKind)
		conds = append(conds, fmt.Sprintf("entity_kind=$%d", len(args)))
	}
	if f.ActorEmail != "" {
		args = append(args, f.ActorEmail)
		conds = append(conds, fmt.Sprintf("lower(actor_email)=lower($%d)", len(args)))
	}
	return "where " + strings.Join(conds, " and "), args
}

func scanAuditRows(rows *sql.Rows) ([]audit.Record, error) {
	var res []audit.Record
	for rows.Next() {
		var (
			rec           audit.Record
			before, after []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.ActorEmail, &rec.Action, &rec.EntityKind,
			&rec.EntityID, &before, &after, &rec.OccurredAt, &rec.Origin); err != nil {
			return nil, err
		}
		rec.Before = before
		rec.After = after
		res = append(res, rec)
	}
	return res, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
