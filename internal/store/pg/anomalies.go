package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"enerkpi.org/internal/anomaly"
)

var _ anomaly.Store = (*AnomalyStore)(nil)

// AnomalyStore implements anomaly.Store on PostgreSQL.
type AnomalyStore struct {
	db *sql.DB
}

func NewAnomalyStore(db *sql.DB) *AnomalyStore { return &AnomalyStore{db: db} }

const anomalyColumns = `id, source_kind, source_id, year, month, description, anomaly_type, severity_score, detected_at, resolved, resolved_at, resolved_by`

// Insert persists a finding unless one already exists for the same
// (source_kind, source_id). The conflict clause makes the dedup atomic, so
// concurrent scans cannot double-insert.
func (s *AnomalyStore) Insert(ctx context.Context, a *anomaly.Anomaly) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into anomalies(`+anomalyColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,nullif($12,''))
		on conflict (source_kind, source_id) do nothing
	`, a.ID, a.SourceKind, a.SourceID, a.Year, a.Month, a.Description,
		a.AnomalyType, a.SeverityScore, a.DetectedAt, a.Resolved, a.ResolvedAt, a.ResolvedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *AnomalyStore) FindByID(ctx context.Context, id string) (*anomaly.Anomaly, error) {
	row := s.db.QueryRowContext(ctx, `select `+anomalyColumns+` from anomalies where id=$1`, id)
	a, err := scanAnomaly(row)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AnomalyStore) List(ctx context.Context, resolved bool) ([]anomaly.Anomaly, error) {
	return s.query(ctx, `select `+anomalyColumns+` from anomalies where resolved=$1 order by detected_at desc`, resolved)
}

func (s *AnomalyStore) ListCriticalActive(ctx context.Context, minScore float64) ([]anomaly.Anomaly, error) {
	return s.query(ctx, `
		select `+anomalyColumns+` from anomalies
		where resolved=false and severity_score > $1
		order by severity_score desc, detected_at desc
	`, minScore)
}

func (s *AnomalyStore) ListByDay(ctx context.Context, day time.Time) ([]anomaly.Anomaly, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	return s.query(ctx, `
		select `+anomalyColumns+` from anomalies
		where detected_at >= $1 and detected_at < $2
		order by detected_at desc
	`, start, start.Add(24*time.Hour))
}

func (s *AnomalyStore) ListWater(ctx context.Context, month, year int) ([]anomaly.Anomaly, error) {
	return s.query(ctx, `
		select `+anomalyColumns+` from anomalies
		where source_kind=$1 and ($2=0 or month=$2) and ($3=0 or year=$3)
		order by detected_at desc
	`, anomaly.SourceWater, month, year)
}

func (s *AnomalyStore) ListCriticalSince(ctx context.Context, minScore float64, since time.Time) ([]anomaly.Anomaly, error) {
	return s.query(ctx, `
		select `+anomalyColumns+` from anomalies
		where resolved=false and severity_score > $1 and detected_at >= $2
		order by detected_at desc
	`, minScore, since)
}

func (s *AnomalyStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `select count(*) from anomalies where resolved=false`).Scan(&n)
	return n, err
}

func (s *AnomalyStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from anomalies where resolved=false and detected_at >= $1`, since).Scan(&n)
	return n, err
}

func (s *AnomalyStore) CountCriticalSince(ctx context.Context, minScore float64, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from anomalies where resolved=false and severity_score > $1 and detected_at >= $2`,
		minScore, since).Scan(&n)
	return n, err
}

// LatestDetection reports the newest unresolved finding. A fully resolved
// backlog yields the zero time, matching an activeCount of zero.
func (s *AnomalyStore) LatestDetection(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `select max(detected_at) from anomalies where resolved=false`).Scan(&last)
	if err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (s *AnomalyStore) Update(ctx context.Context, a *anomaly.Anomaly) error {
	res, err := s.db.ExecContext(ctx, `
		update anomalies set
			description=$2, resolved=$3, resolved_at=$4, resolved_by=nullif($5,'')
		where id=$1
	`, a.ID, a.Description, a.Resolved, a.ResolvedAt, a.ResolvedBy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return anomaly.ErrNotFound
	}
	return nil
}

func (s *AnomalyStore) query(ctx context.Context, q string, args ...any) ([]anomaly.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []anomaly.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *a)
	}
	return res, rows.Err()
}

func scanAnomaly(row rowScanner) (*anomaly.Anomaly, error) {
	var (
		a          anomaly.Anomaly
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
	)
	err := row.Scan(&a.ID, &a.SourceKind, &a.SourceID, &a.Year, &a.Month, &a.Description,
		&a.AnomalyType, &a.SeverityScore, &a.DetectedAt, &a.Resolved, &resolvedAt, &resolvedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, anomaly.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		a.ResolvedBy = resolvedBy.String
	}
	return &a, nil
}
