package anomaly

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"enerkpi.org/internal/auth"
)

// Statistics is the dashboard summary of the anomaly backlog.
type Statistics struct {
	ActiveCount   int64  `json:"total_active_anomalies"`
	CriticalCount int64  `json:"critical_anomalies"`
	LastDetection string `json:"last_detection"`
}

// PeriodStatistics is the summary for a bounded lookback window.
type PeriodStatistics struct {
	Total     int64     `json:"total"`
	Critical  int64     `json:"critical"`
	Period    string    `json:"period"`
	StartDate time.Time `json:"start_date"`
}

// Service answers anomaly queries and handles resolution.
type Service struct {
	store Store
	audit auth.AuditRecorder
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, recorder auth.AuditRecorder, log zerolog.Logger) *Service {
	return &Service{store: store, audit: recorder, log: log, now: time.Now}
}

// List returns anomalies filtered by resolution state.
func (s *Service) List(ctx context.Context, resolved bool) ([]Anomaly, error) {
	return s.store.List(ctx, resolved)
}

// ActiveAnomalies lists unresolved findings, newest first.
func (s *Service) ActiveAnomalies(ctx context.Context) ([]Anomaly, error) {
	return s.store.List(ctx, false)
}

// CriticalAnomalies lists unresolved findings above the critical threshold.
func (s *Service) CriticalAnomalies(ctx context.Context) ([]Anomaly, error) {
	return s.store.ListCriticalActive(ctx, CriticalScoreThreshold)
}

// AnomaliesByDay lists findings detected on the given calendar day.
func (s *Service) AnomaliesByDay(ctx context.Context, day time.Time) ([]Anomaly, error) {
	return s.store.ListByDay(ctx, day)
}

// WaterAnomalies lists water findings, optionally narrowed by month and
// year (zero means "any").
func (s *Service) WaterAnomalies(ctx context.Context, month, year int) ([]Anomaly, error) {
	return s.store.ListWater(ctx, month, year)
}

// CriticalSince lists unresolved critical findings detected after the given
// instant.
func (s *Service) CriticalSince(ctx context.Context, since time.Time) ([]Anomaly, error) {
	return s.store.ListCriticalSince(ctx, CriticalScoreThreshold, since)
}

// Resolve marks a finding resolved. Resolving an already-resolved finding is
// a no-op, so resolution notes are appended at most once.
func (s *Service) Resolve(ctx context.Context, id, resolvedBy, notes string) (*Anomaly, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Resolved {
		return a, nil
	}
	before := *a
	resolvedAt := s.now().UTC()
	a.Resolved = true
	a.ResolvedAt = &resolvedAt
	a.ResolvedBy = strings.TrimSpace(resolvedBy)
	if notes = strings.TrimSpace(notes); notes != "" {
		a.Description += " | Résolution: " + notes
	}
	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, auth.ActionUpdate, "anomaly", a.ID, &before, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Statistics summarizes the active backlog for the dashboard.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	active, err := s.store.CountActive(ctx)
	if err != nil {
		return Statistics{}, err
	}
	critical, err := s.store.ListCriticalActive(ctx, CriticalScoreThreshold)
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{
		ActiveCount:   active,
		CriticalCount: int64(len(critical)),
		LastDetection: "Aucune",
	}
	last, err := s.store.LatestDetection(ctx)
	if err == nil && !last.IsZero() {
		stats.LastDetection = last.Format(time.RFC3339)
	}
	return stats, nil
}

// StatisticsForPeriod summarizes activity inside a lookback window. Unknown
// period strings fall back to "month" rather than erroring.
func (s *Service) StatisticsForPeriod(ctx context.Context, period string) (PeriodStatistics, error) {
	period = normalizePeriod(period)
	start := s.periodStart(period)
	total, err := s.store.CountActiveSince(ctx, start)
	if err != nil {
		return PeriodStatistics{}, err
	}
	critical, err := s.store.CountCriticalSince(ctx, CriticalScoreThreshold, start)
	if err != nil {
		return PeriodStatistics{}, err
	}
	return PeriodStatistics{
		Total:     total,
		Critical:  critical,
		Period:    period,
		StartDate: start,
	}, nil
}

// PeriodStart exposes the window computation for the chat router.
func (s *Service) PeriodStart(period string) time.Time {
	return s.periodStart(normalizePeriod(period))
}

func normalizePeriod(period string) string {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "today":
		return "today"
	case "yesterday":
		return "yesterday"
	case "week":
		return "week"
	default:
		return "month"
	}
}

func (s *Service) periodStart(period string) time.Time {
	now := s.now().UTC()
	switch period {
	case "today":
		return now.Truncate(24 * time.Hour)
	case "yesterday":
		return now.Add(-24 * time.Hour).Truncate(24 * time.Hour)
	case "week":
		return now.AddDate(0, 0, -7)
	default:
		return now.AddDate(0, -1, 0)
	}
}
