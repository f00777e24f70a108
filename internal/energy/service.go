package energy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"enerkpi.org/internal/auth"
	"enerkpi.org/internal/ids"
)

// Service wraps the store with validation, derived-value maintenance and
// audit capture. Snapshots are taken before and after each mutation and
// recorded in the same call path; an audit failure fails the operation.
type Service struct {
	store Store
	audit auth.AuditRecorder
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store, recorder auth.AuditRecorder, log zerolog.Logger) *Service {
	return &Service{store: store, audit: recorder, log: log, now: time.Now}
}

func validPeriod(year, month int) bool {
	return year >= 2000 && year <= 2100 && month >= 1 && month <= 12
}

func (s *Service) CreateElectricity(ctx context.Context, d *ElectricityData) (*ElectricityData, error) {
	if d == nil || !validPeriod(d.Year, d.Month) {
		return nil, ErrInvalidInput
	}
	now := s.now().UTC()
	d.ID = ids.New()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.ComputePowerFactors()
	if actor, ok := auth.PrincipalFromContext(ctx); ok {
		d.CreatedBy = actor.ID
	}
	if err := s.store.CreateElectricity(ctx, d); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, auth.ActionCreate, KindElectricity, d.ID, nil, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) UpdateElectricity(ctx context.Context, d *ElectricityData) (*ElectricityData, error) {
	if d == nil || d.ID == "" || !validPeriod(d.Year, d.Month) {
		return nil, ErrInvalidInput
	}
	before, err := s.store.FindElectricity(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.CreatedBy = before.CreatedBy
	d.CreatedAt = before.CreatedAt
	d.UpdatedAt = s.now().UTC()
	d.ComputePowerFactors()
	if err := s.store.UpdateElectricity(ctx, d); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, auth.ActionUpdate, KindElectricity, d.ID, before, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) FindElectricity(ctx context.Context, id string) (*ElectricityData, error) {
	return s.store.FindElectricity(ctx, id)
}

func (s *Service) DeleteElectricity(ctx context.Context, id string) error {
	before, err := s.store.FindElectricity(ctx, id)
	if err != nil {
		return err
	}
	// Audit only once the row is actually gone.
	if err := s.store.DeleteElectricity(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, auth.ActionDelete, KindElectricity, id, before, nil)
}

func (s *Service) ListElectricity(ctx context.Context) ([]ElectricityData, error) {
	return s.store.ListElectricity(ctx)
}

func (s *Service) CreateWater(ctx context.Context, d *WaterData) (*WaterData, error) {
	if d == nil || !validPeriod(d.Year, d.Month) {
		return nil, ErrInvalidInput
	}
	now := s.now().UTC()
	d.ID = ids.New()
	d.CreatedAt = now
	d.UpdatedAt = now
	if actor, ok := auth.PrincipalFromContext(ctx); ok {
		d.CreatedBy = actor.ID
	}
	if err := s.store.CreateWater(ctx, d); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, auth.ActionCreate, KindWater, d.ID, nil, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) UpdateWater(ctx context.Context, d *WaterData) (*WaterData, error) {
	if d == nil || d.ID == "" || !validPeriod(d.Year, d.Month) {
		return nil, ErrInvalidInput
	}
	before, err := s.store.FindWater(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.CreatedBy = before.CreatedBy
	d.CreatedAt = before.CreatedAt
	d.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateWater(ctx, d); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, auth.ActionUpdate, KindWater, d.ID, before, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) FindWater(ctx context.Context, id string) (*WaterData, error) {
	return s.store.FindWater(ctx, id)
}

func (s *Service) DeleteWater(ctx context.Context, id string) error {
	before, err := s.store.FindWater(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWater(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, auth.ActionDelete, KindWater, id, before, nil)
}

func (s *Service) ListWater(ctx context.Context) ([]WaterData, error) {
	return s.store.ListWater(ctx)
}

// ConsumptionSummary aggregates electricity consumption, optionally filtered
// by month and year (zero means "any"). Used by the chat router.
func (s *Service) ConsumptionSummary(ctx context.Context, month, year int) (map[string]any, error) {
	rows, err := s.store.ListElectricity(ctx)
	if err != nil {
		return nil, err
	}
	var total float64
	var count int
	for _, row := range rows {
		if month != 0 && row.Month != month {
			continue
		}
		if year != 0 && row.Year != year {
			continue
		}
		total += row.TotalActiveEnergy()
		count++
	}
	summary := map[string]any{
		"total_consumption": total,
		"records":           count,
	}
	if count > 0 {
		summary["average_consumption"] = total / float64(count)
	}
	if month != 0 {
		summary["month"] = month
	}
	if year != 0 {
		summary["year"] = year
	}
	return summary, nil
}

// YearComparison compares total electricity consumption of two years.
func (s *Service) YearComparison(ctx context.Context, year1, year2 int) (map[string]any, error) {
	rows, err := s.store.ListElectricity(ctx)
	if err != nil {
		return nil, err
	}
	var total1, total2 float64
	for _, row := range rows {
		switch row.Year {
		case year1:
			total1 += row.TotalActiveEnergy()
		case year2:
			total2 += row.TotalActiveEnergy()
		}
	}
	comparison := map[string]any{
		"year1":             year1,
		"year2":             year2,
		"consumption_year1": total1,
		"consumption_year2": total2,
		"difference":        total2 - total1,
	}
	if total1 != 0 {
		comparison["percentage_change"] = (total2 - total1) / total1 * 100
	}
	return comparison, nil
}
