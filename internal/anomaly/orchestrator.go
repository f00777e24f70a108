package anomaly

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"enerkpi.org/internal/anomaly/scorer"
	"enerkpi.org/internal/energy"
	"enerkpi.org/internal/ids"
	"enerkpi.org/internal/obs"
)

// Scorer abstracts the external scoring collaborator.
type Scorer interface {
	Score(ctx context.Context, payload map[string]any) (scorer.Result, error)
}

// EnergySource supplies the records to scan.
type EnergySource interface {
	ListElectricity(ctx context.Context) ([]energy.ElectricityData, error)
	ListWater(ctx context.Context) ([]energy.WaterData, error)
}

// ScanReport summarizes one scan run.
type ScanReport struct {
	Scanned int `json:"scanned"`
	Flagged int `json:"flagged"`
	Failed  int `json:"failed"`
}

// Orchestrator drives anomaly detection: it walks the energy records, asks
// the scorer for a verdict and persists flagged findings exactly once per
// source record.
type Orchestrator struct {
	store  Store
	source EnergySource
	scorer Scorer
	log    zerolog.Logger
	now    func() time.Time
}

func NewOrchestrator(store Store, source EnergySource, sc Scorer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: store, source: source, scorer: sc, log: log, now: time.Now}
}

// ScanAll scores every electricity and water record. Per-record failures
// (scorer unreachable, malformed verdict, persistence hiccup) are logged and
// counted but never abort the batch. Cancellation is honored between
// records; a scan already past a record does not revisit it.
func (o *Orchestrator) ScanAll(ctx context.Context) ScanReport {
	var report ScanReport
	o.scanElectricity(ctx, &report)
	o.scanWater(ctx, &report)
	o.log.Info().
		Int("scanned", report.Scanned).
		Int("flagged", report.Flagged).
		Int("failed", report.Failed).
		Msg("anomaly scan completed")
	return report
}

func (o *Orchestrator) scanElectricity(ctx context.Context, report *ScanReport) {
	rows, err := o.source.ListElectricity(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("electricity scan: listing records failed")
		return
	}
	for i := range rows {
		if ctx.Err() != nil {
			o.log.Warn().Msg("electricity scan cancelled")
			return
		}
		row := &rows[i]
		o.scanRecord(ctx, report, SourceElectricity, row.ID, row.Year, row.Month, electricityPayload(row))
	}
}

func (o *Orchestrator) scanWater(ctx context.Context, report *ScanReport) {
	rows, err := o.source.ListWater(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("water scan: listing records failed")
		return
	}
	for i := range rows {
		if ctx.Err() != nil {
			o.log.Warn().Msg("water scan cancelled")
			return
		}
		row := &rows[i]
		o.scanRecord(ctx, report, SourceWater, row.ID, row.Year, row.Month, waterPayload(row))
	}
}

func (o *Orchestrator) scanRecord(ctx context.Context, report *ScanReport, kind, sourceID string, year, month int, payload map[string]any) {
	report.Scanned++
	result, err := o.scorer.Score(ctx, payload)
	if err != nil {
		report.Failed++
		obs.ObserveScorerFailure()
		obs.ObserveScanRecord(kind, "error")
		o.log.Warn().Err(err).Str("source", kind).Str("source_id", sourceID).Msg("scoring failed, record skipped")
		return
	}
	if !result.IsAnomaly {
		obs.ObserveScanRecord(kind, "clean")
		return
	}
	inserted, err := o.persistFinding(ctx, kind, sourceID, year, month, result)
	if err != nil {
		report.Failed++
		obs.ObserveScanRecord(kind, "error")
		o.log.Error().Err(err).Str("source", kind).Str("source_id", sourceID).Msg("persisting finding failed")
		return
	}
	obs.ObserveScanRecord(kind, "flagged")
	if inserted {
		report.Flagged++
	}
}

// persistFinding stores a flagged verdict unless a finding for the same
// (kind, source) already exists, resolved or not. The store's insert is
// atomic on the dedup key, so concurrent scans cannot double-insert.
func (o *Orchestrator) persistFinding(ctx context.Context, kind, sourceID string, year, month int, result scorer.Result) (bool, error) {
	finding := &Anomaly{
		ID:            ids.New(),
		SourceKind:    kind,
		SourceID:      sourceID,
		Year:          year,
		Month:         month,
		Description:   Describe(result.AnomalyType, result.AnomalyScore),
		AnomalyType:   result.AnomalyType,
		SeverityScore: result.AnomalyScore,
		DetectedAt:    o.now().UTC(),
	}
	inserted, err := o.store.Insert(ctx, finding)
	if err != nil {
		return false, err
	}
	if !inserted {
		o.log.Debug().Str("source", kind).Str("source_id", sourceID).Msg("finding already recorded, dropped")
	}
	return inserted, nil
}

// CheckSingle scores one payload synchronously, for real-time validation of
// data entry. It fails open: a scorer failure reports "not anomalous" so a
// degraded collaborator never blocks data entry.
func (o *Orchestrator) CheckSingle(ctx context.Context, payload map[string]any) bool {
	result, err := o.scorer.Score(ctx, payload)
	if err != nil {
		obs.ObserveScorerFailure()
		o.log.Warn().Err(err).Msg("real-time check: scorer unavailable, reporting clean")
		return false
	}
	return result.IsAnomaly
}

func electricityPayload(d *energy.ElectricityData) map[string]any {
	return map[string]any{
		"data_type":                   "electricity",
		"year":                        d.Year,
		"month":                       d.Month,
		"network60kv_active_energy":   d.Network60kvActiveEnergy,
		"network60kv_reactive_energy": d.Network60kvReactiveEnergy,
		"network60kv_peak":            d.Network60kvPeak,
		"network22kv_active_energy":   d.Network22kvActiveEnergy,
		"network22kv_reactive_energy": d.Network22kvReactiveEnergy,
		"network22kv_peak":            d.Network22kvPeak,
		"network60kv_power_factor":    d.Network60kvPowerFactor,
		"network22kv_power_factor":    d.Network22kvPowerFactor,
	}
}

func waterPayload(d *energy.WaterData) map[string]any {
	return map[string]any{
		"data_type": "water",
		"year":      d.Year,
		"month":     d.Month,
		"f3bis":     d.F3bis,
		"f3":        d.F3,
		"se2":       d.Se2,
		"se3bis":    d.Se3bis,
	}
}
