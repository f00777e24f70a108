package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CriticalScoreThreshold is the single severity cutoff above which an
// anomaly counts as critical. Every consumer reads this constant; it is not
// a per-call parameter.
const CriticalScoreThreshold = 0.7

// Source kinds of anomaly-bearing records.
const (
	SourceElectricity = "ELECTRICITY"
	SourceWater       = "WATER"
)

// Anomaly types returned by the scorer.
const (
	TypeDataEntryError   = "DATA_ENTRY_ERROR"
	TypeConsumptionSpike = "CONSUMPTION_SPIKE"
	TypeWaterLeak        = "WATER_LEAK"
	TypeLowPowerFactor   = "LOW_POWER_FACTOR"
	TypeProductionIssue  = "PRODUCTION_ISSUE"
)

var ErrNotFound = errors.New("anomaly: not found")

// Anomaly is one flagged finding. At most one row exists per
// (SourceKind, SourceID), enforced by a unique constraint; resolution never
// deletes the row, it only marks it.
type Anomaly struct {
	ID            string     `json:"id"`
	SourceKind    string     `json:"source_kind"`
	SourceID      string     `json:"source_id"`
	Year          int        `json:"year"`
	Month         int        `json:"month"`
	Description   string     `json:"description"`
	AnomalyType   string     `json:"anomaly_type"`
	SeverityScore float64    `json:"severity_score"`
	DetectedAt    time.Time  `json:"detected_at"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
}

// IsCritical reports whether the finding crosses the critical threshold.
func (a *Anomaly) IsCritical() bool {
	return a.SeverityScore > CriticalScoreThreshold
}

// Store persists anomalies. Insert must be atomic with respect to the dedup
// key: two concurrent inserts for the same (kind, source) yield exactly one
// row, and the loser sees inserted=false rather than an error.
type Store interface {
	Insert(ctx context.Context, a *Anomaly) (inserted bool, err error)
	FindByID(ctx context.Context, id string) (*Anomaly, error)
	List(ctx context.Context, resolved bool) ([]Anomaly, error)
	ListCriticalActive(ctx context.Context, minScore float64) ([]Anomaly, error)
	ListByDay(ctx context.Context, day time.Time) ([]Anomaly, error)
	ListWater(ctx context.Context, month, year int) ([]Anomaly, error)
	ListCriticalSince(ctx context.Context, minScore float64, since time.Time) ([]Anomaly, error)
	CountActive(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
	CountCriticalSince(ctx context.Context, minScore float64, since time.Time) (int64, error)
	LatestDetection(ctx context.Context) (time.Time, error)
	Update(ctx context.Context, a *Anomaly) error
}

// Describe renders the operator-facing description for a finding.
func Describe(anomalyType string, score float64) string {
	switch anomalyType {
	case TypeDataEntryError:
		return fmt.Sprintf("Erreur de saisie suspectée (score: %.2f). Vérifiez les valeurs saisies.", score)
	case TypeConsumptionSpike:
		return fmt.Sprintf("Pic de consommation anormal détecté (score: %.2f). Vérifiez l'état des équipements.", score)
	case TypeWaterLeak:
		return fmt.Sprintf("Suspicion de fuite d'eau (score: %.2f). Inspection recommandée.", score)
	case TypeLowPowerFactor:
		return fmt.Sprintf("Facteur de puissance anormalement bas (score: %.2f). Optimisation nécessaire.", score)
	case TypeProductionIssue:
		return fmt.Sprintf("Problème de production détecté (score: %.2f). Vérification requise.", score)
	default:
		return fmt.Sprintf("Anomalie détectée (score: %.2f). Investigation recommandée.", score)
	}
}
