package energy

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	ErrNotFound     = errors.New("energy: not found")
	ErrInvalidInput = errors.New("energy: invalid input")
)

// Entity kinds as they appear in audit records and scorer payloads.
const (
	KindElectricity = "electricity_data"
	KindWater       = "water_data"
)

// ElectricityData is one monthly electricity reading across the 60kV and
// 22kV networks. Power factors are derived, never entered by hand.
type ElectricityData struct {
	ID    string `json:"id"`
	Year  int    `json:"year"`
	Month int    `json:"month"`

	Network60kvActiveEnergy   float64 `json:"network60kv_active_energy"`
	Network60kvReactiveEnergy float64 `json:"network60kv_reactive_energy"`
	Network60kvPowerFactor    float64 `json:"network60kv_power_factor"`
	Network60kvPeak           float64 `json:"network60kv_peak"`

	Network22kvActiveEnergy   float64 `json:"network22kv_active_energy"`
	Network22kvReactiveEnergy float64 `json:"network22kv_reactive_energy"`
	Network22kvPowerFactor    float64 `json:"network22kv_power_factor"`
	Network22kvPeak           float64 `json:"network22kv_peak"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputePowerFactors recalculates both power factors from the raw
// energies: cos(atan(reactive/active)), 0 when active energy is zero.
func (d *ElectricityData) ComputePowerFactors() {
	d.Network60kvPowerFactor = powerFactor(d.Network60kvActiveEnergy, d.Network60kvReactiveEnergy)
	d.Network22kvPowerFactor = powerFactor(d.Network22kvActiveEnergy, d.Network22kvReactiveEnergy)
}

// TotalActiveEnergy sums both networks.
func (d *ElectricityData) TotalActiveEnergy() float64 {
	return d.Network60kvActiveEnergy + d.Network22kvActiveEnergy
}

func powerFactor(active, reactive float64) float64 {
	if active == 0 {
		return 0
	}
	return math.Cos(math.Atan(reactive / active))
}

// WaterData is one monthly water reading across the four production points.
type WaterData struct {
	ID    string `json:"id"`
	Year  int    `json:"year"`
	Month int    `json:"month"`

	F3bis  float64 `json:"f3bis"`
	F3     float64 `json:"f3"`
	Se2    float64 `json:"se2"`
	Se3bis float64 `json:"se3bis"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalProduction sums the four production points.
func (d *WaterData) TotalProduction() float64 {
	return d.F3bis + d.F3 + d.Se2 + d.Se3bis
}

// Store persists electricity and water readings.
type Store interface {
	CreateElectricity(ctx context.Context, d *ElectricityData) error
	FindElectricity(ctx context.Context, id string) (*ElectricityData, error)
	ListElectricity(ctx context.Context) ([]ElectricityData, error)
	UpdateElectricity(ctx context.Context, d *ElectricityData) error
	DeleteElectricity(ctx context.Context, id string) error

	CreateWater(ctx context.Context, d *WaterData) error
	FindWater(ctx context.Context, id string) (*WaterData, error)
	ListWater(ctx context.Context) ([]WaterData, error)
	UpdateWater(ctx context.Context, d *WaterData) error
	DeleteWater(ctx context.Context, id string) error
}
