package pg

import (
	"context"
	"database/sql"
	"errors"

	"enerkpi.org/internal/energy"
)

var _ energy.Store = (*EnergyStore)(nil)

// EnergyStore implements energy.Store on PostgreSQL.
type EnergyStore struct {
	db *sql.DB
}

func NewEnergyStore(db *sql.DB) *EnergyStore { return &EnergyStore{db: db} }

const electricityColumns = `id, year, month,
	network60kv_active_energy, network60kv_reactive_energy, network60kv_power_factor, network60kv_peak,
	network22kv_active_energy, network22kv_reactive_energy, network22kv_power_factor, network22kv_peak,
	coalesce(created_by,''), created_at, updated_at`

func (s *EnergyStore) CreateElectricity(ctx context.Context, d *energy.ElectricityData) error {
	_, err := s.db.ExecContext(ctx, `
		insert into electricity_data(id, year, month,
			network60kv_active_energy, network60kv_reactive_energy, network60kv_power_factor, network60kv_peak,
			network22kv_active_energy, network22kv_reactive_energy, network22kv_power_factor, network22kv_peak,
			created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,nullif($12,''),$13,$14)
	`, d.ID, d.Year, d.Month,
		d.Network60kvActiveEnergy, d.Network60kvReactiveEnergy, d.Network60kvPowerFactor, d.Network60kvPeak,
		d.Network22kvActiveEnergy, d.Network22kvReactiveEnergy, d.Network22kvPowerFactor, d.Network22kvPeak,
		d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *EnergyStore) FindElectricity(ctx context.Context, id string) (*energy.ElectricityData, error) {
	row := s.db.QueryRowContext(ctx, `select `+electricityColumns+` from electricity_data where id=$1`, id)
	var d energy.ElectricityData
	err := row.Scan(&d.ID, &d.Year, &d.Month,
		&d.Network60kvActiveEnergy, &d.Network60kvReactiveEnergy, &d.Network60kvPowerFactor, &d.Network60kvPeak,
		&d.Network22kvActiveEnergy, &d.Network22kvReactiveEnergy, &d.Network22kvPowerFactor, &d.Network22kvPeak,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, energy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *EnergyStore) ListElectricity(ctx context.Context) ([]energy.ElectricityData, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+electricityColumns+` from electricity_data order by year desc, month desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []energy.ElectricityData
	for rows.Next() {
		var d energy.ElectricityData
		if err := rows.Scan(&d.ID, &d.Year, &d.Month,
			&d.Network60kvActiveEnergy, &d.Network60kvReactiveEnergy, &d.Network60kvPowerFactor, &d.Network60kvPeak,
			&d.Network22kvActiveEnergy, &d.Network22kvReactiveEnergy, &d.Network22kvPowerFactor, &d.Network22kvPeak,
			&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s *EnergyStore) UpdateElectricity(ctx context.Context, d *energy.ElectricityData) error {
	res, err := s.db.ExecContext(ctx, `
		update electricity_data set
			year=$2, month=$3,
			network60kv_active_energy=$4, network60kv_reactive_energy=$5,
			network60kv_power_factor=$6, network60kv_peak=$7,
			network22kv_active_energy=$8, network22kv_reactive_energy=$9,
			network22kv_power_factor=$10, network22kv_peak=$11,
			updated_at=$12
		where id=$1
	`, d.ID, d.Year, d.Month,
		d.Network60kvActiveEnergy, d.Network60kvReactiveEnergy, d.Network60kvPowerFactor, d.Network60kvPeak,
		d.Network22kvActiveEnergy, d.Network22kvReactiveEnergy, d.Network22kvPowerFactor, d.Network22kvPeak,
		d.UpdatedAt)
	if err != nil {
		return err
	}
	return oneRow(res, energy.ErrNotFound)
}

func (s *EnergyStore) DeleteElectricity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from electricity_data where id=$1`, id)
	if err != nil {
		return err
	}
	return oneRow(res, energy.ErrNotFound)
}

const waterColumns = `id, year, month, f3bis, f3, se2, se3bis, coalesce(created_by,''), created_at, updated_at`

func (s *EnergyStore) CreateWater(ctx context.Context, d *energy.WaterData) error {
	_, err := s.db.ExecContext(ctx, `
		insert into water_data(id, year, month, f3bis, f3, se2, se3bis, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,$10)
	`, d.ID, d.Year, d.Month, d.F3bis, d.F3, d.Se2, d.Se3bis, d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *EnergyStore) FindWater(ctx context.Context, id string) (*energy.WaterData, error) {
	row := s.db.QueryRowContext(ctx, `select `+waterColumns+` from water_data where id=$1`, id)
	var d energy.WaterData
	err := row.Scan(&d.ID, &d.Year, &d.Month, &d.F3bis, &d.F3, &d.Se2, &d.Se3bis,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, energy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *EnergyStore) ListWater(ctx context.Context) ([]energy.WaterData, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+waterColumns+` from water_data order by year desc, month desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []energy.WaterData
	for rows.Next() {
		var d energy.WaterData
		if err := rows.Scan(&d.ID, &d.Year, &d.Month, &d.F3bis, &d.F3, &d.Se2, &d.Se3bis,
			&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (s *EnergyStore) UpdateWater(ctx context.Context, d *energy.WaterData) error {
	res, err := s.db.ExecContext(ctx, `
		update water_data set year=$2, month=$3, f3bis=$4, f3=$5, se2=$6, se3bis=$7, updated_at=$8
		where id=$1
	`, d.ID, d.Year, d.Month, d.F3bis, d.F3, d.Se2, d.Se3bis, d.UpdatedAt)
	if err != nil {
		return err
	}
	return oneRow(res, energy.ErrNotFound)
}

func (s *EnergyStore) DeleteWater(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from water_data where id=$1`, id)
	if err != nil {
		return err
	}
	return oneRow(res, energy.ErrNotFound)
}

func oneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
