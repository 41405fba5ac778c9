package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

const energyColumns = `id, building_name, year, month, electricity, gas, water, revision, created_at, updated_at`

// UpsertEnergy writes r by natural key in a single statement and reports whether
// the row was created or updated. r.ID and r.Revision are filled in.
func (r *Repos) UpsertEnergy(ctx context.Context, rd *domain.EnergyReading) (domain.UpsertAction, error) {
	return r.upsertEnergy(ctx, r.db, rd, r.now())
}

// UpsertEnergyBatch upserts every row in one transaction. Either all rows are
// written or none are.
func (r *Repos) UpsertEnergyBatch(ctx context.Context, rows []*domain.EnergyReading) ([]domain.UpsertAction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin energy batch: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	actions := make([]domain.UpsertAction, 0, len(rows))
	for _, rd := range rows {
		action, err := r.upsertEnergy(ctx, tx, rd, now)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit energy batch: %w", err)
	}
	return actions, nil
}

type rowQueryer interface {
	Rebind(query string) string
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func (r *Repos) upsertEnergy(ctx context.Context, q rowQueryer, rd *domain.EnergyReading, now time.Time) (domain.UpsertAction, error) {
	stmt := q.Rebind(`
		INSERT INTO energy_data (building_name, year, month, electricity, gas, water, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (building_name, year, month) DO UPDATE SET
			electricity = excluded.electricity,
			gas = excluded.gas,
			water = excluded.water,
			revision = energy_data.revision + 1,
			updated_at = excluded.updated_at
		RETURNING id, revision`)

	err := q.QueryRowxContext(ctx, stmt,
		rd.BuildingName, rd.Year, rd.Month, rd.Electricity, rd.Gas, rd.Water, now, now,
	).Scan(&rd.ID, &rd.Revision)
	if err != nil {
		return "", fmt.Errorf("upsert energy %s %d-%02d: %w", rd.BuildingName, rd.Year, rd.Month, err)
	}

	action := domain.ActionForRevision(rd.Revision)
	if action == domain.ActionCreated {
		rd.CreatedAt = now
	}
	rd.UpdatedAt = now
	return action, nil
}

func (r *Repos) GetEnergy(ctx context.Context, id int64) (*domain.EnergyReading, error) {
	var out domain.EnergyReading
	err := r.db.GetContext(ctx, &out, r.db.Rebind(`SELECT `+energyColumns+` FROM energy_data WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repos) ListEnergy(ctx context.Context, f ReadingFilter) ([]domain.EnergyReading, error) {
	where, args := f.where()
	out := []domain.EnergyReading{}
	q := r.db.Rebind(`SELECT ` + energyColumns + ` FROM energy_data` + where + ` ORDER BY year DESC, month DESC, building_name`)
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

// UpdateEnergyValues replaces the measured values of an existing row.
func (r *Repos) UpdateEnergyValues(ctx context.Context, rd *domain.EnergyReading) error {
	now := r.now()
	q := r.db.Rebind(`
		UPDATE energy_data SET electricity = ?, gas = ?, water = ?, revision = revision + 1, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, rd.Electricity, rd.Gas, rd.Water, now, rd.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	rd.UpdatedAt = now
	return nil
}

func (r *Repos) DeleteEnergy(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM energy_data WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repos) CountEnergy(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM energy_data`)
	return n, err
}

// RecentEnergy returns rows written within RecentWindow, else the latest RecentFallback rows.
func (r *Repos) RecentEnergy(ctx context.Context) ([]domain.EnergyReading, error) {
	out := []domain.EnergyReading{}
	since := r.now().Add(-RecentWindow)
	q := r.db.Rebind(`SELECT ` + energyColumns + ` FROM energy_data WHERE updated_at >= ? ORDER BY updated_at DESC, id DESC`)
	if err := r.db.SelectContext(ctx, &out, q, since); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}

	q = r.db.Rebind(`SELECT ` + energyColumns + ` FROM energy_data ORDER BY updated_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &out, q, RecentFallback); err != nil {
		return nil, err
	}
	return out, nil
}

// EnergyTotals sums all buildings' readings for year.
func (r *Repos) EnergyTotals(ctx context.Context, year int) (domain.EnergyTotals, error) {
	out := domain.EnergyTotals{Year: year}
	q := r.db.Rebind(`
		SELECT COALESCE(SUM(electricity), 0) AS electricity_total,
			COALESCE(SUM(gas), 0) AS gas_total,
			COALESCE(SUM(water), 0) AS water_total
		FROM energy_data WHERE year = ?`)
	row := r.db.QueryRowxContext(ctx, q, year)
	if err := row.Scan(&out.ElectricityTotal, &out.GasTotal, &out.WaterTotal); err != nil {
		return domain.EnergyTotals{Year: year}, fmt.Errorf("energy totals %d: %w", year, err)
	}
	return out, nil
}
