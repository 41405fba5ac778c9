package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

const solarColumns = `id, building_name, year, month, generation, capacity, self_consumption, trade, revision, created_at, updated_at`

func (r *Repos) UpsertSolar(ctx context.Context, rd *domain.SolarReading) (domain.UpsertAction, error) {
	now := r.now()
	q := r.db.Rebind(`
		INSERT INTO solar_data (building_name, year, month, generation, capacity, self_consumption, trade, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (building_name, year, month) DO UPDATE SET
			generation = excluded.generation,
			capacity = excluded.capacity,
			self_consumption = excluded.self_consumption,
			trade = excluded.trade,
			revision = solar_data.revision + 1,
			updated_at = excluded.updated_at
		RETURNING id, revision`)

	err := r.db.QueryRowxContext(ctx, q,
		rd.BuildingName, rd.Year, rd.Month, rd.Generation, rd.Capacity, rd.SelfConsumption, rd.Trade, now, now,
	).Scan(&rd.ID, &rd.Revision)
	if err != nil {
		return "", fmt.Errorf("upsert solar %s %d-%02d: %w", rd.BuildingName, rd.Year, rd.Month, err)
	}

	action := domain.ActionForRevision(rd.Revision)
	if action == domain.ActionCreated {
		rd.CreatedAt = now
	}
	rd.UpdatedAt = now
	return action, nil
}

func (r *Repos) GetSolar(ctx context.Context, id int64) (*domain.SolarReading, error) {
	var out domain.SolarReading
	err := r.db.GetContext(ctx, &out, r.db.Rebind(`SELECT `+solarColumns+` FROM solar_data WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repos) ListSolar(ctx context.Context, f ReadingFilter) ([]domain.SolarReading, error) {
	where, args := f.where()
	out := []domain.SolarReading{}
	q := r.db.Rebind(`SELECT ` + solarColumns + ` FROM solar_data` + where + ` ORDER BY year DESC, month DESC, building_name`)
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (r *Repos) UpdateSolarValues(ctx context.Context, rd *domain.SolarReading) error {
	now := r.now()
	q := r.db.Rebind(`
		UPDATE solar_data SET generation = ?, capacity = ?, self_consumption = ?, trade = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, rd.Generation, rd.Capacity, rd.SelfConsumption, rd.Trade, now, rd.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	rd.UpdatedAt = now
	return nil
}

func (r *Repos) DeleteSolar(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM solar_data WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repos) RecentSolar(ctx context.Context) ([]domain.SolarReading, error) {
	out := []domain.SolarReading{}
	since := r.now().Add(-RecentWindow)
	q := r.db.Rebind(`SELECT ` + solarColumns + ` FROM solar_data WHERE updated_at >= ? ORDER BY updated_at DESC, id DESC`)
	if err := r.db.SelectContext(ctx, &out, q, since); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}

	q = r.db.Rebind(`SELECT ` + solarColumns + ` FROM solar_data ORDER BY updated_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &out, q, RecentFallback); err != nil {
		return nil, err
	}
	return out, nil
}
