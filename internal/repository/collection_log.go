package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

const logColumns = `id, collected_at, status, data_count, details, error_message`

// InsertCollectionLog appends an audit entry. CollectedAt defaults to the repository clock.
func (r *Repos) InsertCollectionLog(ctx context.Context, e *domain.CollectionLogEntry) error {
	if e.CollectedAt.IsZero() {
		e.CollectedAt = r.now()
	}
	q := r.db.Rebind(`
		INSERT INTO collection_logs (collected_at, status, data_count, details, error_message)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)
	return r.db.QueryRowxContext(ctx, q, e.CollectedAt, e.Status, e.DataCount, e.Details, e.ErrorMessage).Scan(&e.ID)
}

func (r *Repos) RecentCollectionLogs(ctx context.Context, limit int) ([]domain.CollectionLogEntry, error) {
	out := []domain.CollectionLogEntry{}
	q := r.db.Rebind(`SELECT ` + logColumns + ` FROM collection_logs ORDER BY collected_at DESC, id DESC LIMIT ?`)
	err := r.db.SelectContext(ctx, &out, q, limit)
	return out, err
}

// LastSuccessfulCollection returns nil when no run has succeeded yet.
func (r *Repos) LastSuccessfulCollection(ctx context.Context) (*domain.CollectionLogEntry, error) {
	var out domain.CollectionLogEntry
	q := r.db.Rebind(`SELECT ` + logColumns + ` FROM collection_logs WHERE status = ? ORDER BY collected_at DESC, id DESC LIMIT 1`)
	err := r.db.GetContext(ctx, &out, q, domain.CollectionSuccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
