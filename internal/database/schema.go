package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SchemaVersion is the latest migration number.
const SchemaVersion = 2

type migration struct {
	postgres string
	sqlite   string
}

var migrations = map[int]migration{
	1: {
		postgres: `
CREATE TABLE IF NOT EXISTS energy_data (
	id BIGSERIAL PRIMARY KEY,
	building_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
	electricity DOUBLE PRECISION NOT NULL DEFAULT 0,
	gas DOUBLE PRECISION NOT NULL DEFAULT 0,
	water DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS solar_data (
	id BIGSERIAL PRIMARY KEY,
	building_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
	generation DOUBLE PRECISION NOT NULL DEFAULT 0,
	capacity DOUBLE PRECISION NOT NULL DEFAULT 0,
	self_consumption DOUBLE PRECISION NOT NULL DEFAULT 0,
	trade DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS collection_logs (
	id BIGSERIAL PRIMARY KEY,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	status TEXT NOT NULL CHECK (status IN ('success', 'error')),
	data_count INTEGER NOT NULL DEFAULT 0,
	details TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_collection_logs_collected_at ON collection_logs (collected_at DESC);`,
		sqlite: `
CREATE TABLE IF NOT EXISTS energy_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	building_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
	electricity REAL NOT NULL DEFAULT 0,
	gas REAL NOT NULL DEFAULT 0,
	water REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS solar_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	building_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
	generation REAL NOT NULL DEFAULT 0,
	capacity REAL NOT NULL DEFAULT 0,
	self_consumption REAL NOT NULL DEFAULT 0,
	trade REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS collection_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	status TEXT NOT NULL CHECK (status IN ('success', 'error')),
	data_count INTEGER NOT NULL DEFAULT 0,
	details TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_collection_logs_collected_at ON collection_logs (collected_at DESC);`,
	},
	// Natural-key uniqueness plus the revision/updated_at columns the atomic upsert relies on.
	// Duplicates left by the old read-then-write path are collapsed to the newest row first.
	2: {
		postgres: `
DELETE FROM energy_data a USING energy_data b
	WHERE a.building_name = b.building_name AND a.year = b.year AND a.month = b.month AND a.id < b.id;
DELETE FROM solar_data a USING solar_data b
	WHERE a.building_name = b.building_name AND a.year = b.year AND a.month = b.month AND a.id < b.id;
ALTER TABLE energy_data ADD COLUMN IF NOT EXISTS revision INTEGER NOT NULL DEFAULT 1;
ALTER TABLE energy_data ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW();
ALTER TABLE solar_data ADD COLUMN IF NOT EXISTS revision INTEGER NOT NULL DEFAULT 1;
ALTER TABLE solar_data ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW();
CREATE UNIQUE INDEX IF NOT EXISTS uq_energy_data_natural_key ON energy_data (building_name, year, month);
CREATE UNIQUE INDEX IF NOT EXISTS uq_solar_data_natural_key ON solar_data (building_name, year, month);
CREATE INDEX IF NOT EXISTS idx_energy_data_updated_at ON energy_data (updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_solar_data_updated_at ON solar_data (updated_at DESC);`,
		sqlite: `
DELETE FROM energy_data WHERE id NOT IN (
	SELECT MAX(id) FROM energy_data GROUP BY building_name, year, month);
DELETE FROM solar_data WHERE id NOT IN (
	SELECT MAX(id) FROM solar_data GROUP BY building_name, year, month);
ALTER TABLE energy_data ADD COLUMN revision INTEGER NOT NULL DEFAULT 1;
ALTER TABLE energy_data ADD COLUMN updated_at DATETIME;
ALTER TABLE solar_data ADD COLUMN revision INTEGER NOT NULL DEFAULT 1;
ALTER TABLE solar_data ADD COLUMN updated_at DATETIME;
UPDATE energy_data SET updated_at = created_at WHERE updated_at IS NULL;
UPDATE solar_data SET updated_at = created_at WHERE updated_at IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_energy_data_natural_key ON energy_data (building_name, year, month);
CREATE UNIQUE INDEX IF NOT EXISTS uq_solar_data_natural_key ON solar_data (building_name, year, month);
CREATE INDEX IF NOT EXISTS idx_energy_data_updated_at ON energy_data (updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_solar_data_updated_at ON solar_data (updated_at DESC);`,
	},
}

// Migrate brings the schema up to SchemaVersion. Each step runs in its own transaction.
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := current + 1; v <= SchemaVersion; v++ {
		m, ok := migrations[v]
		if !ok {
			continue
		}
		ddl := m.postgres
		if db.DriverName() == DriverSQLite {
			ddl = m.sqlite
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := tx.Exec(ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := tx.Exec(db.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), v); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v, err)
		}
	}
	return nil
}
