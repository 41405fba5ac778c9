package database

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(DriverSQLite, filepath.Join(t.TempDir(), "carbon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect("mysql", "whatever")
	require.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTemp(t)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var version int
	require.NoError(t, db.Get(&version, `SELECT MAX(version) FROM schema_version`))
	require.Equal(t, SchemaVersion, version)
}

func TestMigrate_NaturalKeyIsUnique(t *testing.T) {
	db := openTemp(t)

	insert := `INSERT INTO energy_data (building_name, year, month, electricity, gas, water, created_at, updated_at)
		VALUES ('공학관', 2026, 3, 1, 1, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	_, err := db.Exec(insert)
	require.NoError(t, err)

	_, err = db.Exec(insert)
	require.Error(t, err)
	require.Contains(t, err.Error(), "UNIQUE")
}

func TestMigrate_CollapsesLegacyDuplicates(t *testing.T) {
	db, err := sqlx.Connect(DriverSQLite, sqliteDSN(filepath.Join(t.TempDir(), "legacy.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// version 1 only: the schema the old read-then-write upsert ran against
	_, err = db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(migrations[1].sqlite)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	require.NoError(t, err)

	for _, elec := range []float64{100, 200} {
		_, err = db.Exec(`INSERT INTO energy_data (building_name, year, month, electricity) VALUES ('도서관', 2026, 1, ?)`, elec)
		require.NoError(t, err)
	}

	require.NoError(t, Migrate(db))

	var rows []struct {
		Electricity float64 `db:"electricity"`
		Revision    int     `db:"revision"`
	}
	require.NoError(t, db.Select(&rows, `SELECT electricity, revision FROM energy_data`))
	require.Len(t, rows, 1)
	require.Equal(t, 200.0, rows[0].Electricity)
	require.Equal(t, 1, rows[0].Revision)
}
