package metrics

import (
	"database/sql"

	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS runs (
	       id             INTEGER PRIMARY KEY AUTOINCREMENT,
	       computer       TEXT NOT NULL,
	       command        TEXT NOT NULL,
	       physical_cores INTEGER NOT NULL,
	       logical_cores  INTEGER NOT NULL,
	       total_memory   INTEGER NOT NULL,
	       started_at     INTEGER NOT NULL,
	       prewait_s      INTEGER NOT NULL,
	       interval_s     INTEGER NOT NULL,
	       postwait_s     INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS samples (
	       id             INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id         INTEGER NOT NULL REFERENCES runs(id),
	       timestamp_ms   INTEGER NOT NULL,
	       phase          TEXT NOT NULL CHECK (phase IN ('pre', 'running', 'post', 'post-final')),
	       cpu_load       REAL,
	       cpu_temp       REAL,
	       fan_rpm        REAL,
	       memory_used    INTEGER,
	       memory_percent REAL
	   );
	   CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id, timestamp_ms);`

	insertRunSQL = `
    INSERT INTO runs (
        computer, command,
        physical_cores, logical_cores, total_memory,
        started_at, prewait_s, interval_s, postwait_s
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO samples (
        run_id, timestamp_ms, phase,
        cpu_load, cpu_temp, fan_rpm,
        memory_used, memory_percent
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB) error {
	errFactory := errors.New()

	logger.Debug().Msg("Creating database schema...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					logger.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
