package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/profiler"
)

type repository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg.DBPath); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	return &repository{db: db}, nil
}

func (r *repository) InsertRun(hdr *profiler.Header) (int64, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(insertRunSQL,
		hdr.Computer,
		hdr.Command,
		hdr.PhysicalCores,
		hdr.LogicalCores,
		int64(hdr.TotalMemory),
		hdr.Start.Unix(),
		int64(hdr.PreWait.Seconds()),
		int64(hdr.Interval.Seconds()),
		int64(hdr.PostWait.Seconds()),
	)
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	return id, nil
}

func (r *repository) InsertSample(runID int64, sample *profiler.Sample) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(insertSampleSQL,
		runID,
		sample.Timestamp.UnixMilli(),
		string(sample.Phase),
		nullFloat(sample.CPULoad),
		nullFloat(sample.Temperature),
		nullFloat(sample.FanRPM),
		nullInt(sample.MemoryUsed),
		nullFloat(sample.MemoryPercent),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *repository) Close() error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}

// Invalid measurements are stored as NULL, the database's sentinel
func nullFloat(m profiler.Measurement) sql.NullFloat64 {
	return sql.NullFloat64{Float64: m.Value, Valid: m.Valid}
}

func nullInt(m profiler.Measurement) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(m.Value), Valid: m.Valid}
}
