package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/envdash/internal/models"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore handles persistent storage of sensor readings
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger

	// writeMu spans stamping and inserting so that seq order matches timestamp order
	writeMu sync.Mutex
	stamper *stamper
}

const selectColumns = `id, recorded_at, temperature, humidity, sound, schema_version, aux`

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply performance pragmas for SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:      db,
		logger:  logger,
		stamper: newStamper(opts...),
	}

	// Auto-migrate schema
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Resume the timestamp floor so a clock stepping back across a restart
	// cannot produce readings older than what is already stored.
	var lastMs sql.NullInt64
	if err := db.QueryRow("SELECT MAX(recorded_at) FROM readings").Scan(&lastMs); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read newest timestamp: %w", err)
	}
	if lastMs.Valid {
		store.stamper.last = time.UnixMilli(lastMs.Int64).UTC()
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		recorded_at INTEGER NOT NULL,
		temperature REAL NOT NULL,
		humidity REAL NOT NULL,
		sound REAL NOT NULL,
		schema_version INTEGER NOT NULL DEFAULT 0,
		aux TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at, seq);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// Append inserts a single reading into the database
func (s *SQLiteStore) Append(ctx context.Context, reading *models.Reading) (*models.Reading, error) {
	stored, err := s.AppendBatch(ctx, []*models.Reading{reading})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// AppendBatch inserts multiple readings in a single transaction
func (s *SQLiteStore) AppendBatch(ctx context.Context, readings []*models.Reading) ([]*models.Reading, error) {
	if len(readings) == 0 {
		return nil, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (id, recorded_at, temperature, humidity, sound, schema_version, aux)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prepare statement: %w", ErrUnavailable, err)
	}
	defer stmt.Close()

	// Stamp against a scratch copy so a rolled back batch leaves the floor untouched
	scratch := *s.stamper
	stored := make([]*models.Reading, 0, len(readings))
	for _, reading := range readings {
		r, err := scratch.stamp(reading)
		if err != nil {
			return nil, err
		}
		aux, err := encodeAux(r.Ext)
		if err != nil {
			return nil, err
		}
		_, err = stmt.ExecContext(ctx,
			r.ID,
			r.UnixMilli(),
			r.Temperature,
			r.Humidity,
			r.Sound,
			r.Ext.Version,
			aux,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to insert reading: %w", ErrUnavailable, err)
		}
		stored = append(stored, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit transaction: %w", ErrUnavailable, err)
	}
	s.stamper.last = scratch.last

	s.logger.Debug().Int("count", len(stored)).Msg("Readings appended")
	return stored, nil
}

// Range returns readings within a time range, bounds inclusive
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time, order models.Order) ([]*models.Reading, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM readings
		WHERE recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at ASC, seq ASC
	`
	if order == models.Descending {
		query = `
			SELECT ` + selectColumns + `
			FROM readings
			WHERE recorded_at BETWEEN ? AND ?
			ORDER BY recorded_at DESC, seq DESC
		`
	}

	rows, err := s.db.QueryContext(ctx, query, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query readings: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// Latest returns the most recent reading
func (s *SQLiteStore) Latest(ctx context.Context) (*models.Reading, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM readings
		ORDER BY recorded_at DESC, seq DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query)
	reading, err := s.scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get latest reading: %w", ErrUnavailable, err)
	}

	return reading, nil
}

// Stats returns statistics about the database
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Driver: "sqlite"}

	var oldestMs, newestMs sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MIN(recorded_at), MAX(recorded_at) FROM readings").
		Scan(&stats.TotalReadings, &oldestMs, &newestMs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count readings: %w", ErrUnavailable, err)
	}

	if oldestMs.Valid {
		oldest := time.UnixMilli(oldestMs.Int64).UTC()
		stats.OldestReading = &oldest
	}
	if newestMs.Valid {
		newest := time.UnixMilli(newestMs.Int64).UTC()
		stats.NewestReading = &newest
	}

	// Get database size using PRAGMA
	var pageCount, pageSize int64
	s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanReading is a helper to scan a row into a Reading struct
func (s *SQLiteStore) scanReading(row interface{ Scan(...interface{}) error }) (*models.Reading, error) {
	var r models.Reading
	var recordedAt int64
	var aux sql.NullString

	err := row.Scan(&r.ID, &recordedAt, &r.Temperature, &r.Humidity, &r.Sound, &r.Ext.Version, &aux)
	if err != nil {
		return nil, err
	}

	r.Timestamp = time.UnixMilli(recordedAt).UTC()
	if aux.Valid && aux.String != "" {
		if err := json.Unmarshal([]byte(aux.String), &r.Ext.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode aux fields of %s: %w", r.ID, err)
		}
	}

	return &r, nil
}

// scanReadings scans multiple rows into a slice of readings
func (s *SQLiteStore) scanReadings(rows *sql.Rows) ([]*models.Reading, error) {
	readings := make([]*models.Reading, 0)

	for rows.Next() {
		r, err := s.scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan reading: %w", ErrUnavailable, err)
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating rows: %w", ErrUnavailable, err)
	}

	return readings, nil
}

func encodeAux(ext models.Extensions) (sql.NullString, error) {
	if ext.Len() == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ext.Fields)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode aux fields: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
