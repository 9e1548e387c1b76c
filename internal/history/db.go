package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// dbFileName is the SQLite file created inside the history directory.
const dbFileName = "rotations.db"

// DB stores rotation history in a SQLite database.
//
// Design decision: one database file shared by all instances rather
// than a file per instance. Rotation history is naturally a single
// ordered log, and a single file keeps queries and backups simple.
type DB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Recommended: rotation
	// writes and history reads can then proceed concurrently.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the rotation history database inside dbDir.
// With CreateIfNotExists the directory and file are created as needed;
// without it, a missing database is an error. Callers that only read
// history (the history subcommand) open without CreateIfNotExists so a
// typo'd directory is reported instead of silently creating an empty
// database.
func Open(dbDir string, opts Options) (*DB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check history database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw refuses to create a
	// new file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &DB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *DB) Close() error {
	return hdb.db.Close()
}

// Path returns the location of the database file.
func (hdb *DB) Path() string {
	return hdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (hdb *DB) createTables() error {
	schema := `
	-- Rotation records: one row per completed rotation.
	CREATE TABLE IF NOT EXISTS rotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id INTEGER NOT NULL,
		old_ip TEXT,
		new_ip TEXT,
		country TEXT,
		trigger_kind TEXT NOT NULL,
		rotated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rotations_rotated_at ON rotations(rotated_at);
	CREATE INDEX IF NOT EXISTS idx_rotations_instance ON rotations(instance_id);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// Record appends one rotation to the history. A zero RotatedAt is
// filled with the current time.
func (hdb *DB) Record(ctx context.Context, rec model.RotationRecord) error {
	rotatedAt := rec.RotatedAt
	if rotatedAt.IsZero() {
		rotatedAt = time.Now()
	}

	query := `
	INSERT INTO rotations (instance_id, old_ip, new_ip, country, trigger_kind, rotated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := hdb.db.ExecContext(ctx, query,
		rec.InstanceID,
		rec.OldIP,
		rec.NewIP,
		rec.Country,
		string(rec.Trigger),
		rotatedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to record rotation: %w", err)
	}

	return nil
}

// Recent returns the most recent rotations, newest first. A limit of
// zero or less returns all rows.
func (hdb *DB) Recent(ctx context.Context, limit int) ([]model.RotationRecord, error) {
	query := `
	SELECT instance_id, old_ip, new_ip, country, trigger_kind, rotated_at
	FROM rotations
	ORDER BY id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rotations: %w", err)
	}
	defer rows.Close()

	var records []model.RotationRecord
	for rows.Next() {
		var rec model.RotationRecord
		var trigger string
		var rotatedAt string

		err := rows.Scan(
			&rec.InstanceID,
			&rec.OldIP,
			&rec.NewIP,
			&rec.Country,
			&trigger,
			&rotatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rotation: %w", err)
		}

		rec.Trigger = model.RotationTrigger(trigger)
		rec.RotatedAt = parseTimestamp(rotatedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountByTrigger returns how many recorded rotations each trigger kind
// has produced.
func (hdb *DB) CountByTrigger(ctx context.Context) (map[model.RotationTrigger]int, error) {
	query := `
	SELECT trigger_kind, COUNT(*) FROM rotations
	GROUP BY trigger_kind
	`

	rows, err := hdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count rotations: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.RotationTrigger]int)
	for rows.Next() {
		var trigger string
		var count int
		if err := rows.Scan(&trigger, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[model.RotationTrigger(trigger)] = count
	}

	return counts, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats. SQLite may return timestamps in different formats depending
// on configuration. If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
