package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/pkg/logger"
	_ "modernc.org/sqlite"
)

// BBox is a latitude / longitude search window. MinLon > MaxLon means the
// window crosses the antimeridian.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// AirportStorage is a SQLite-based store for airport reference data
type AirportStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAirportStorage opens (or creates) the airport database
func NewAirportStorage(dbPath string, log *logger.Logger) (*AirportStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=10000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &AirportStorage{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *AirportStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Debug("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS airports (
			id INTEGER PRIMARY KEY,
			ident TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			latitude_deg REAL NOT NULL,
			longitude_deg REAL NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create airports table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_airports_lat_lon ON airports(latitude_deg, longitude_deg)`); err != nil {
		return fmt.Errorf("failed to create airports index: %w", err)
	}
	return nil
}

// ReplaceAll swaps the whole airport table in one transaction
func (s *AirportStorage) ReplaceAll(ctx context.Context, records []markers.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM airports`); err != nil {
		return fmt.Errorf("failed to clear airports: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO airports (id, ident, type, name, latitude_deg, longitude_deg)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Ident, string(r.Type), r.Name, r.Lat, r.Lon); err != nil {
			return fmt.Errorf("failed to insert airport %s: %w", r.Ident, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit airports: %w", err)
	}

	s.logger.Info("Airport table replaced", logger.Int("count", len(records)))
	return nil
}

// QueryBBox returns every airport inside the window
func (s *AirportStorage) QueryBBox(ctx context.Context, box BBox) ([]markers.Record, error) {
	query := `
		SELECT id, ident, type, name, latitude_deg, longitude_deg
		FROM airports
		WHERE latitude_deg BETWEEN ? AND ?`
	args := []any{box.MinLat, box.MaxLat}

	if box.MinLon <= box.MaxLon {
		query += ` AND longitude_deg BETWEEN ? AND ?`
	} else {
		query += ` AND (longitude_deg >= ? OR longitude_deg <= ?)`
	}
	args = append(args, box.MinLon, box.MaxLon)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	var out []markers.Record
	for rows.Next() {
		var r markers.Record
		var facility string
		if err := rows.Scan(&r.ID, &r.Ident, &facility, &r.Name, &r.Lat, &r.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		r.Type = markers.FacilityType(facility)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate airports: %w", err)
	}
	return out, nil
}

// Count returns the number of stored airports
func (s *AirportStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count airports: %w", err)
	}
	return n, nil
}
