package training

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bobby-s-dev/firerisk/internal/models"
)

// schemas per driver. Placeholders are "?" for both.
var schemas = map[string]string{
	"sqlite3": `
	CREATE TABLE IF NOT EXISTS fire_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		sample_date TEXT NOT NULL,
		temp REAL NOT NULL,
		rh REAL NOT NULL,
		wind REAL NOT NULL,
		rain REAL NOT NULL,
		ffmc REAL NOT NULL,
		dmc REAL NOT NULL,
		dc REAL NOT NULL,
		isi REAL NOT NULL,
		fire INTEGER NOT NULL
	)`,
	"mysql": `
	CREATE TABLE IF NOT EXISTS fire_samples (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		sample_date VARCHAR(10) NOT NULL,
		temp DOUBLE NOT NULL,
		rh DOUBLE NOT NULL,
		wind DOUBLE NOT NULL,
		rain DOUBLE NOT NULL,
		ffmc DOUBLE NOT NULL,
		dmc DOUBLE NOT NULL,
		dc DOUBLE NOT NULL,
		isi DOUBLE NOT NULL,
		fire TINYINT NOT NULL,
		INDEX idx_fire_samples_run (run_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// SQLStore persists built training samples in SQLite or MySQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenStore connects with driver ("sqlite3" or "mysql") and creates the
// schema if needed.
func OpenStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("unsupported sample store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemas[s.driver])
	return err
}

// Insert stores samples under runID in one transaction.
func (s *SQLStore) Insert(ctx context.Context, runID string, samples []models.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fire_samples (run_id, latitude, longitude, sample_date, temp, rh, wind, rain, ffmc, dmc, dc, isi, fire)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, smp := range samples {
		o, i := smp.Observation, smp.Indices
		if _, err := stmt.ExecContext(ctx,
			runID, smp.Latitude, smp.Longitude, smp.Date,
			o.Temperature, o.Humidity, o.WindSpeed, o.Rain,
			i.FFMC, i.DMC, i.DC, i.ISI, smp.Fire,
		); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Samples returns every stored sample, or only those of runID when it is
// not empty, in insertion order.
func (s *SQLStore) Samples(ctx context.Context, runID string) ([]models.Sample, error) {
	query := `SELECT latitude, longitude, sample_date, temp, rh, wind, rain, ffmc, dmc, dc, isi, fire
		FROM fire_samples`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var smp models.Sample
		o, i := &smp.Observation, &smp.Indices
		if err := rows.Scan(
			&smp.Latitude, &smp.Longitude, &smp.Date,
			&o.Temperature, &o.Humidity, &o.WindSpeed, &o.Rain,
			&i.FFMC, &i.DMC, &i.DC, &i.ISI, &smp.Fire,
		); err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

// Dataset loads all stored samples as a training dataset.
func (s *SQLStore) Dataset(ctx context.Context) (*Dataset, error) {
	samples, err := s.Samples(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("sample store is empty")
	}
	return FromSamples("sql:fire_samples", samples), nil
}
