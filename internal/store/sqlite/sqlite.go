package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"sgmacro/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) UpsertObservations(ctx context.Context, observations []store.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO macro_observations (
			series_id, frequency, period, value, fetched_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(series_id, period)
		DO UPDATE SET
			frequency = excluded.frequency,
			value = excluded.value,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range observations {
		observation := observations[i]
		if observation.FetchedAt.IsZero() {
			observation.FetchedAt = now
		}
		_, err = stmt.ExecContext(
			ctx,
			observation.SeriesID,
			observation.Frequency,
			observation.Period,
			observation.Value,
			observation.FetchedAt.UTC(),
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) ListPeriods(ctx context.Context, seriesID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period FROM macro_observations
		WHERE series_id = ?
		ORDER BY period ASC
	`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	periods := make([]string, 0)
	for rows.Next() {
		var period string
		if err := rows.Scan(&period); err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return periods, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS macro_observations (
			series_id TEXT NOT NULL,
			frequency TEXT NOT NULL,
			period TEXT NOT NULL,
			value REAL NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (series_id, period)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
