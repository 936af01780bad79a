package quote

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed quote dataset.
type Store struct {
	db *sql.DB
}

// Open creates or opens the dataset at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quotes (
			time INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			bid REAL NOT NULL,
			ask REAL NOT NULL,
			PRIMARY KEY (time, symbol)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Save upserts quotes in a single transaction.
func (s *Store) Save(ctx context.Context, quotes []Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO quotes (time, symbol, bid, ask) VALUES (?, ?, ?, ?)
		 ON CONFLICT(time, symbol) DO UPDATE SET bid = excluded.bid, ask = excluded.ask`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx, int64(q.Time), q.Symbol, q.Bid, q.Ask); err != nil {
			return fmt.Errorf("failed to insert quote %s@%d: %w", q.Symbol, q.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads the whole dataset into memory and returns it with its time axis.
func (s *Store) Load(ctx context.Context) (*Memory, []clock.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT time, symbol, bid, ask FROM quotes ORDER BY time ASC, symbol ASC`,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	mem := NewMemory()
	var times []clock.Time
	for rows.Next() {
		var (
			ts int64
			q  Quote
		)
		if err := rows.Scan(&ts, &q.Symbol, &q.Bid, &q.Ask); err != nil {
			return nil, nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.Time = clock.Time(ts)
		if len(times) == 0 || times[len(times)-1] != q.Time {
			times = append(times, q.Time)
		}
		mem.Add(q)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read quotes: %w", err)
	}

	return mem, times, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
