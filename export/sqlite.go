package export

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	Mt "github.com/sirius-geo/ringdeform/types"
)

// SQLiteWriter stores a table in long form, one row per (time, channel).
// A file holds one table: each write replaces whatever an earlier write stored.
type SQLiteWriter struct {
	Path string
}

func (s *SQLiteWriter) Type() string { return "sqlite" }

// tsLayout has a fixed width so stored times sort as text
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
	CREATE TABLE IF NOT EXISTS channels (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS series (
		ts TEXT NOT NULL,
		channel TEXT NOT NULL REFERENCES channels(name),
		value REAL NOT NULL,
		PRIMARY KEY (ts, channel)
	);
	CREATE INDEX IF NOT EXISTS idx_series_channel ON series(channel);
`

func (s *SQLiteWriter) Write(t *Mt.Table) error {
	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM series`, `DELETE FROM channels`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clearing previous table: %w", err)
		}
	}

	names := t.Names()
	for i, n := range names {
		if _, err := tx.Exec(`INSERT INTO channels (name, position) VALUES (?, ?)`, n, i); err != nil {
			return fmt.Errorf("registering channel %s: %w", n, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO series (ts, channel, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	index := t.Index()
	for _, n := range names {
		values, _ := t.Channel(n)
		for i, ts := range index {
			if _, err := stmt.Exec(ts.UTC().Format(tsLayout), n, values[i]); err != nil {
				return fmt.Errorf("inserting %s: %w", n, err)
			}
		}
	}
	return tx.Commit()
}

// ReadSQLite loads a table written by SQLiteWriter, channels in their stored order
func ReadSQLite(path string) (*Mt.Table, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var names []string
	rows, err := db.Query(`SELECT name FROM channels ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("reading channels: %w", err)
	}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, n)
	}
	rows.Close()
	if len(names) == 0 {
		return nil, &Mt.InsufficientDataError{Channel: path, Message: "no channels stored"}
	}

	var index []time.Time
	trows, err := db.Query(`SELECT DISTINCT ts FROM series ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	for trows.Next() {
		var s string
		if err := trows.Scan(&s); err != nil {
			trows.Close()
			return nil, err
		}
		ts, err := time.Parse(tsLayout, s)
		if err != nil {
			trows.Close()
			return nil, fmt.Errorf("stored time %q: %w", s, err)
		}
		index = append(index, ts)
	}
	trows.Close()

	t, err := Mt.NewTable(index)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		vrows, err := db.Query(`SELECT value FROM series WHERE channel = ? ORDER BY ts`, n)
		if err != nil {
			return nil, err
		}
		values := make([]float64, 0, len(index))
		for vrows.Next() {
			var v float64
			if err := vrows.Scan(&v); err != nil {
				vrows.Close()
				return nil, err
			}
			values = append(values, v)
		}
		vrows.Close()
		if err := t.AddChannel(n, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}
