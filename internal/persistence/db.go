package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mindtrade/internal/config"
	"github.com/talgya/mindtrade/internal/experiment"
)

// DB wraps a SQLite connection holding snapshots and experiment results.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS configs (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		seed INTEGER NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS experiment_runs (
		id TEXT PRIMARY KEY,
		grid_json TEXT NOT NULL,
		aborted INTEGER NOT NULL,
		elapsed INTEGER NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS experiment_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES experiment_runs(id),
		combination INTEGER NOT NULL,
		role TEXT NOT NULL,
		tom INTEGER NOT NULL,
		learning_rate REAL NOT NULL,
		can_lie INTEGER NOT NULL,
		opponent_tom INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		initial_points REAL NOT NULL,
		final_points REAL NOT NULL,
		gain REAL NOT NULL,
		nr_offers REAL NOT NULL,
		pareto_efficient INTEGER NOT NULL,
		pareto_rate REAL NOT NULL,
		elapsed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rows_run ON experiment_rows(run_id, combination);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Save stores a snapshot.
func (db *DB) Save(name string, cfg config.Config, overwrite bool) error {
	data, err := encode(name, cfg)
	if err != nil {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.Get(&n, "SELECT COUNT(*) FROM configs WHERE name = ?", name); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if n > 0 && !overwrite {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO configs (name, data, seed, saved_at) VALUES (?, ?, ?, ?)",
		name, string(data), cfg.Seed, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("snapshot saved", "name", name, "backend", "sqlite")
	return nil
}

// Load reads and validates a snapshot.
func (db *DB) Load(name string) (config.Config, error) {
	if err := ValidateName(name); err != nil {
		return config.Config{}, loadFailed(name, err)
	}
	var data string
	err := db.conn.Get(&data, "SELECT data FROM configs WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return config.Config{}, loadFailed(name, ErrNotFound)
	}
	if err != nil {
		return config.Config{}, loadFailed(name, err)
	}
	cfg, err := config.Decode([]byte(data))
	if err != nil {
		return config.Config{}, loadFailed(name, err)
	}
	if err := db.SaveMeta(MetaLastLoaded, name); err != nil {
		slog.Warn("could not record loaded snapshot", "name", name, "error", err)
	}
	return cfg, nil
}

// Exists reports whether a snapshot row is present.
func (db *DB) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM configs WHERE name = ?", name)
	return n > 0, err
}

// List returns all snapshot names.
func (db *DB) List() ([]string, error) {
	var names []string
	err := db.conn.Select(&names, "SELECT name FROM configs ORDER BY name")
	return names, err
}

// Delete removes a snapshot.
func (db *DB) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	res, err := db.conn.Exec("DELETE FROM configs WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// SaveRun stores an experiment result and its rows.
func (db *DB) SaveRun(gridJSON string, res *experiment.Result) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO experiment_runs (id, grid_json, aborted, elapsed, finished_at) VALUES (?, ?, ?, ?, ?)",
		res.RunID, gridJSON, res.Aborted, int64(res.Elapsed), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.RunID, err)
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO experiment_rows
		(run_id, combination, role, tom, learning_rate, can_lie, opponent_tom, rounds,
		 initial_points, final_points, gain, nr_offers, pareto_efficient, pareto_rate, elapsed)
		VALUES (:run_id, :combination, :role, :tom, :learning_rate, :can_lie, :opponent_tom, :rounds,
		 :initial_points, :final_points, :gain, :nr_offers, :pareto_efficient, :pareto_rate, :elapsed)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range res.Rows {
		if _, err := stmt.Exec(r); err != nil {
			return fmt.Errorf("insert row %d/%s: %w", r.Combination, r.Role, err)
		}
	}
	if err := setMeta(tx, MetaLastRun, res.RunID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("experiment saved", "run", res.RunID, "rows", len(res.Rows))
	return nil
}

// Rows returns the rows of one experiment run in combination order.
func (db *DB) Rows(runID string) ([]experiment.Row, error) {
	var rows []experiment.Row
	err := db.conn.Select(&rows, `SELECT run_id, combination, role, tom, learning_rate, can_lie,
		opponent_tom, rounds, initial_points, final_points, gain, nr_offers,
		pareto_efficient, pareto_rate, elapsed
		FROM experiment_rows WHERE run_id = ? ORDER BY combination, role`, runID)
	return rows, err
}

// Runs returns the ids of stored experiment runs, newest first.
func (db *DB) Runs() ([]string, error) {
	var ids []string
	err := db.conn.Select(&ids, "SELECT id FROM experiment_runs ORDER BY finished_at DESC, id")
	return ids, err
}

// Meta keys recorded alongside snapshots and experiment runs.
const (
	MetaLastRun    = "last_run"    // Id of the most recently saved experiment run
	MetaLastLoaded = "last_loaded" // Name of the most recently loaded snapshot
)

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	return setMeta(db.conn, key, value)
}

func setMeta(ex sqlx.Execer, key, value string) error {
	_, err := ex.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key reports ok == false.
func (db *DB) GetMeta(key string) (value string, ok bool, err error) {
	err = db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
