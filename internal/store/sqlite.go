package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	summary     TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS density_cells (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	endpoint   INTEGER NOT NULL,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	center_lon REAL NOT NULL,
	center_lat REAL NOT NULL,
	count      INTEGER NOT NULL,
	log_count  REAL NOT NULL,
	PRIMARY KEY (run_id, endpoint, x, y)
);

CREATE TABLE IF NOT EXISTS routes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	rank        INTEGER NOT NULL,
	count       INTEGER NOT NULL,
	origin_x    INTEGER NOT NULL,
	origin_y    INTEGER NOT NULL,
	dest_x      INTEGER NOT NULL,
	dest_y      INTEGER NOT NULL,
	origin_lat  REAL NOT NULL,
	origin_lon  REAL NOT NULL,
	dest_lat    REAL NOT NULL,
	dest_lon    REAL NOT NULL,
	distance_km REAL NOT NULL,
	PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	var summary sql.NullString
	if run.Summary != nil {
		b, err := json.Marshal(run.Summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal summary")
		}
		summary = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, summary, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source = excluded.source,
		   status = excluded.status,
		   summary = excluded.summary,
		   error = excluded.error,
		   finished_at = excluded.finished_at`,
		run.ID, run.Source, string(run.Status), summary, nullString(run.Error),
		run.StartedAt.UTC(), nullTime(run.FinishedAt),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

// UpdateRunStatus moves a run to a new status. Terminal statuses also stamp
// the finish time.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	var finished any
	if status.Terminal() {
		finished = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = COALESCE(?, finished_at) WHERE id = ?`,
		string(status), finished, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// GetRun returns a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, summary, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// ListRuns returns runs matching filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, summary, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND started_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveDensity replaces the density cells of a run.
func (s *SQLiteStore) SaveDensity(ctx context.Context, runID string, cells []aggregate.Cell) error {
	return s.inTx(ctx, "save density", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM density_cells WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO density_cells (run_id, endpoint, x, y, center_lon, center_lat, count, log_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck
		for _, c := range cells {
			if _, err := stmt.ExecContext(ctx, runID, c.Endpoint, c.X, c.Y, c.CenterLon, c.CenterLat, c.Count, c.LogCount); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveRoutes replaces the top-K routes of a run.
func (s *SQLiteStore) SaveRoutes(ctx context.Context, runID string, routes []aggregate.Route) error {
	return s.inTx(ctx, "save routes", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO routes (run_id, rank, count, origin_x, origin_y, dest_x, dest_y,
			   origin_lat, origin_lon, dest_lat, dest_lon, distance_km)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close() //nolint:errcheck
		for _, r := range routes {
			if _, err := stmt.ExecContext(ctx, runID, r.Rank, r.Count, r.OriginX, r.OriginY, r.DestX, r.DestY,
				r.OriginLat, r.OriginLon, r.DestLat, r.DestLon, r.DistanceKm); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRoutes returns the routes of a run by rank.
func (s *SQLiteStore) GetRoutes(ctx context.Context, runID string) ([]aggregate.Route, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, count, origin_x, origin_y, dest_x, dest_y, origin_lat, origin_lon, dest_lat, dest_lon, distance_km
		 FROM routes WHERE run_id = ? ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get routes %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []aggregate.Route
	for rows.Next() {
		var r aggregate.Route
		if err := rows.Scan(&r.Rank, &r.Count, &r.OriginX, &r.OriginY, &r.DestX, &r.DestY,
			&r.OriginLat, &r.OriginLon, &r.DestLat, &r.DestLon, &r.DistanceKm); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan route")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get routes iterate")
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return eris.Wrapf(err, "sqlite: %s", op)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", op)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON, errText sql.NullString
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Source, &r.Status, &summaryJSON, &errText, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Error = errText.String
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
