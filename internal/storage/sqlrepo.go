package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/RealKorush/bahbah/internal/domain"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

// SQLRepository stores runs in SQLite or PostgreSQL.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the database named by databaseURL. postgres:// and
// postgresql:// URLs select PostgreSQL; sqlite3://path or a bare path selects SQLite.
func OpenSQL(databaseURL string) (*SQLRepository, error) {
	driver, dsn := driverSQLite, databaseURL
	switch {
	case strings.HasPrefix(databaseURL, "sqlite3://"):
		dsn = strings.TrimPrefix(databaseURL, "sqlite3://")
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		driver = driverPostgres
	}
	if dsn == "" {
		return nil, fmt.Errorf("empty database dsn")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	repo := NewSQLRepository(db, driver)
	if err := repo.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

func (r *SQLRepository) Migrate() error {
	runID := "INTEGER PRIMARY KEY"
	if r.driver == driverPostgres {
		runID = "SERIAL PRIMARY KEY"
	}
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id ` + runID + `,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_records (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		link TEXT NOT NULL,
		host TEXT,
		port INTEGER,
		status TEXT NOT NULL,
		latency_ms DOUBLE PRECISION,
		PRIMARY KEY (run_id, position)
	);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) Load() ([]*domain.Run, error) {
	rows, err := r.db.Query("SELECT id, created_at FROM runs ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	byID := make(map[int]*domain.Run)
	for rows.Next() {
		run := &domain.Run{}
		if err := rows.Scan(&run.ID, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
		byID[run.ID] = run
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recRows, err := r.db.Query(
		"SELECT run_id, link, host, port, status, latency_ms FROM run_records ORDER BY run_id, position")
	if err != nil {
		return nil, err
	}
	defer recRows.Close()

	for recRows.Next() {
		var (
			runID   int
			rec     domain.Record
			status  string
			host    sql.NullString
			port    sql.NullInt64
			latency sql.NullFloat64
		)
		if err := recRows.Scan(&runID, &rec.Link, &host, &port, &status, &latency); err != nil {
			return nil, err
		}
		rec.Status = domain.Status(status)
		rec.Host = host.String
		rec.Port = int(port.Int64)
		if latency.Valid {
			v := latency.Float64
			rec.LatencyMS = &v
		}
		if run, ok := byID[runID]; ok {
			run.Records = append(run.Records, rec)
		}
	}
	return runs, recRows.Err()
}

// Append inserts run and sets run.ID to the id assigned by the database, so
// processes sharing one database never collide.
func (r *SQLRepository) Append(run *domain.Run) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int
	if err := tx.QueryRow(r.rebind("INSERT INTO runs (created_at) VALUES (?) RETURNING id"), run.CreatedAt).Scan(&id); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(r.rebind(
		"INSERT INTO run_records (run_id, position, link, host, port, status, latency_ms) VALUES (?, ?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range run.Records {
		var (
			host    sql.NullString
			port    sql.NullInt64
			latency sql.NullFloat64
		)
		if rec.Status != domain.StatusInvalid {
			host = sql.NullString{String: rec.Host, Valid: true}
			port = sql.NullInt64{Int64: int64(rec.Port), Valid: true}
		}
		if rec.LatencyMS != nil {
			latency = sql.NullFloat64{Float64: *rec.LatencyMS, Valid: true}
		}
		if _, err := stmt.Exec(id, i, rec.Link, host, port, string(rec.Status), latency); err != nil {
			return fmt.Errorf("insert record %d of run %d: %w", i, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
