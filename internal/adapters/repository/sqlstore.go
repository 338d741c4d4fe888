package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		position   INTEGER PRIMARY KEY,
		name       TEXT    NOT NULL,
		call_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS call_history (
		seq       BIGINT PRIMARY KEY,
		id        TEXT   NOT NULL,
		name      TEXT   NOT NULL,
		called_at BIGINT NOT NULL
	)`,
}

func init() { //nolint:gochecknoinits // modernc registers as "sqlite", which sqlx does not know
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type studentRow struct {
	Position int    `db:"position"`
	Name     string `db:"name"`
	Count    int    `db:"call_count"`
}

type historyRow struct {
	Seq      int64  `db:"seq"`
	ID       string `db:"id"`
	Name     string `db:"name"`
	CalledAt int64  `db:"called_at"` // unix milliseconds
}

// SQLStore is a Store backed by SQLite or PostgreSQL through sqlx.
// Queries are written with '?' placeholders and rebound per driver.
type SQLStore struct {
	db           *sqlx.DB
	driver       string
	log          logger.Logger
	maxOpenConns int

	// writeMu serializes writers of this process; each write is also a
	// transaction so a crash never leaves a half applied call.
	writeMu sync.Mutex
}

// OpenSQL connects to the database and creates the schema if needed.
// driver is DriverSQLite or DriverPostgres.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	s := &SQLStore{driver: driver, log: logger.Get().Named("sql_store"), maxOpenConns: 10}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlx.ConnectContext(ctx, sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info(ctx, "sql store ready", logger.String("driver", driver))
	return s, nil
}

// NewSQLStore wraps an existing connection, mainly for tests. The schema is
// created if needed.
func NewSQLStore(ctx context.Context, db *sqlx.DB, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: db.DriverName(), log: logger.Get().Named("sql_store")}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Students(ctx context.Context) ([]model.Student, error) {
	rows, err := s.students(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return toStudents(rows), nil
}

func (s *SQLStore) students(ctx context.Context, q sqlx.QueryerContext) ([]studentRow, error) {
	var rows []studentRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT position, name, call_count FROM students ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("select students: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) ReplaceStudents(ctx context.Context, students []model.Student) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM students`); err != nil {
			return fmt.Errorf("delete students: %w", err)
		}
		insert := tx.Rebind(`INSERT INTO students (position, name, call_count) VALUES (?, ?, ?)`)
		for i, st := range students {
			if _, err := tx.ExecContext(ctx, insert, i, st.Name, st.Count); err != nil {
				return fmt.Errorf("insert student %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) RecordCall(ctx context.Context, choose ChooseFunc, at time.Time) (model.CallResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var result model.CallResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.students(ctx, tx)
		if err != nil {
			return err
		}
		idx, err := pick(choose, toStudents(rows))
		if err != nil {
			return err
		}
		chosen := rows[idx]

		_, err = tx.ExecContext(ctx,
			tx.Rebind(`UPDATE students SET call_count = call_count + 1 WHERE position = ?`), chosen.Position)
		if err != nil {
			return fmt.Errorf("increment count: %w", err)
		}

		var next int64
		if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(seq), 0) + 1 FROM call_history`); err != nil {
			return fmt.Errorf("next history seq: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO call_history (seq, id, name, called_at) VALUES (?, ?, ?, ?)`),
			next, uuid.NewString(), chosen.Name, at.UnixMilli())
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		result = model.CallResult{Name: chosen.Name, Count: chosen.Count + 1}
		return nil
	})
	return result, err
}

func (s *SQLStore) History(ctx context.Context, limit int) ([]model.CallRecord, error) {
	if err := validLimit(limit); err != nil {
		return nil, err
	}
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT seq, id, name, called_at FROM call_history ORDER BY seq DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	out := make([]model.CallRecord, len(rows))
	for i, r := range rows {
		// Rows arrive newest first.
		out[len(rows)-1-i] = model.NewCallRecord(r.Name, time.UnixMilli(r.CalledAt))
	}
	return out, nil
}

func (s *SQLStore) CallCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM call_history`); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM students`); err != nil {
			return fmt.Errorf("delete students: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM call_history`); err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "begin_tx")
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error(ctx, "rollback failed", logger.Error(rbErr))
		}
		if !errors.Is(err, ErrEmptyRoster) {
			metrics.RecordErrorByComponent("repository", "tx")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordErrorByComponent("repository", "commit")
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func toStudents(rows []studentRow) []model.Student {
	out := make([]model.Student, len(rows))
	for i, r := range rows {
		out[i] = model.Student{Name: r.Name, Count: r.Count}
	}
	return out
}
