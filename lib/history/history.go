package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("kubecompat/lib/history")

//go:embed schema.sql
var Schema string

type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// OpenDB opens a remote libsql database when Url is set and a local sqlite
// file otherwise.
func (config Config) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		dsn := config.Url
		if config.AuthToken != "" {
			u, err := url.Parse(config.Url)
			if err != nil {
				return nil, err
			}
			query := u.Query()
			query.Set("authToken", config.AuthToken)
			u.RawQuery = query.Encode()
			dsn = u.String()
		}
		return sql.Open("libsql", dsn)
	}

	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	if config.File != ":memory:" {
		err := os.MkdirAll(filepath.Dir(config.File), 0755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// sqlite does not handle concurrent writers
	db.SetMaxOpenConns(1)
	if config.File != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Run is the outcome of updating one application's ledger.
type Run struct {
	// Batch groups the runs started by the same invocation.
	Batch      string
	App        string
	StartedAt  time.Time
	FinishedAt time.Time
	Candidates int
	Versions   int
	// Error is empty for successful runs.
	Error string
}

type Store struct {
	db *sql.DB
}

// NewStore creates the schema if needed.
func NewStore(ctx context.Context, db *sql.DB) (Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return Store{}, fmt.Errorf("create history schema: %w", err)
	}
	return Store{db: db}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Record(ctx context.Context, run Run) error {
	ctx, span := tracer.Start(ctx, "Record")
	defer span.End()
	span.SetAttributes(attribute.String("app", run.App))

	_, err := s.db.ExecContext(
		ctx,
		`insert into runs(batch, app, started_at, finished_at, candidates, versions, error)
		values (?, ?, ?, ?, ?, ?, ?)`,
		run.Batch,
		run.App,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Candidates,
		run.Versions,
		run.Error,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record run")
		return err
	}
	return nil
}

// Recent lists the latest runs newest first, an empty app lists every app.
func (s Store) Recent(ctx context.Context, app string, limit int) ([]Run, error) {
	ctx, span := tracer.Start(ctx, "Recent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(
		ctx,
		`select batch, app, started_at, finished_at, candidates, versions, error
		from runs
		where ? = '' or app = ?
		order by started_at desc, id desc
		limit ?`,
		app, app, limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query runs")
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished int64
		err := rows.Scan(&run.Batch, &run.App, &started, &finished, &run.Candidates, &run.Versions, &run.Error)
		if err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
