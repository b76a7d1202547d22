package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, "sqlite"

	"mercator-hq/policysync/pkg/config"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	body TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at INTEGER NOT NULL,
	success INTEGER NOT NULL,
	actions TEXT NOT NULL,
	remotes TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transactions_id ON transactions(id);
`

// OpenSQLite opens or creates a durable store at cfg.Path. The document is
// loaded into memory once and rewritten on every change.
func OpenSQLite(ctx context.Context, cfg config.SQLiteConfig) (*DocumentStore, error) {
	b, err := newSQLiteBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := newDocumentStore(ctx, b, "sqlite")
	if err != nil {
		b.close()
		return nil, err
	}
	s.logger.Info("SQLite store opened", "path", cfg.Path, "driver", b.driver)
	return s, nil
}

type sqliteBackend struct {
	db     *sql.DB
	driver string

	saveStmt   *sql.Stmt
	loadStmt   *sql.Stmt
	recordStmt *sql.Stmt
}

func newSQLiteBackend(ctx context.Context, cfg config.SQLiteConfig) (*sqliteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = config.DefaultStoreSQLiteDriver
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = config.DefaultStoreSQLiteBusyTimeout
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &sqliteBackend{db: db, driver: cfg.Driver}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := b.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return b, nil
}

// sqliteDSN builds the connection string; the two drivers spell pragmas
// differently.
func sqliteDSN(cfg config.SQLiteConfig) (string, error) {
	ms := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case "sqlite":
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", cfg.Path, ms), nil
	case "sqlite3":
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", cfg.Path, ms), nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q", cfg.Driver)
	}
}

func (b *sqliteBackend) prepareStatements(ctx context.Context) error {
	var err error

	b.saveStmt, err = b.db.PrepareContext(ctx, `
		INSERT INTO documents (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	b.loadStmt, err = b.db.PrepareContext(ctx, `SELECT body FROM documents WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	b.recordStmt, err = b.db.PrepareContext(ctx, `
		INSERT INTO transactions (id, started_at, ended_at, success, actions, remotes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare record statement: %w", err)
	}

	return nil
}

func (b *sqliteBackend) load(ctx context.Context) (map[string]any, error) {
	var body string
	err := b.loadStmt.QueryRowContext(ctx).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("corrupt document: %w", err)
	}
	return doc, nil
}

func (b *sqliteBackend) save(ctx context.Context, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if _, err := b.saveStmt.ExecContext(ctx, string(body), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (b *sqliteBackend) record(ctx context.Context, rec TransactionRecord) error {
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return err
	}
	remotes, err := json.Marshal(rec.Remotes)
	if err != nil {
		return err
	}
	success := 0
	if rec.Success {
		success = 1
	}
	_, err = b.recordStmt.ExecContext(ctx, rec.ID, rec.Start.UnixNano(), rec.End.UnixNano(),
		success, string(actions), string(remotes), rec.Error)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (b *sqliteBackend) history(ctx context.Context, limit int) ([]TransactionRecord, error) {
	query := `SELECT id, started_at, ended_at, success, actions, remotes, error FROM transactions ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var (
			rec              TransactionRecord
			start, end       int64
			success          int
			actions, remotes string
		)
		if err := rows.Scan(&rec.ID, &start, &end, &success, &actions, &remotes, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		rec.Start = time.Unix(0, start)
		rec.End = time.Unix(0, end)
		rec.Success = success == 1
		if err := json.Unmarshal([]byte(actions), &rec.Actions); err != nil {
			return nil, fmt.Errorf("corrupt transaction actions: %w", err)
		}
		if err := json.Unmarshal([]byte(remotes), &rec.Remotes); err != nil {
			return nil, fmt.Errorf("corrupt transaction remotes: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) close() error {
	for _, stmt := range []*sql.Stmt{b.saveStmt, b.loadStmt, b.recordStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return b.db.Close()
}
