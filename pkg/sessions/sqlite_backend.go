package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteSessionsSchemaV1 = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    name TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteBackend keeps one JSON payload row per session. The payload is the
// same record a DirBackend writes to disk.
type SQLiteBackend struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
	now    func() time.Time
}

var _ Backend = (*SQLiteBackend)(nil)

func NewSQLiteBackend(dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		return nil, errors.New("sqlite session backend: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	b := &SQLiteBackend{db: db, now: time.Now}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func SQLiteSessionDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite session backend: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (b *SQLiteBackend) migrate() error {
	_, err := b.db.Exec(sqliteSessionsSchemaV1)
	return err
}

func (b *SQLiteBackend) ensureOpen() error {
	if b.closed {
		return errors.New("sqlite session backend closed")
	}
	return nil
}

func (b *SQLiteBackend) Save(ctx context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(
		ctx,
		`INSERT INTO chat_sessions (name, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms`,
		name,
		string(data),
		b.now().UnixMilli(),
	)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	var payload string
	err := b.db.QueryRowContext(ctx, `SELECT payload_json FROM chat_sessions WHERE name = ?`, name).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE name = ?`, name)
	return err
}

func (b *SQLiteBackend) List(ctx context.Context) ([]RecordInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, `SELECT name, updated_at_ms FROM chat_sessions ORDER BY updated_at_ms DESC, name DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []RecordInfo
	for rows.Next() {
		var name string
		var updatedAtMs int64
		if err := rows.Scan(&name, &updatedAtMs); err != nil {
			return nil, err
		}
		ret = append(ret, RecordInfo{Name: name, ModTime: time.UnixMilli(updatedAtMs)})
	}
	return ret, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
