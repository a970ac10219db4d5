package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLBackend 每个 key 一行记录，支持 sqlite3 和 postgres
type SQLBackend struct {
	db     *sql.DB
	driver string
}

// OpenSQLite 打开（或创建）SQLite 数据库文件
func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite 只允许一个写者
	db.SetMaxOpenConns(1)

	b := &SQLBackend{db: db, driver: "sqlite3"}
	if err := b.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// OpenPostgres 连接 PostgreSQL
func OpenPostgres(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	b := &SQLBackend{db: db, driver: "postgres"}
	if err := b.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLBackend) init(ctx context.Context) error {
	blobType := "BLOB"
	if b.driver == "sqlite3" {
		_, err := b.db.ExecContext(ctx, `
        PRAGMA journal_mode = WAL;
        PRAGMA synchronous = NORMAL;
    `)
		if err != nil {
			return fmt.Errorf("failed to configure sqlite: %w", err)
		}
	} else {
		blobType = "BYTEA"
	}

	_, err := b.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS fetch_cache (
            cache_key   TEXT PRIMARY KEY,
            inserted_at BIGINT NOT NULL,
            ttl         BIGINT NOT NULL DEFAULT 0,
            value       `+blobType+`
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create fetch_cache table: %w", err)
	}
	return nil
}

// bind 把 ? 占位符转换成驱动需要的格式
func (b *SQLBackend) bind(query string) string {
	if b.driver != "postgres" {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func scanRecord(key string, insertedAt, ttl int64, value []byte) (Record, error) {
	if insertedAt <= 0 {
		return Record{}, fmt.Errorf("%w: missing inserted_at", ErrMalformedRecord)
	}
	if ttl < 0 {
		return Record{}, fmt.Errorf("%w: negative ttl", ErrMalformedRecord)
	}
	if value == nil {
		value = []byte{}
	}
	return Record{
		Key:        key,
		InsertedAt: time.Unix(0, insertedAt),
		TTL:        time.Duration(ttl),
		Payload:    value,
	}, nil
}

func (b *SQLBackend) Load(ctx context.Context, key string) (Record, bool, error) {
	var (
		insertedAt, ttl int64
		value           []byte
	)
	err := b.db.QueryRowContext(ctx,
		b.bind(`SELECT inserted_at, ttl, value FROM fetch_cache WHERE cache_key = ?`),
		key,
	).Scan(&insertedAt, &ttl, &value)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to query cache record: %w", err)
	}

	rec, err := scanRecord(key, insertedAt, ttl, value)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (b *SQLBackend) Save(ctx context.Context, rec Record) error {
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := b.db.ExecContext(ctx, b.bind(`
        INSERT INTO fetch_cache (cache_key, inserted_at, ttl, value)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (cache_key) DO UPDATE SET
            inserted_at = excluded.inserted_at,
            ttl = excluded.ttl,
            value = excluded.value
    `), rec.Key, rec.InsertedAt.UnixNano(), int64(rec.TTL), payload)
	if err != nil {
		return fmt.Errorf("failed to save cache record: %w", err)
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, b.bind(`DELETE FROM fetch_cache WHERE cache_key = ?`), key)
	if err != nil {
		return fmt.Errorf("failed to delete cache record: %w", err)
	}
	return nil
}

func (b *SQLBackend) Range(ctx context.Context, fn func(Record) bool) error {
	rows, err := b.db.QueryContext(ctx, `SELECT cache_key, inserted_at, ttl, value FROM fetch_cache`)
	if err != nil {
		return fmt.Errorf("failed to list cache records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key             string
			insertedAt, ttl int64
			value           []byte
		)
		if err := rows.Scan(&key, &insertedAt, &ttl, &value); err != nil {
			return fmt.Errorf("failed to scan cache record: %w", err)
		}
		rec, err := scanRecord(key, insertedAt, ttl, value)
		if err != nil {
			continue
		}
		if !fn(rec) {
			break
		}
	}
	return rows.Err()
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
