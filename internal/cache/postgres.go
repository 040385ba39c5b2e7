package cache

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/scaleserve/scaleserve/internal/entity"
)

const variantSchema = `
CREATE TABLE IF NOT EXISTS variant_cache (
	identifier TEXT        NOT NULL,
	hash       TEXT        NOT NULL,
	content    BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (identifier, hash)
)`

const infoSchema = `
CREATE TABLE IF NOT EXISTS info_cache (
	identifier TEXT        PRIMARY KEY,
	info       BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenPostgres connects and ensures the cache tables exist.
func OpenPostgres(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to postgres cache: %w", err)
	}
	for _, schema := range []string{variantSchema, infoSchema} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return nil, fmt.Errorf("creating cache schema: %w", err)
		}
	}
	return db, nil
}

// PostgresVariantCache stores variants in a bytea column, which keeps the
// cache shared and consistent across multiple server instances.
type PostgresVariantCache struct {
	db *sql.DB
}

func NewPostgresVariantCache(db *sql.DB) *PostgresVariantCache {
	return &PostgresVariantCache{db: db}
}

func (c *PostgresVariantCache) Open(ctx context.Context, key Key) (io.ReadCloser, *entity.StatResult, error) {
	var content []byte
	var updated time.Time
	err := c.db.QueryRowContext(ctx,
		"SELECT content, updated_at FROM variant_cache WHERE identifier = $1 AND hash = $2",
		string(key.ID), key.Hash).Scan(&content, &updated)
	if err == sql.ErrNoRows {
		return nil, nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(content)),
		entity.NewStatResult(updated, int64(len(content))), nil
}

func (c *PostgresVariantCache) Create(ctx context.Context, key Key) (EntryWriter, error) {
	return newBufferWriter(func(data []byte) error {
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO variant_cache (identifier, hash, content, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (identifier, hash)
			 DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
			string(key.ID), key.Hash, data)
		return err
	}), nil
}

func (c *PostgresVariantCache) Stat(ctx context.Context, key Key) (*entity.StatResult, error) {
	var size int64
	var updated time.Time
	err := c.db.QueryRowContext(ctx,
		"SELECT octet_length(content), updated_at FROM variant_cache WHERE identifier = $1 AND hash = $2",
		string(key.ID), key.Hash).Scan(&size, &updated)
	if err == sql.ErrNoRows {
		return nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return entity.NewStatResult(updated, size), nil
}

func (c *PostgresVariantCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM variant_cache WHERE identifier = $1", string(id))
	return err
}

func (c *PostgresVariantCache) EvictAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM variant_cache")
	return err
}

// PostgresInfoCache stores serialized infos in a bytea column.
type PostgresInfoCache struct {
	db *sql.DB
}

func NewPostgresInfoCache(db *sql.DB) *PostgresInfoCache {
	return &PostgresInfoCache{db: db}
}

func (c *PostgresInfoCache) Put(ctx context.Context, id entity.Identifier, info *entity.Info) error {
	data, err := marshalInfo(info)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO info_cache (identifier, info, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (identifier)
		 DO UPDATE SET info = EXCLUDED.info, updated_at = now()`,
		string(id), data)
	return err
}

func (c *PostgresInfoCache) Get(ctx context.Context, id entity.Identifier) (*entity.Info, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT info FROM info_cache WHERE identifier = $1", string(id)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return unmarshalInfo(data)
}

func (c *PostgresInfoCache) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM info_cache WHERE identifier = $1", string(id))
	return err
}

func (c *PostgresInfoCache) EvictAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM info_cache")
	return err
}

func (c *PostgresInfoCache) EvictInvalid(ctx context.Context) (int, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT identifier, info FROM info_cache")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var invalid []string
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return 0, err
		}
		if info, err := unmarshalInfo(data); err != nil || !info.Valid() {
			invalid = append(invalid, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range invalid {
		if _, err := c.db.ExecContext(ctx,
			"DELETE FROM info_cache WHERE identifier = $1", id); err != nil {
			return 0, err
		}
	}
	return len(invalid), nil
}
