package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agenthands/powermatch/internal/cache"
)

// Cache returns a cache.Store backed by the cache table.
func (s *Store) Cache() cache.Store {
	return &sqliteCache{db: s.db}
}

type sqliteCache struct {
	db *sql.DB
}

func (c *sqliteCache) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return v, nil
}

func (c *sqliteCache) Put(ctx context.Context, key string, value []byte) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") || strings.Contains(key, "//") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache (key, value, created_at) VALUES (?, ?, ?)`, key, value, now())
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

func (c *sqliteCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (c *sqliteCache) Invalidate(ctx context.Context, prefix string) (int, error) {
	where, args := prefixClause(prefix)
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return int(n), nil
}

func (c *sqliteCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	where, args := prefixClause(prefix)
	rows, err := c.db.QueryContext(ctx, `SELECT key FROM cache`+where+` ORDER BY key`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// prefixClause matches the prefix itself and everything below it. substr avoids LIKE wildcards in keys.
func prefixClause(prefix string) (string, []any) {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return "", nil
	}
	p := prefix + "/"
	return ` WHERE key = ? OR substr(key, 1, ?) = ?`, []any{prefix, len(p), p}
}
