// Package cache holds the write-once key-value stores backing grouping and match-table reuse.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("cache key not found")

// Store is a read-many, write-once key-value cache. Keys are slash separated paths such as
// "matches/A_B". Put on an existing key keeps the first value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Invalidate removes every key under prefix and returns how many were removed.
	Invalidate(ctx context.Context, prefix string) (int, error)
	// Keys lists keys under prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON decodes the value stored under key. found is false on a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (value T, found bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return value, true, nil
}

// PutJSON encodes value and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

// Fingerprint hashes the JSON encoding of values into a key segment. Entries keyed by a fingerprint
// of their inputs are never served for different inputs.
func Fingerprint(values ...any) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return "", fmt.Errorf("failed to fingerprint cache inputs: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:8]), nil
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid cache key %q", key)
		}
	}
	return nil
}

func hasPrefix(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return key == prefix || strings.HasPrefix(key, prefix+"/")
}
