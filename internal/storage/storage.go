package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Package storage provides the key-value token stores the HTTP client reads
// bearer tokens from.

// Store is a synchronous key-value string store.
type Store interface {
	Close() error
	// GetItem returns the value stored under key; ok is false when the key
	// is missing or expired.
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	// TokenTTL bounds how long a stored value is served; zero keeps values
	// until they are removed.
	TokenTTL        time.Duration
	CleanupInterval time.Duration
}

const (
	TypeBBolt  = "bbolt"
	TypeMemory = "memory"
	TypeNone   = "none"

	defaultCleanupInterval = 12 * time.Hour
)

// ErrEmptyKey is returned when a store is addressed with a blank key.
var ErrEmptyKey = errors.New("storage key is empty")

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", TypeNone, "disabled":
		return noopStore{}, nil
	case TypeMemory:
		return newMemoryStore(opts), nil
	case TypeBBolt:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.TokenTTL < 0 {
		opts.TokenTTL = 0
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// expiryFor returns the expiry for a value written at now, zero meaning never.
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(expiry, now time.Time) bool {
	return !expiry.IsZero() && !expiry.After(now)
}

type noopStore struct{}

func (noopStore) Close() error                         { return nil }
func (noopStore) GetItem(string) (string, bool, error) { return "", false, nil }
func (noopStore) SetItem(string, string) error         { return nil }
func (noopStore) RemoveItem(string) error              { return nil }
