package httpclient

import (
	"errors"
	"fmt"
	"strings"

	"dario.cat/mergo"
)

const (
	// StorageLocal selects the persistent token store.
	StorageLocal = "localStorage"
	// StorageSession selects the session-scoped token store.
	StorageSession = "session"

	DefaultStorageKey = "accessToken"
)

var (
	ErrStorageUnavailable = errors.New("token storage unavailable")
	ErrUnknownStorageType = errors.New("unknown token storage type")
)

// TokenStorage says where the bearer token lives.
type TokenStorage struct {
	StorageKey  string `json:"storage_key" yaml:"storage_key"`
	StorageType string `json:"storage_type" yaml:"storage_type"`
}

var defaultTokenStorage = TokenStorage{
	StorageKey:  DefaultStorageKey,
	StorageType: StorageLocal,
}

// ResolveTokenStorage fills blank fields of ts with the defaults
// (key accessToken in persistent storage). A nil ts yields the defaults.
func ResolveTokenStorage(ts *TokenStorage) TokenStorage {
	var out TokenStorage
	if ts != nil {
		out = *ts
	}
	out.StorageKey = strings.TrimSpace(out.StorageKey)
	out.StorageType = NormalizeStorageType(out.StorageType)
	if err := mergo.Merge(&out, defaultTokenStorage); err != nil {
		return defaultTokenStorage
	}
	return out
}

// NormalizeStorageType maps storage type names case-insensitively onto
// StorageLocal or StorageSession. Unknown names are returned trimmed.
func NormalizeStorageType(typ string) string {
	typ = strings.TrimSpace(typ)
	switch strings.ToLower(typ) {
	case strings.ToLower(StorageLocal):
		return StorageLocal
	case StorageSession:
		return StorageSession
	}
	return typ
}

// StorageBackends holds the two token stores a client can read from.
type StorageBackends struct {
	Local   Storage
	Session Storage
}

// For returns the backend registered for storageType.
func (b StorageBackends) For(storageType string) (Storage, error) {
	var s Storage
	switch NormalizeStorageType(storageType) {
	case StorageLocal:
		s = b.Local
	case StorageSession:
		s = b.Session
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownStorageType, storageType)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, storageType)
	}
	return s, nil
}

// SetAuthorization formats a bearer Authorization header value.
func SetAuthorization(token string) string {
	return "Bearer " + token
}

// GetAuthorizationToken reads the token described by ts. A missing key is
// not an error and yields an empty token.
func GetAuthorizationToken(backends StorageBackends, ts TokenStorage) (string, error) {
	store, err := backends.For(ts.StorageType)
	if err != nil {
		return "", err
	}
	token, ok, err := store.GetItem(ts.StorageKey)
	if err != nil {
		return "", fmt.Errorf("read %s token %q: %w", ts.StorageType, ts.StorageKey, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}
