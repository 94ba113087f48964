package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/restkit/internal/config"
	"github.com/samvad-hq/restkit/internal/logger"
	"github.com/samvad-hq/restkit/internal/storage"
	"github.com/samvad-hq/restkit/pkg/httpclient"
	"github.com/samvad-hq/restkit/pkg/merge"
	"github.com/samvad-hq/restkit/pkg/profiles"
)

// App owns the configuration, token stores and one client per profile.
type App struct {
	cfg      *config.Config
	profiles *profiles.Registry
	local    storage.Store
	session  storage.Store
	log      logger.Logger
	opts     []httpclient.Option

	mu      sync.Mutex
	clients map[string]*httpclient.HTTPClient
}

// Call describes one request against a named profile.
type Call struct {
	Profile string
	Method  string
	Path    string
	Headers *merge.Mapping
	Params  *merge.Mapping
	Data    any
	Timeout time.Duration
}

// New opens the token stores and loads the profile registry.
// Extra client options are applied to every client after the defaults.
func New(cfg *config.Config, log logger.Logger, opts ...httpclient.Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	reg, err := profiles.Load(cfg.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	profileIDs := make([]string, 0, len(reg.All()))
	for _, p := range reg.All() {
		profileIDs = append(profileIDs, p.ID)
	}
	log.InfoObj("profiles loaded", "profiles_meta", map[string]any{
		"count": len(profileIDs),
		"ids":   profileIDs,
	})

	storeOpts := storage.Options{
		TokenTTL:        cfg.TokenTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	local, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	session, err := storage.NewStore(storage.TypeMemory, "", storeOpts)
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("init session storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"token_ttl_seconds":        int(cfg.TokenTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	return &App{
		cfg:      cfg,
		profiles: reg,
		local:    local,
		session:  session,
		log:      log,
		opts:     opts,
		clients:  make(map[string]*httpclient.HTTPClient),
	}, nil
}

// Profiles returns the loaded profile registry.
func (a *App) Profiles() *profiles.Registry {
	return a.profiles
}

// Client returns the client for profile id, building it on first use.
// An empty id selects the configured default profile.
func (a *App) Client(id string) (*httpclient.HTTPClient, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = a.cfg.DefaultProfile
	}
	if id == "" {
		return nil, errors.New("no profile selected and default_profile is not set")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[id]; ok {
		return c, nil
	}
	p, ok := a.profiles.ByID(id)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", id)
	}

	opts := append([]httpclient.Option{
		httpclient.WithStorage(httpclient.StorageBackends{Local: a.local, Session: a.session}),
		httpclient.WithLogger(a.log),
	}, a.opts...)
	c := httpclient.New(p.Args(), opts...)
	a.clients[id] = c
	return c, nil
}

// Tokens returns the store for a token storage type.
func (a *App) Tokens(storageType string) (storage.Store, error) {
	switch httpclient.NormalizeStorageType(storageType) {
	case httpclient.StorageLocal:
		return a.local, nil
	case httpclient.StorageSession:
		return a.session, nil
	}
	return nil, fmt.Errorf("%w %q", httpclient.ErrUnknownStorageType, storageType)
}

// SetToken stores the bearer token read by the profile's clients.
// Cached clients are dropped so the next request picks the token up.
func (a *App) SetToken(profileID, token string) error {
	ts, store, err := a.tokenStore(profileID)
	if err != nil {
		return err
	}
	if err := store.SetItem(ts.StorageKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	a.resetClients()
	return nil
}

// Token returns the stored bearer token of a profile.
func (a *App) Token(profileID string) (string, bool, error) {
	ts, store, err := a.tokenStore(profileID)
	if err != nil {
		return "", false, err
	}
	return store.GetItem(ts.StorageKey)
}

// RemoveToken deletes the stored bearer token of a profile.
func (a *App) RemoveToken(profileID string) error {
	ts, store, err := a.tokenStore(profileID)
	if err != nil {
		return err
	}
	if err := store.RemoveItem(ts.StorageKey); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	a.resetClients()
	return nil
}

func (a *App) tokenStore(profileID string) (httpclient.TokenStorage, storage.Store, error) {
	c, err := a.Client(profileID)
	if err != nil {
		return httpclient.TokenStorage{}, nil, err
	}
	ts := c.TokenStorage()
	store, err := a.Tokens(ts.StorageType)
	if err != nil {
		return ts, nil, err
	}
	return ts, store, nil
}

func (a *App) resetClients() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.clients)
}

// Do executes call against its profile and logs the outcome.
func (a *App) Do(ctx context.Context, call Call) (*resty.Response, error) {
	c, err := a.Client(call.Profile)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}

	overrides := merge.NewMapping()
	if call.Headers.Len() > 0 {
		overrides.Set("headers", call.Headers)
	}
	if call.Params.Len() > 0 && method != http.MethodGet {
		overrides.Set("params", call.Params)
	}
	if call.Timeout > 0 {
		overrides.Set("timeout", merge.Leaf{V: call.Timeout.Milliseconds()})
	}

	start := time.Now()
	var resp *resty.Response
	switch method {
	case http.MethodGet:
		resp, err = c.Get(ctx, call.Path, call.Params, overrides)
	case http.MethodHead:
		resp, err = c.Head(ctx, call.Path, overrides)
	case http.MethodOptions:
		resp, err = c.Options(ctx, call.Path, overrides)
	case http.MethodDelete:
		resp, err = c.Delete(ctx, call.Path, call.Data, overrides)
	case http.MethodPost:
		resp, err = c.Post(ctx, call.Path, call.Data, overrides)
	case http.MethodPut:
		resp, err = c.Put(ctx, call.Path, call.Data, overrides)
	case http.MethodPatch:
		resp, err = c.Patch(ctx, call.Path, call.Data, overrides)
	default:
		resp, err = c.Fetch(ctx, call.Path, method, call.Data, overrides)
	}

	meta := map[string]any{
		"profile":    call.Profile,
		"method":     method,
		"path":       call.Path,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		meta["error"] = err.Error()
		a.log.ErrorObj("request failed", "request_meta", meta)
		return resp, err
	}
	meta["status"] = resp.StatusCode()
	a.log.InfoObj("request completed", "request_meta", meta)
	return resp, nil
}

// Close releases the token stores.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for _, s := range []storage.Store{a.local, a.session} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.ErrorObj("storage close failed", "error", err)
		return err
	}
	return nil
}
