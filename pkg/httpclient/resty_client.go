package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/samvad-hq/restkit/pkg/merge"
)

// RequestTimeout is used when Args.Timeout is not set.
const RequestTimeout = 7000 * time.Millisecond

// Per-call config keys understood by the request methods.
const (
	keyHeaders = "headers"
	keyParams  = "params"
	keyData    = "data"
	keyTimeout = "timeout"
	keyBaseURL = "baseURL"
	keyMethod  = "method"
	keyURL     = "url"
)

// ErrClientNotInitialized is returned by request methods of a client that
// was not built with New.
var ErrClientNotInitialized = errors.New("http client is not initialized")

// Args describes how to build a client.
type Args struct {
	BaseURL string
	Headers *merge.Mapping
	// Timeout defaults to RequestTimeout.
	Timeout time.Duration
	// TokenStorage defaults to key accessToken in persistent storage.
	TokenStorage *TokenStorage
}

// RequestConfig holds the resolved default request options of a client.
type RequestConfig struct {
	BaseURL string
	Timeout time.Duration
	Headers *merge.Mapping
}

// HTTPClient is a resty-backed client that merges per-call overrides into
// its default request options.
type HTTPClient struct {
	client        *resty.Client
	requestConfig RequestConfig
	tokenStorage  TokenStorage
	log           Logger
}

// Option configures optional client dependencies.
type Option func(*settings)

type settings struct {
	storage   StorageBackends
	log       Logger
	transport http.RoundTripper
}

// WithStorage sets the token stores consulted for is-authorization clients.
func WithStorage(backends StorageBackends) Option {
	return func(s *settings) { s.storage = backends }
}

// WithLogger sets the client logger. Without it logs are discarded.
func WithLogger(log Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithTransport replaces the underlying http.RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.transport = rt }
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	s.log = ensureLogger(s.log)
	return s
}

// New builds a client from args.
func New(args Args, opts ...Option) *HTTPClient {
	s := applyOptions(opts)

	ts := ResolveTokenStorage(args.TokenStorage)
	args.TokenStorage = &ts

	client, cfg := CreateClient(args, s.storage, s.log)
	if s.transport != nil {
		client.SetTransport(s.transport)
	}

	return &HTTPClient{
		client:        client,
		requestConfig: cfg,
		tokenStorage:  ts,
		log:           s.log,
	}
}

// CreateClient resolves the default request options and builds the resty
// client carrying them.
//
// Headers are content-type: application/json merged with args.Headers.
// When is-authorization is truthy and no Authorization header is set, the
// bearer token is read from storage; a failed read is logged and yields an
// empty token.
func CreateClient(args Args, storage StorageBackends, log Logger) (*resty.Client, RequestConfig) {
	log = ensureLogger(log)

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = RequestTimeout
	}

	headers := merge.Merge(defaultHeaders(), args.Headers)
	if flag, _ := headers.Get(HeaderIsAuthorization); truthy(flag) && !hasAuthorization(headers) {
		ts := ResolveTokenStorage(args.TokenStorage)
		token, err := GetAuthorizationToken(storage, ts)
		if err != nil {
			log.WarnObj("authorization token unavailable", "token_storage", map[string]any{
				"storage_key":  ts.StorageKey,
				"storage_type": ts.StorageType,
				"error":        err.Error(),
			})
			token = ""
		}
		headers.Set(HeaderAuthorization, merge.Leaf{V: SetAuthorization(token)})
	}

	cfg := RequestConfig{
		BaseURL: args.BaseURL,
		Timeout: timeout,
		Headers: headers,
	}

	client := resty.New().
		SetBaseURL(args.BaseURL).
		SetTimeout(timeout).
		SetHeaders(headerMap(flattenHeaders(headers, "")))

	return client, cfg
}

// Config returns the client's default request options. The headers are a
// copy and may be modified freely.
func (c *HTTPClient) Config() RequestConfig {
	if c == nil {
		return RequestConfig{}
	}
	cfg := c.requestConfig
	cfg.Headers = cfg.Headers.Clone()
	return cfg
}

// TokenStorage returns where the client reads its bearer token from.
func (c *HTTPClient) TokenStorage() TokenStorage {
	if c == nil {
		return defaultTokenStorage
	}
	return c.tokenStorage
}

func (c *HTTPClient) clientValid() (*resty.Client, error) {
	if c == nil || c.client == nil {
		return nil, ErrClientNotInitialized
	}
	return c.client, nil
}

// mergeConfig merges config over the default headers.
func (c *HTTPClient) mergeConfig(config *merge.Mapping) *merge.Mapping {
	return merge.Merge(
		merge.NewMapping(merge.Pair{Key: keyHeaders, Value: c.requestConfig.Headers}),
		config,
	)
}

// Fetch sends a request with an explicit method. The per-call config may
// override method, url and data.
func (c *HTTPClient) Fetch(ctx context.Context, url, method string, data any, config *merge.Mapping) (*resty.Response, error) {
	if _, err := c.clientValid(); err != nil {
		return nil, err
	}
	final := c.mergeConfig(config)
	setDefault(final, keyMethod, merge.Leaf{V: method})
	setDefault(final, keyURL, merge.Leaf{V: url})
	setDefault(final, keyData, merge.FromAny(data))
	if v, ok := stringAt(final, keyMethod); ok {
		method = v
	}
	if v, ok := stringAt(final, keyURL); ok {
		url = v
	}
	return c.execute(ctx, strings.ToUpper(method), url, final)
}

// Get sends a GET request with params as the query string. Params in
// config win over params.
func (c *HTTPClient) Get(ctx context.Context, url string, params, config *merge.Mapping) (*resty.Response, error) {
	if _, err := c.clientValid(); err != nil {
		return nil, err
	}
	final := c.mergeConfig(config)
	if params != nil {
		setDefault(final, keyParams, params)
	}
	return c.execute(ctx, http.MethodGet, url, final)
}

// Delete sends a DELETE request with data as its body. Data in config wins
// over data.
func (c *HTTPClient) Delete(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error) {
	if _, err := c.clientValid(); err != nil {
		return nil, err
	}
	final := c.mergeConfig(config)
	setDefault(final, keyData, merge.FromAny(data))
	return c.execute(ctx, http.MethodDelete, url, final)
}

// Head sends a HEAD request.
func (c *HTTPClient) Head(ctx context.Context, url string, config *merge.Mapping) (*resty.Response, error) {
	if _, err := c.clientValid(); err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodHead, url, c.mergeConfig(config))
}

// Options sends an OPTIONS request.
func (c *HTTPClient) Options(ctx context.Context, url string, config *merge.Mapping) (*resty.Response, error) {
	if _, err := c.clientValid(); err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodOptions, url, c.mergeConfig(config))
}

// Post sends a POST request with data as its body.
func (c *HTTPClient) Post(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error) {
	return c.withBody(ctx, http.MethodPost, url, data, config)
}

// Put sends a PUT request with data as its body.
func (c *HTTPClient) Put(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error) {
	return c.withBody(ctx, http.MethodPut, url, data, config)
}

// Patch sends a PATCH request with data as its body.
func (c *HTTPClient) Patch(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error) {
	return c.withBody(ctx, http.MethodPatch, url, data, config)
}

// withBody sends data as the body, replacing any data in config. A nil data
// leaves config data in place.
func (c *HTTPClient) withBody(ctx context.Context, method, url string, data any, config *merge.Mapping) (*resty.Response, error) {
	if _, err := c.clientValid(); err != nil {
		return nil, err
	}
	final := c.mergeConfig(config)
	if data != nil {
		final.Set(keyData, merge.FromAny(data))
	}
	return c.execute(ctx, method, url, final)
}

// setDefault stores v under key unless config already set it. Positional
// arguments are replaced whole, never merged with the config value.
func setDefault(final *merge.Mapping, key string, v merge.Value) {
	if !final.Has(key) {
		final.Set(key, v)
	}
}

// execute builds the resty request from the final config and returns
// resty's result as is.
func (c *HTTPClient) execute(ctx context.Context, method, target string, final *merge.Mapping) (*resty.Response, error) {
	client, err := c.clientValid()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout, ok := durationAt(final, keyTimeout); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := client.R().SetContext(ctx)
	if h, ok := mappingAt(final, keyHeaders); ok {
		req.SetHeaders(headerMap(flattenHeaders(h, method)))
	}
	if p, ok := mappingAt(final, keyParams); ok {
		req.SetQueryParamsFromValues(queryValues(p))
	}
	if body, ok := final.Get(keyData); ok && !isNull(body) {
		req.SetBody(requestBody(body))
	}
	if base, ok := stringAt(final, keyBaseURL); ok && base != "" && !isAbsoluteURL(target) {
		target = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(target, "/")
	}

	requestID := uuid.NewString()
	start := time.Now()
	c.log.DebugObj("http request", "http_request", map[string]any{
		"request_id": requestID,
		"method":     method,
		"url":        target,
	})

	resp, err := req.Execute(method, target)
	if err != nil {
		c.log.DebugObj("http request failed", "http_error", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return resp, err
	}

	c.log.DebugObj("http response", "http_response", map[string]any{
		"request_id": requestID,
		"status":     resp.StatusCode(),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return resp, err
}

func isNull(v merge.Value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case merge.Leaf:
		return t.IsNull()
	case *merge.Mapping:
		return t == nil
	}
	return false
}

// requestBody unwraps leaves so resty sees the raw value; sequences and
// mappings marshal to JSON in key order.
func requestBody(v merge.Value) any {
	if leaf, ok := v.(merge.Leaf); ok {
		return leaf.V
	}
	return v
}

func queryValues(params *merge.Mapping) url.Values {
	values := make(url.Values, params.Len())
	for k, v := range params.All() {
		switch t := v.(type) {
		case merge.Leaf:
			if s, ok := leafString(t); ok {
				values.Add(k, s)
			}
		case merge.Sequence:
			for _, el := range t {
				if leaf, isLeaf := el.(merge.Leaf); isLeaf {
					if s, ok := leafString(leaf); ok {
						values.Add(k, s)
					}
				}
			}
		}
	}
	return values
}

func mappingAt(m *merge.Mapping, key string) (*merge.Mapping, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	mm, isMap := v.(*merge.Mapping)
	return mm, isMap && mm != nil
}

func stringAt(m *merge.Mapping, key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	leaf, isLeaf := v.(merge.Leaf)
	if !isLeaf {
		return "", false
	}
	s, isString := leaf.V.(string)
	return s, isString
}

// durationAt reads a timeout given in milliseconds or as a duration string.
func durationAt(m *merge.Mapping, key string) (time.Duration, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	leaf, isLeaf := v.(merge.Leaf)
	if !isLeaf {
		return 0, false
	}
	var d time.Duration
	switch x := leaf.V.(type) {
	case time.Duration:
		d = x
	case int:
		d = time.Duration(x) * time.Millisecond
	case int64:
		d = time.Duration(x) * time.Millisecond
	case float64:
		d = time.Duration(x * float64(time.Millisecond))
	case string:
		if ms, err := strconv.ParseInt(x, 10, 64); err == nil {
			d = time.Duration(ms) * time.Millisecond
		} else if parsed, err := time.ParseDuration(x); err == nil {
			d = parsed
		}
	}
	return d, d > 0
}

func isAbsoluteURL(target string) bool {
	u, err := url.Parse(target)
	return err == nil && u.IsAbs()
}
