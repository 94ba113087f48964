package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samvad-hq/restkit/pkg/merge"
)

type mapStorage map[string]string

func (m mapStorage) GetItem(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

type failingStorage struct{ err error }

func (f failingStorage) GetItem(string) (string, bool, error) { return "", false, f.err }

type recordingLogger struct {
	noopLogger
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) WarnObj(msg, _ string, _ interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

type captured struct {
	method string
	path   string
	query  map[string][]string
	header http.Header
	body   string
}

func newServer(t *testing.T) (*httptest.Server, func() captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		last captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = captured{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   string(body),
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"SUCCESS","data":{"ok":true}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() captured {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func authHeaders() *merge.Mapping {
	return merge.NewMapping(merge.KV(HeaderIsAuthorization, true))
}

func TestNewAddsBearerTokenFromDefaultStorage(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)

	client := New(Args{BaseURL: srv.URL, Headers: authHeaders()},
		WithStorage(StorageBackends{Local: mapStorage{"accessToken": "abc"}}))

	_, err := client.Get(context.Background(), "/users", nil, nil)
	require.NoError(t, err)

	got := last()
	assert.Equal(t, "Bearer abc", got.header.Get("Authorization"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, "true", got.header.Get("Is-Authorization"))
	assert.Equal(t, "/users", got.path)

	auth, ok := client.Config().Headers.Get(HeaderAuthorization)
	require.True(t, ok)
	assert.Equal(t, merge.Leaf{V: "Bearer abc"}, auth)
}

func TestNewKeepsExplicitAuthorization(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)

	headers := merge.NewMapping(
		merge.KV(HeaderIsAuthorization, true),
		merge.KV("authorization", "Basic xyz"),
	)
	client := New(Args{BaseURL: srv.URL, Headers: headers},
		WithStorage(StorageBackends{Local: mapStorage{"accessToken": "abc"}}))

	_, err := client.Get(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Basic xyz", last().header.Get("Authorization"))
	assert.False(t, client.Config().Headers.Has(HeaderAuthorization))
}

func TestNewReadsSessionStorage(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)

	client := New(Args{
		BaseURL:      srv.URL,
		Headers:      authHeaders(),
		TokenStorage: &TokenStorage{StorageKey: "jwt", StorageType: "SESSION"},
	}, WithStorage(StorageBackends{
		Local:   mapStorage{"jwt": "local"},
		Session: mapStorage{"jwt": "sess"},
	}))

	_, err := client.Get(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sess", last().header.Get("Authorization"))
	assert.Equal(t, TokenStorage{StorageKey: "jwt", StorageType: StorageSession}, client.TokenStorage())
}

func TestNewWithoutAuthorizationFlagSkipsToken(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)

	client := New(Args{BaseURL: srv.URL},
		WithStorage(StorageBackends{Local: mapStorage{"accessToken": "abc"}}))

	_, err := client.Get(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, last().header.Get("Authorization"))
}

func TestCreateClientFallsBackToEmptyToken(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		storage StorageBackends
		ts      *TokenStorage
	}{
		"storage error": {
			storage: StorageBackends{Local: failingStorage{err: errors.New("disk gone")}},
		},
		"unknown type": {
			storage: StorageBackends{Local: mapStorage{"accessToken": "abc"}},
			ts:      &TokenStorage{StorageType: "cookie"},
		},
		"no backend": {},
		"missing key": {
			storage: StorageBackends{Local: mapStorage{}},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			log := &recordingLogger{}
			_, cfg := CreateClient(Args{Headers: authHeaders(), TokenStorage: tc.ts}, tc.storage, log)

			auth, ok := cfg.Headers.Get(HeaderAuthorization)
			require.True(t, ok)
			assert.Equal(t, merge.Leaf{V: "Bearer "}, auth)
			if name == "missing key" {
				assert.Empty(t, log.warns)
			} else {
				assert.Equal(t, []string{"authorization token unavailable"}, log.warns)
			}
		})
	}
}

func TestCreateClientDefaults(t *testing.T) {
	t.Parallel()

	client, cfg := CreateClient(Args{BaseURL: "https://api.example.com"}, StorageBackends{}, nil)
	assert.Equal(t, RequestTimeout, cfg.Timeout)
	assert.Equal(t, 7*time.Second, client.GetClient().Timeout)
	assert.Equal(t, "https://api.example.com", client.BaseURL)
	assert.Equal(t, []string{HeaderContentType}, cfg.Headers.Keys())
	assert.Equal(t, ContentTypeJSON, client.Header.Get("Content-Type"))
}

func TestCreateClientMergesHeaders(t *testing.T) {
	t.Parallel()

	headers := merge.NewMapping(
		merge.KV("accept", "text/plain"),
		merge.KV(HeaderContentType, "text/xml"),
		merge.KV(HeaderRetry, 3),
	)
	_, cfg := CreateClient(Args{Headers: headers, Timeout: time.Second}, StorageBackends{}, nil)

	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, []string{HeaderContentType, "accept", HeaderRetry}, cfg.Headers.Keys())
	ct, _ := cfg.Headers.Get(HeaderContentType)
	assert.Equal(t, merge.Leaf{V: "text/xml"}, ct)
	assert.Equal(t, 3, headers.Len(), "caller headers must not be modified")
}

func TestPerCallHeadersMergeOverDefaults(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)

	client := New(Args{BaseURL: srv.URL, Headers: merge.NewMapping(merge.KV("x-a", "1"))})
	config := merge.NewMapping(merge.Pair{Key: "headers", Value: merge.NewMapping(merge.KV("x-b", "2"))})

	_, err := client.Get(context.Background(), "/", nil, config)
	require.NoError(t, err)

	got := last()
	assert.Equal(t, "1", got.header.Get("X-A"))
	assert.Equal(t, "2", got.header.Get("X-B"))
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))

	_, err = client.Get(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, last().header.Get("X-B"), "per-call headers must not leak into defaults")
}

func TestMethodSectionHeaders(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)

	headers := merge.NewMapping(
		merge.Pair{Key: "common", Value: merge.NewMapping(merge.KV("x-common", "c"))},
		merge.Pair{Key: "get", Value: merge.NewMapping(merge.KV("x-verb", "get"))},
		merge.Pair{Key: "post", Value: merge.NewMapping(merge.KV("x-verb", "post"))},
	)
	client := New(Args{BaseURL: srv.URL, Headers: headers})

	_, err := client.Get(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "c", last().header.Get("X-Common"))
	assert.Equal(t, "get", last().header.Get("X-Verb"))

	_, err = client.Post(context.Background(), "/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "post", last().header.Get("X-Verb"))
	assert.Empty(t, last().header.Get("Common"))
}

func TestGetParams(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	params := merge.NewMapping(merge.KV("a", 1), merge.KV("b", "x"), merge.KV("tag", []string{"p", "q"}))
	_, err := client.Get(context.Background(), "/search", params, nil)
	require.NoError(t, err)

	got := last()
	assert.Equal(t, []string{"1"}, got.query["a"])
	assert.Equal(t, []string{"x"}, got.query["b"])
	assert.Equal(t, []string{"p", "q"}, got.query["tag"])
}

func TestGetConfigParamsReplaceParams(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	params := merge.NewMapping(merge.KV("a", "1"))
	config := merge.NewMapping(merge.Pair{Key: "params", Value: merge.NewMapping(merge.KV("b", "2"))})

	_, err := client.Get(context.Background(), "/search", params, config)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"b": {"2"}}, last().query)
}

func TestPostSendsOrderedJSON(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	data := merge.NewMapping(merge.KV("z", 1), merge.KV("a", "two"))
	resp, err := client.Post(context.Background(), "/items", data, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())

	got := last()
	assert.Equal(t, http.MethodPost, got.method)
	assert.JSONEq(t, `{"z":1,"a":"two"}`, got.body)
	assert.Equal(t, `{"z":1,"a":"two"}`, got.body)
}

func TestPostDataWinsOverConfigData(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	config := merge.NewMapping(merge.KV("data", "from-config"))
	_, err := client.Put(context.Background(), "/", "from-arg", config)
	require.NoError(t, err)
	assert.Equal(t, "from-arg", last().body)

	_, err = client.Patch(context.Background(), "/", nil, config)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, last().method)
	assert.Equal(t, "from-config", last().body)
}

func TestPostMappingDataReplacesConfigData(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	data := merge.NewMapping(merge.KV("a", 1))
	config := merge.NewMapping(merge.Pair{Key: "data", Value: merge.NewMapping(merge.KV("b", 2))})

	_, err := client.Post(context.Background(), "/", data, config)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, last().body)
}

func TestDeleteConfigDataWins(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	config := merge.NewMapping(merge.KV("data", "from-config"))
	_, err := client.Delete(context.Background(), "/items/1", "from-arg", config)
	require.NoError(t, err)

	got := last()
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "from-config", got.body)

	data := merge.NewMapping(merge.KV("a", 1))
	config = merge.NewMapping(merge.Pair{Key: "data", Value: merge.NewMapping(merge.KV("b", 2))})
	_, err = client.Delete(context.Background(), "/items/1", data, config)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, last().body)

	_, err = client.Delete(context.Background(), "/items/1", data, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, last().body)
}

func TestFetchConfigDataReplacesData(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	data := merge.NewMapping(merge.KV("a", 1))
	config := merge.NewMapping(merge.Pair{Key: "data", Value: merge.NewMapping(merge.KV("b", 2))})
	_, err := client.Fetch(context.Background(), "/", http.MethodPut, data, config)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, last().body)
}

func TestHeadAndOptions(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	_, err := client.Head(context.Background(), "/h", nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodHead, last().method)

	_, err = client.Options(context.Background(), "/o", nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodOptions, last().method)
	assert.Equal(t, "/o", last().path)
}

func TestFetchConfigOverridesMethodAndURL(t *testing.T) {
	t.Parallel()
	srv, last := newServer(t)
	client := New(Args{BaseURL: srv.URL})

	_, err := client.Fetch(context.Background(), "/a", "get", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, last().method)

	config := merge.NewMapping(merge.KV("method", "put"), merge.KV("url", "/b"))
	_, err = client.Fetch(context.Background(), "/a", "get", "payload", config)
	require.NoError(t, err)

	got := last()
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/b", got.path)
	assert.Equal(t, "payload", got.body)
}

func TestPerCallBaseURL(t *testing.T) {
	t.Parallel()
	other, otherLast := newServer(t)
	client := New(Args{BaseURL: "http://127.0.0.1:1"})

	config := merge.NewMapping(merge.KV("baseURL", other.URL+"/v2/"))
	_, err := client.Get(context.Background(), "/users", nil, config)
	require.NoError(t, err)
	assert.Equal(t, "/v2/users", otherLast().path)
}

func TestPerCallTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := New(Args{BaseURL: srv.URL})

	config := merge.NewMapping(merge.KV("timeout", 20))
	_, err := client.Get(context.Background(), "/", nil, config)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingTransport struct{ err error }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func TestTransportErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	client := New(Args{BaseURL: "http://api.invalid"}, WithTransport(failingTransport{err: boom}))

	_, err := client.Get(context.Background(), "/", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, err = client.Post(context.Background(), "/", merge.NewMapping(merge.KV("a", 1)), nil)
	assert.ErrorIs(t, err, boom)
}

func TestUninitializedClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var zero HTTPClient
	_, err := zero.Get(ctx, "/", nil, nil)
	assert.ErrorIs(t, err, ErrClientNotInitialized)
	_, err = zero.Post(ctx, "/", nil, nil)
	assert.ErrorIs(t, err, ErrClientNotInitialized)

	var nilClient *HTTPClient
	_, err = nilClient.Fetch(ctx, "/", "GET", nil, nil)
	assert.ErrorIs(t, err, ErrClientNotInitialized)
	_, err = nilClient.Head(ctx, "/", nil)
	assert.ErrorIs(t, err, ErrClientNotInitialized)
	assert.Equal(t, RequestConfig{}, nilClient.Config())
}
