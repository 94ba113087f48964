package httpclient

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/restkit/pkg/merge"
)

// Provider is the verb-oriented calling surface of the client facade.
// Every method merges its per-call config over the instance defaults and
// returns resty's response and error untouched.
type Provider interface {
	Fetch(ctx context.Context, url, method string, data any, config *merge.Mapping) (*resty.Response, error)
	Get(ctx context.Context, url string, params, config *merge.Mapping) (*resty.Response, error)
	Delete(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error)
	Head(ctx context.Context, url string, config *merge.Mapping) (*resty.Response, error)
	Options(ctx context.Context, url string, config *merge.Mapping) (*resty.Response, error)
	Post(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error)
	Put(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error)
	Patch(ctx context.Context, url string, data any, config *merge.Mapping) (*resty.Response, error)
}

// Storage is a synchronous key-value string store holding bearer tokens.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
}

var _ Provider = (*HTTPClient)(nil)
