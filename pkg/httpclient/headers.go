package httpclient

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/samvad-hq/restkit/pkg/merge"
)

const (
	HeaderContentType   = "content-type"
	HeaderAuthorization = "Authorization"

	// Flag headers are carried through to the transport unchanged.
	HeaderRetry           = "retry"
	HeaderMaxRetries      = "max-retries"
	HeaderIsAuthorization = "is-authorization"

	ContentTypeJSON = "application/json"

	headersCommon = "common"
)

func defaultHeaders() *merge.Mapping {
	return merge.NewMapping(merge.KV(HeaderContentType, ContentTypeJSON))
}

// truthy reports loose truthiness: null, false, zero numbers and empty
// strings are false, everything else is true.
func truthy(v merge.Value) bool {
	leaf, ok := v.(merge.Leaf)
	if !ok {
		return v != nil
	}
	switch x := leaf.V.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(leaf.V)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	}
	return true
}

// hasAuthorization reports whether headers carry a non-empty Authorization
// header, whatever its case.
func hasAuthorization(headers *merge.Mapping) bool {
	for k, v := range headers.All() {
		if strings.EqualFold(k, HeaderAuthorization) && truthy(v) {
			return true
		}
	}
	return false
}

func headerValue(v merge.Value) (string, bool) {
	switch t := v.(type) {
	case merge.Leaf:
		return leafString(t)
	case merge.Sequence:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			leaf, ok := el.(merge.Leaf)
			if !ok {
				continue
			}
			if s, ok := leafString(leaf); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ", "), true
	}
	return "", false
}

func leafString(l merge.Leaf) (string, bool) {
	switch x := l.V.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return fmt.Sprint(l.V), true
}

// flattenHeaders resolves the headers sent for method: the "common" section,
// then the section named after the lowercase method, then top-level leaves.
// Other nested mappings and null values are dropped.
func flattenHeaders(headers *merge.Mapping, method string) http.Header {
	out := make(http.Header)
	apply := func(m *merge.Mapping) {
		for k, v := range m.All() {
			if _, nested := v.(*merge.Mapping); nested {
				continue
			}
			if s, ok := headerValue(v); ok {
				out.Set(k, s)
			}
		}
	}

	if common, ok := headers.Get(headersCommon); ok {
		if m, isMap := common.(*merge.Mapping); isMap {
			apply(m)
		}
	}
	if method != "" {
		if section, ok := headers.Get(strings.ToLower(method)); ok {
			if m, isMap := section.(*merge.Mapping); isMap {
				apply(m)
			}
		}
	}
	apply(headers)
	return out
}

func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
