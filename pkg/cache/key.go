package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Params is a request parameter set. Values are expected to be strings,
// numbers or booleans.
type Params map[string]any

// Signature derives the canonical cache key for an endpoint and its
// parameters.
//
// Format: <endpoint>?<k1=v1&k2=v2...> with keys sorted, so insertion order
// never matters. An empty parameter set still yields "<endpoint>?".
//
// Values are stringified verbatim with fmt.Sprint, so page 1 and page "1"
// produce the same key and share one cache entry. Callers must pass
// parameters whose string forms are equivalent upstream; values that render
// alike but mean different things must be normalized before calling.
func Signature(endpoint string, params Params) string {
	keys := params.sortedKeys()

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+fmt.Sprint(params[key]))
	}

	return endpoint + "?" + strings.Join(pairs, "&")
}

// Key identifies a cached response.
type Key struct {
	// Endpoint is the path relative to the API base URL (e.g. "/tmdb/movie/550")
	Endpoint string

	// Params are the query parameters sent with the request
	Params Params
}

// String returns the canonical signature of the key.
func (k Key) String() string {
	return Signature(k.Endpoint, k.Params)
}

// Values converts the parameters into query values, stringified the same way
// as Signature.
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))
	for key, value := range p {
		values.Set(key, fmt.Sprint(value))
	}
	return values
}

// With returns a copy of p with extra merged over it.
func (p Params) With(extra Params) Params {
	out := make(Params, len(p)+len(extra))
	for key, value := range p {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}

func (p Params) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
