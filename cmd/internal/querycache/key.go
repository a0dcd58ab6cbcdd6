package querycache

import (
	"net/url"
	"strings"
)

// Key identifies a query: an endpoint plus its parameters, excluding the
// pagination cursor.
type Key struct {
	Endpoint string
	Params   url.Values
}

// NewKey returns a Key for endpoint with optional params.
func NewKey(endpoint string, params url.Values) Key {
	return Key{Endpoint: endpoint, Params: params}
}

// String is the canonical identity: parameters sorted by name.
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Endpoint
	}
	return k.Endpoint + "?" + k.Params.Encode()
}

// HasEndpointPrefix reports whether k's endpoint starts with prefix.
func (k Key) HasEndpointPrefix(prefix string) bool {
	return strings.HasPrefix(k.Endpoint, prefix)
}
