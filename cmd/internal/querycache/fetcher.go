package querycache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"arcsync/cmd/internal/gateway"
	apiv1 "arcsync/shared/contracts/api/v1"
)

// Fetcher loads one page of a query. cursor is empty for the first page.
type Fetcher interface {
	FetchPage(ctx context.Context, key Key, cursor string) (json.RawMessage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key Key, cursor string) (json.RawMessage, error)

func (f FetcherFunc) FetchPage(ctx context.Context, key Key, cursor string) (json.RawMessage, error) {
	return f(ctx, key, cursor)
}

// GatewayFetcher issues authenticated GETs through the request gateway.
type GatewayFetcher struct {
	G *gateway.Gateway
}

func (f GatewayFetcher) FetchPage(ctx context.Context, key Key, cursor string) (json.RawMessage, error) {
	q := url.Values{}
	for k, vs := range key.Params {
		q[k] = append([]string(nil), vs...)
	}
	if cursor != "" {
		q.Set(apiv1.CursorParam, cursor)
	}
	return f.G.Execute(ctx, gateway.Request{
		Method:        http.MethodGet,
		Path:          key.Endpoint,
		Query:         q,
		Authenticated: true,
	})
}
