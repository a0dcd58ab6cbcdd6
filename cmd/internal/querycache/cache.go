package querycache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"arcsync/cmd/internal/gateway"
	"arcsync/cmd/internal/telemetry"
)

// ErrNoMorePages is returned by FetchNextPage when the last page has no cursor.
var ErrNoMorePages = errors.New("querycache: no more pages")

// ErrReset is returned by a fetch whose result was discarded because Reset
// ran while it was in flight.
var ErrReset = errors.New("querycache: reset during fetch")

// DefaultStaleTime is how long a fetched query is served by Query without refetching.
const DefaultStaleTime = 30 * time.Second

type entry struct {
	key     Key
	data    Data
	invalid bool
}

// Cache holds query data keyed by Key.String(). Safe for concurrent use.
type Cache struct {
	fetcher   Fetcher
	snaps     SnapshotStore
	log       *slog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
	staleTime time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	// commit serializes fetch completions so snapshot and memory writes
	// land in completion order. gen counts Resets and is guarded by commit.
	commit sync.Mutex
	gen    uint64

	subMu   sync.Mutex
	subs    map[string]map[uint64]func(Data)
	nextSub uint64
}

// Option customizes a Cache.
type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStaleTime sets how long Query trusts cached data. Zero always refetches.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.staleTime = d
		}
	}
}

// New returns a cache over fetcher. A nil snaps keeps snapshots in memory.
func New(fetcher Fetcher, snaps SnapshotStore, opts ...Option) *Cache {
	if snaps == nil {
		snaps = NewMemorySnapshots()
	}
	c := &Cache{
		fetcher:   fetcher,
		snaps:     snaps,
		log:       slog.New(slog.DiscardHandler),
		now:       time.Now,
		staleTime: DefaultStaleTime,
		entries:   make(map[string]*entry),
		subs:      make(map[string]map[uint64]func(Data)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage loads one page from the network. A successful first page
// replaces the query data and the stored snapshot. A first page that fails
// with a network error falls back to the snapshot when one exists; every
// other failure is returned unchanged. A fetch that straddles Reset is
// discarded with ErrReset.
func (c *Cache) FetchPage(ctx context.Context, key Key, cursor string) (Page, error) {
	page, _, err := c.fetch(ctx, key, cursor)
	return page, err
}

func (c *Cache) fetch(ctx context.Context, key Key, cursor string) (Page, Data, error) {
	kind := pageKind(cursor)
	gen := c.generation()
	payload, err := c.fetcher.FetchPage(ctx, key, cursor)
	if err != nil {
		c.metrics.IncCacheFetch(kind, "error")
		if cursor == "" && gateway.IsNetwork(err) {
			page, data, ok, ferr := c.fallback(ctx, key, gen)
			if ferr != nil {
				return Page{}, Data{}, ferr
			}
			if ok {
				return page, data, nil
			}
		}
		return Page{}, Data{}, err
	}

	page := Page{Cursor: cursor, Payload: payload, SyncedAt: c.now().UTC()}

	c.commit.Lock()
	if c.gen != gen {
		c.commit.Unlock()
		c.log.Debug("querycache.fetch_discarded", "key", key.String())
		return Page{}, Data{}, ErrReset
	}
	if page.First() {
		// The caller may have gone away; the snapshot should still land.
		err := c.snaps.Put(context.WithoutCancel(ctx), Snapshot{
			Key:      key.String(),
			Payload:  page.Payload,
			SyncedAt: page.SyncedAt,
		})
		if err != nil {
			c.log.Warn("querycache.snapshot_write_failed", "key", key.String(), "err", err)
		}
	}
	// Only a first page proves the query current; later pages keep the flag.
	validity := keepValidity
	if page.First() {
		validity = markValid
	}
	data := c.store(key, func(d Data) Data { return d.withPage(page) }, validity)
	c.commit.Unlock()

	c.metrics.IncCacheFetch(kind, "ok")
	c.notify(key, data)
	return page.Clone(), data, nil
}

func (c *Cache) fallback(ctx context.Context, key Key, gen uint64) (Page, Data, bool, error) {
	snap, ok, err := c.snaps.Get(context.WithoutCancel(ctx), key.String())
	if err != nil {
		c.log.Warn("querycache.snapshot_read_failed", "key", key.String(), "err", err)
		return Page{}, Data{}, false, nil
	}
	if !ok {
		return Page{}, Data{}, false, nil
	}
	page := Page{Payload: snap.Payload, FromSnapshot: true, SyncedAt: snap.SyncedAt}

	c.commit.Lock()
	if c.gen != gen {
		c.commit.Unlock()
		return Page{}, Data{}, false, ErrReset
	}
	data := c.store(key, func(d Data) Data { return d.withPage(page) }, markInvalid)
	c.commit.Unlock()

	c.metrics.IncCacheFallback()
	c.log.Info("querycache.snapshot_served", "key", key.String(), "synced_at", snap.SyncedAt)
	c.notify(key, data)
	return page.Clone(), data, true, nil
}

func (c *Cache) generation() uint64 {
	c.commit.Lock()
	defer c.commit.Unlock()
	return c.gen
}

// FetchNextPage loads the page after the last one held for key.
func (c *Cache) FetchNextPage(ctx context.Context, key Key) (Page, error) {
	page, _, err := c.next(ctx, key)
	return page, err
}

// LoadMore fetches the next page like FetchNextPage and returns the query
// data that page was committed into.
func (c *Cache) LoadMore(ctx context.Context, key Key) (Data, error) {
	_, d, err := c.next(ctx, key)
	return d, err
}

func (c *Cache) next(ctx context.Context, key Key) (Page, Data, error) {
	d, ok := c.Data(key)
	if !ok || len(d.Pages) == 0 {
		return c.fetch(ctx, key, "")
	}
	cursor := nextCursor(d.Pages[len(d.Pages)-1].Payload)
	if cursor == "" {
		return Page{}, Data{}, ErrNoMorePages
	}
	return c.fetch(ctx, key, cursor)
}

// Query returns cached data when it is valid and fresh, otherwise refetches
// the first page.
func (c *Cache) Query(ctx context.Context, key Key) (Data, error) {
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	fresh := ok && !e.invalid && c.now().Sub(e.data.UpdatedAt) < c.staleTime
	if fresh {
		_, fresh = e.data.FirstPage()
	}
	var d Data
	if fresh {
		d = e.data.Clone()
	}
	c.mu.RUnlock()
	if fresh {
		return d, nil
	}
	_, d, err := c.fetch(ctx, key, "")
	if err != nil {
		return Data{}, err
	}
	return d, nil
}

// Data returns a private copy of the data held for key.
func (c *Cache) Data(key Key) (Data, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Data{}, false
	}
	return e.data.Clone(), true
}

// SetData replaces the data held for key with a copy of d. An invalidated
// key stays invalidated.
func (c *Cache) SetData(key Key, d Data) {
	data := c.store(key, func(Data) Data { return d.Clone() }, keepValidity)
	c.notify(key, data)
}

// Invalidate marks keys as needing a refetch. Held data stays readable.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	for _, k := range keys {
		if e, ok := c.entries[k.String()]; ok {
			e.invalid = true
		}
	}
	c.mu.Unlock()
	c.log.Debug("querycache.invalidated", "keys", len(keys))
}

// InvalidateEndpoint marks every key whose endpoint starts with prefix.
func (c *Cache) InvalidateEndpoint(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.key.HasEndpointPrefix(prefix) {
			e.invalid = true
		}
	}
}

// IsStale reports whether key is unknown, invalidated or served from a snapshot.
func (c *Cache) IsStale(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	return !ok || e.invalid
}

// Subscribe calls fn with a copy of the new data whenever key changes.
// The returned func unsubscribes.
func (c *Cache) Subscribe(key Key, fn func(Data)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSub++
	id := c.nextSub
	k := key.String()
	if c.subs[k] == nil {
		c.subs[k] = make(map[uint64]func(Data))
	}
	c.subs[k][id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs[k], id)
		if len(c.subs[k]) == 0 {
			delete(c.subs, k)
		}
	}
}

// Reset drops all query data and persisted snapshots. Fetches already in
// flight are discarded when they complete.
func (c *Cache) Reset(ctx context.Context) error {
	c.commit.Lock()
	defer c.commit.Unlock()
	c.gen++
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	return c.snaps.Clear(ctx)
}

type validity int

const (
	keepValidity validity = iota
	markValid
	markInvalid
)

func (c *Cache) store(key Key, fn func(Data) Data, v validity) Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: key}
		c.entries[k] = e
	}
	e.data = fn(e.data)
	switch v {
	case markValid:
		e.invalid = false
	case markInvalid:
		e.invalid = true
	}
	return e.data.Clone()
}

func (c *Cache) notify(key Key, d Data) {
	c.subMu.Lock()
	fns := make([]func(Data), 0, len(c.subs[key.String()]))
	for _, fn := range c.subs[key.String()] {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(d.Clone())
	}
}

func pageKind(cursor string) string {
	if cursor == "" {
		return "first"
	}
	return "next"
}
