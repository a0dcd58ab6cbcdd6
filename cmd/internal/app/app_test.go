package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"arcsync/cmd/internal/devserver"
	"arcsync/cmd/internal/session"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newDevServer(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	cfg := devserver.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	srv, err := devserver.New(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.AddUser("u1", "ada@example.com", "correct horse"))
	srv.AddConversation("C1", "Notes", "u1")
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func testAppConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Store = StoreMemory
	return cfg
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rr.Body)
	return rr.Code, string(body)
}

func TestApp_WiresClientAndOps(t *testing.T) {
	_, ts := newDevServer(t)

	a, err := New(context.Background(), testAppConfig(ts.URL), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ops := a.OpsHandler()
	code, _ := get(t, ops, "/healthz")
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, ops, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code, "not ready before login")

	ctx := context.Background()
	require.NoError(t, a.Chat.Login(ctx, "ada@example.com", "correct horse"))
	convs, err := a.Chat.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs.Items, 1)

	code, _ = get(t, ops, "/readyz")
	require.Equal(t, http.StatusOK, code)

	code, body := get(t, ops, "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `arcsync_requests_total{method="GET",status="200"} 1`)
	require.Contains(t, body, "go_goroutines")
}

func TestApp_SessionEndedHookRunsAfterLogout(t *testing.T) {
	_, ts := newDevServer(t)

	var mu sync.Mutex
	var reasons []session.LogoutReason
	a, err := New(context.Background(), testAppConfig(ts.URL), nil, WithSessionEnded(func(r session.LogoutReason, _ error) {
		mu.Lock()
		reasons = append(reasons, r)
		mu.Unlock()
	}))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx := context.Background()
	require.NoError(t, a.Chat.Login(ctx, "ada@example.com", "correct horse"))
	require.NoError(t, a.Chat.Logout(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []session.LogoutReason{session.ReasonUserLogout}, reasons)
}

func TestApp_SQLiteStoreSurvivesRestart(t *testing.T) {
	t.Setenv("ARCSYNC_KDF_MEMORY_KIB", "8192")
	t.Setenv("ARCSYNC_KDF_ITERATIONS", "1")
	_, ts := newDevServer(t)

	cfg := testAppConfig(ts.URL)
	cfg.Store = StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "arcsync.db")
	cfg.Passphrase = "open sesame"

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Chat.Login(ctx, "ada@example.com", "correct horse"))
	a.Close()

	b, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	p, ok, err := b.Session.Current(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.Count(p.AccessToken, ".") == 2, "access token should be a JWT")

	cfg.Passphrase = "wrong"
	c, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	_, _, err = c.Session.Current(ctx)
	require.Error(t, err, "a different passphrase must not open stored credentials")
}

func TestApp_DurableStoreNeedsPassphrase(t *testing.T) {
	cfg := testAppConfig("http://127.0.0.1:1")
	cfg.Store = StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "arcsync.db")

	_, err := New(context.Background(), cfg, nil)
	require.True(t, errors.Is(err, ErrPassphraseRequired), "err = %v", err)
}
