package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apiv1 "arcsync/shared/contracts/api/v1"

	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, env apiv1.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestHTTPRefresher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, apiv1.PathRefresh, r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get(apiv1.HeaderRequestID))

		var body apiv1.RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "refresh-0", body.RefreshToken)

		env, _ := apiv1.OK(apiv1.TokenResponse{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 900})
		writeEnvelope(w, http.StatusOK, env)
	}))
	defer srv.Close()

	out, err := NewHTTPRefresher(srv.URL+"/", srv.Client()).Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)
	require.Equal(t, apiv1.TokenResponse{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 900}, out)
}

func TestHTTPRefresher_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, apiv1.Fail(apiv1.CodeInvalidRefreshToken, "unknown refresh token"))
	}))
	defer srv.Close()

	_, err := NewHTTPRefresher(srv.URL, srv.Client()).Refresh(context.Background(), "nope")
	var ee *EndpointError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, http.StatusUnauthorized, ee.Status)
	require.Equal(t, apiv1.CodeInvalidRefreshToken, ee.Code)
}

func TestHTTPRefresher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPRefresher(url, nil).Refresh(context.Background(), "r")
	require.Error(t, err)
	var ee *EndpointError
	require.False(t, errors.As(err, &ee))
}

func TestManager_UnreachableRefreshEndpointForcesLogout(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := newSeededStore(t, -time.Minute)
	rec := &logoutRecorder{}
	m := newTestManager(t, store, NewHTTPRefresher(url, nil), WithLogoutFunc(rec.fn))

	_, err := m.GetValidToken(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.Equal(t, 1, rec.count())

	_, ok, _ := store.Load(context.Background())
	require.False(t, ok)
}
