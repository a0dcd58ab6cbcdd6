package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apiv1 "arcsync/shared/contracts/api/v1"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (apiv1.TokenResponse, error)
}

// HTTPRefresher calls the refresh endpoint directly.
type HTTPRefresher struct {
	url    string
	client *http.Client
}

// NewHTTPRefresher targets baseURL + apiv1.PathRefresh. A nil client uses
// a dedicated client with a 15s timeout.
func NewHTTPRefresher(baseURL string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPRefresher{
		url:    strings.TrimRight(baseURL, "/") + apiv1.PathRefresh,
		client: client,
	}
}

// Refresh posts {"refresh_token"} and decodes the token payload.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (apiv1.TokenResponse, error) {
	body, err := json.Marshal(apiv1.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return apiv1.TokenResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return apiv1.TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiv1.HeaderRequestID, uuid.NewString())

	resp, err := r.client.Do(req)
	if err != nil {
		return apiv1.TokenResponse{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiv1.TokenResponse{}, fmt.Errorf("refresh response: %w", err)
	}

	var env apiv1.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apiv1.TokenResponse{}, &EndpointError{Status: resp.StatusCode, Code: apiv1.CodeInternal, Message: "malformed response envelope"}
	}
	if resp.StatusCode/100 != 2 || !env.Success {
		ee := &EndpointError{Status: resp.StatusCode}
		if env.Error != nil {
			ee.Code, ee.Message = env.Error.Code, env.Error.Message
		}
		return apiv1.TokenResponse{}, ee
	}

	var out apiv1.TokenResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return apiv1.TokenResponse{}, fmt.Errorf("refresh payload: %w", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return apiv1.TokenResponse{}, errors.New("refresh payload: missing token")
	}
	return out, nil
}

// ExpiryFromJWT reads the exp claim of a JWT access token without verifying
// its signature. ok is false for opaque tokens.
func ExpiryFromJWT(token string) (exp time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.UTC(), true
}
