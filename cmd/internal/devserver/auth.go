package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"arcsync/cmd/internal/ids"
	"arcsync/cmd/security/token"
	apiv1 "arcsync/shared/contracts/api/v1"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type user struct {
	id    string
	email string
	hash  []byte
}

type accessGrant struct {
	userID    string
	sessionID string
	expired   bool
}

type refreshGrant struct {
	userID    string
	sessionID string
	expiresAt time.Time
}

type accessClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type principalKey struct{}

type principal struct {
	userID    string
	sessionID string
	jti       string
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// AddUser registers a login. Emails are case-insensitive.
func (s *Server) AddUser(id, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = &user{id: id, email: email, hash: hash}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req apiv1.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeValidation, "invalid json")
		return
	}
	var details []apiv1.FieldError
	if strings.TrimSpace(req.Email) == "" {
		details = append(details, apiv1.FieldError{Path: "email", Message: "required"})
	}
	if req.Password == "" {
		details = append(details, apiv1.FieldError{Path: "password", Message: "required"})
	}
	if len(details) > 0 {
		writeError(w, http.StatusUnprocessableEntity, apiv1.CodeValidation, "invalid login", details...)
		return
	}

	s.mu.Lock()
	u := s.users[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		s.log.Info("devserver.auth.login.failed")
		writeError(w, http.StatusUnauthorized, apiv1.CodeInvalidCredentials, "invalid email or password")
		return
	}

	now := s.now()
	sessionID, err := ids.NewULID(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiv1.CodeInternal, "session id")
		return
	}
	resp, err := s.issue(u.id, sessionID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiv1.CodeInternal, "issue tokens")
		return
	}
	s.log.Info("devserver.auth.login.ok", "user_id", u.id, "session_id", sessionID)
	writeOK(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if s.cfg.RefreshLatency > 0 {
		select {
		case <-time.After(s.cfg.RefreshLatency):
		case <-r.Context().Done():
			return
		}
	}

	var req apiv1.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, apiv1.CodeValidation, "refresh_token required",
			apiv1.FieldError{Path: "refresh_token", Message: "required"})
		return
	}

	now := s.now()
	key := token.HashHMACSHA256Hex(req.RefreshToken, s.refreshKey)

	s.mu.Lock()
	g := s.refresh[key]
	valid := g != nil && now.Before(g.expiresAt) && !s.revoked[g.sessionID]
	if g != nil {
		// Rotation: a refresh token is good for one exchange.
		delete(s.refresh, key)
	}
	s.mu.Unlock()

	if !valid {
		s.log.Info("devserver.auth.refresh.rejected", "refresh_fp", token.Fingerprint(req.RefreshToken))
		writeError(w, http.StatusUnauthorized, apiv1.CodeInvalidRefreshToken, "refresh token invalid or expired")
		return
	}

	resp, err := s.issue(g.userID, g.sessionID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiv1.CodeInternal, "issue tokens")
		return
	}
	s.log.Info("devserver.auth.refresh.ok", "user_id", g.userID, "session_id", g.sessionID)
	writeOK(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	s.mu.Lock()
	s.revoked[p.sessionID] = true
	for k, g := range s.refresh {
		if g.sessionID == p.sessionID {
			delete(s.refresh, k)
		}
	}
	s.mu.Unlock()
	s.log.Info("devserver.auth.logout", "user_id", p.userID, "session_id", p.sessionID)
	writeOK(w, http.StatusOK, map[string]bool{"ok": true})
}

// issue mints an access/refresh pair for an existing session.
func (s *Server) issue(userID, sessionID string, now time.Time) (apiv1.TokenResponse, error) {
	jti, err := randomHex(16)
	if err != nil {
		return apiv1.TokenResponse{}, err
	}
	claims := accessClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return apiv1.TokenResponse{}, err
	}
	refresh, err := randomHex(32)
	if err != nil {
		return apiv1.TokenResponse{}, err
	}

	s.mu.Lock()
	s.access[jti] = &accessGrant{userID: userID, sessionID: sessionID}
	s.refresh[token.HashHMACSHA256Hex(refresh, s.refreshKey)] = &refreshGrant{
		userID:    userID,
		sessionID: sessionID,
		expiresAt: now.Add(s.cfg.RefreshTTL),
	}
	s.mu.Unlock()

	resp := apiv1.TokenResponse{AccessToken: access, RefreshToken: refresh}
	if !s.cfg.OmitExpiresIn {
		resp.ExpiresIn = int64(s.cfg.AccessTTL / time.Second)
	}
	return resp, nil
}

type authFailure struct {
	code string
	msg  string
}

func (s *Server) authenticate(r *http.Request) (principal, *authFailure) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return principal{}, &authFailure{apiv1.CodeUnauthorized, "missing bearer token"}
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims,
		func(*jwt.Token) (any, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return principal{}, &authFailure{apiv1.CodeTokenExpired, "access token expired"}
	case err != nil:
		return principal{}, &authFailure{apiv1.CodeUnauthorized, "invalid access token"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.access[claims.ID]
	switch {
	case g == nil:
		return principal{}, &authFailure{apiv1.CodeUnauthorized, "unknown access token"}
	case s.revoked[g.sessionID]:
		return principal{}, &authFailure{apiv1.CodeSessionRevoked, "session revoked"}
	case g.expired:
		return principal{}, &authFailure{apiv1.CodeTokenExpired, "access token expired"}
	}
	return principal{userID: g.userID, sessionID: g.sessionID, jti: claims.ID}, nil
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, fail := s.authenticate(r)
		if fail != nil {
			writeError(w, http.StatusUnauthorized, fail.code, fail.msg)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}
