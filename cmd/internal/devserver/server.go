package devserver

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"arcsync/cmd/internal/ratelimit"
	apiv1 "arcsync/shared/contracts/api/v1"
)

// Server is the fake API. It implements http.Handler.
type Server struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	signingKey []byte
	refreshKey []byte

	mux   *http.ServeMux
	store *MessageStore
	hub   *Hub

	mu       sync.Mutex
	users    map[string]*user // by email
	access   map[string]*accessGrant
	refresh  map[string]*refreshGrant // by HMAC of the refresh token
	revoked  map[string]bool          // session ids
	convs    map[string]*conversation
	faults   []Fault
	calls    map[string]int
	limiters map[string]*ratelimit.Window

	refreshCalls atomic.Int64
}

// Option customizes a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a server with no users and no conversations.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		log:        slog.New(slog.DiscardHandler),
		now:        time.Now,
		signingKey: make([]byte, 32),
		refreshKey: make([]byte, 32),
		store:      NewMessageStore(),
		users:      make(map[string]*user),
		access:     make(map[string]*accessGrant),
		refresh:    make(map[string]*refreshGrant),
		revoked:    make(map[string]bool),
		convs:      make(map[string]*conversation),
		calls:      make(map[string]int),
		limiters:   make(map[string]*ratelimit.Window),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := rand.Read(s.signingKey); err != nil {
		return nil, fmt.Errorf("devserver: signing key: %w", err)
	}
	if _, err := rand.Read(s.refreshKey); err != nil {
		return nil, fmt.Errorf("devserver: refresh key: %w", err)
	}
	s.hub = NewHub(s.log)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiv1.PathLogin, s.handleLogin)
	mux.HandleFunc("POST "+apiv1.PathRefresh, s.handleRefresh)
	mux.HandleFunc("POST "+apiv1.PathLogout, s.authed(s.handleLogout))
	mux.HandleFunc("GET "+apiv1.PathConversations, s.authed(s.handleConversations))
	mux.HandleFunc("GET "+apiv1.PathConversations+"/{id}/messages", s.authed(s.handleMessages))
	mux.HandleFunc("POST "+apiv1.PathConversations+"/{id}/messages", s.authed(s.handleSend))
	mux.HandleFunc("POST "+apiv1.PathConversations+"/{id}/read", s.authed(s.handleRead))
	mux.HandleFunc("GET "+apiv1.PathRealtime, s.handleWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, apiv1.CodeNotFound, "no such route")
	})
	s.mux = mux
}

// ServeHTTP applies fault injection and rate limiting, then routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.countCall(r)
	if requestID := r.Header.Get(apiv1.HeaderRequestID); requestID != "" {
		w.Header().Set(apiv1.HeaderRequestID, requestID)
	}

	if f, ok := s.takeFault(r); ok {
		if f.Drop {
			s.drop(w)
			return
		}
		writeError(w, f.Status, f.Code, "injected fault")
		return
	}

	allowed, q := s.limiter(r).Allow(s.now())
	h := w.Header()
	h.Set(apiv1.HeaderRateLimitLimit, strconv.Itoa(q.Limit))
	h.Set(apiv1.HeaderRateLimitRemaining, strconv.Itoa(q.Remaining))
	h.Set(apiv1.HeaderRateLimitReset, strconv.FormatInt(q.Reset.Unix(), 10))
	if !allowed {
		h.Set("Retry-After", strconv.FormatInt(int64(q.Reset.Sub(s.now()).Seconds())+1, 10))
		writeError(w, http.StatusTooManyRequests, apiv1.CodeRateLimited, "too many requests")
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *Server) limiter(r *http.Request) *ratelimit.Window {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.limiters[host]
	if l == nil {
		l = ratelimit.New(s.cfg.RateLimit, s.cfg.RateWindow)
		s.limiters[host] = l
	}
	return l
}

// drop answers with headers and a truncated body, then closes the
// connection. The client sees the failure while reading the body, after the
// point where a transport would replay the request.
func (s *Server) drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 1024\r\n\r\n{\"success\":"))
	_ = conn.Close()
}
