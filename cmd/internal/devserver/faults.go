package devserver

import (
	"net/http"
)

// Fault makes the next matching request fail. With Drop set the connection
// is closed without an answer; otherwise Status and Code are returned.
type Fault struct {
	Method string
	Path   string
	Status int
	Code   string
	Drop   bool
}

// FailNext queues f. Faults match on exact method and path and are consumed in order.
func (s *Server) FailNext(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, f)
}

func (s *Server) takeFault(r *http.Request) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.faults {
		if f.Method == r.Method && f.Path == r.URL.Path {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
			return f, true
		}
	}
	return Fault{}, false
}

func (s *Server) countCall(r *http.Request) {
	s.mu.Lock()
	s.calls[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()
}

// Calls returns how many requests reached method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// RefreshCalls returns how many refresh requests were handled.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// ExpireAccessTokens makes every access token issued so far answer TOKEN_EXPIRED.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.access {
		g.expired = true
	}
}

// RevokeSessions ends every session of userID server-side.
func (s *Server) RevokeSessions(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.access {
		if g.userID == userID {
			s.revoked[g.sessionID] = true
		}
	}
}
