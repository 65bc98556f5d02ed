package sessions

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/jobs"
)

type contextKey struct{}

// Session is one user's context. It owns exactly one job registry.
type Session struct {
	ID        string
	Registry  *jobs.Registry
	CreatedAt time.Time
	lastSeen  atomic.Int64
}

// LastSeen returns the time of the most recent request in this session
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Manager keeps sessions in memory. Nothing survives a restart.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	cookieName    string
	maxPerSession int
	secureCookie  bool
	eventService  interfaces.EventService // Optional: may be nil for testing
	logger        arbor.ILogger
}

// NewManager creates a session manager. maxPerSession bounds running jobs per session (0 = unbounded).
func NewManager(logger arbor.ILogger, eventService interfaces.EventService, cookieName string, maxPerSession int) *Manager {
	if cookieName == "" {
		cookieName = "vigil_session"
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		cookieName:    cookieName,
		maxPerSession: maxPerSession,
		eventService:  eventService,
		logger:        logger,
	}
}

// SetSecureCookie marks issued cookies Secure (production behind TLS)
func (m *Manager) SetSecureCookie(secure bool) {
	m.secureCookie = secure
}

// Create starts a new session with an empty registry
func (m *Manager) Create() *Session {
	now := time.Now()
	s := &Session{
		ID:        common.NewSessionID(),
		Registry:  jobs.NewRegistry(m.logger, m.maxPerSession),
		CreatedAt: now,
	}
	s.touch(now)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug().Str("session_id", s.ID).Msg("Session created")
	return s
}

// Get returns a live session and marks it seen
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(time.Now())
	}
	return s, ok
}

// Resolve returns the session for id, creating a fresh one when id is unknown
func (m *Manager) Resolve(id string) (*Session, bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// All returns every live session ordered by ID
func (m *Manager) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire tears down sessions idle longer than idle. Their registries are
// cleared; jobs still running finish unobserved.
func (m *Manager) Expire(idle time.Duration, now time.Time) int {
	if idle <= 0 {
		return 0
	}

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > idle {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		handles := s.Registry.Clear()
		m.logger.Info().
			Str("session_id", s.ID).
			Int("handles", handles).
			Msg("Session expired")

		if m.eventService != nil {
			payload := map[string]interface{}{
				"session_id": s.ID,
				"handles":    handles,
			}
			if err := m.eventService.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSessionExpired, Payload: payload}); err != nil {
				m.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to publish session expiry")
			}
		}
	}

	return len(expired)
}

// Middleware resolves the session cookie, issuing one when missing or stale,
// and stores the session in the request context
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if cookie, err := r.Cookie(m.cookieName); err == nil {
			id = cookie.Value
		}

		s, created := m.Resolve(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     m.cookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// WithSession returns a context carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session placed by Middleware
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
