package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/jobs"
	"github.com/ternarybob/vigil/internal/models"
)

func newTestManager() *Manager {
	return NewManager(arbor.NewLogger(), nil, "test_session", 0)
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager()

	s := m.Create()
	require.NotNil(t, s.Registry)
	assert.NotEmpty(t, s.ID)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestManager_ResolveCreatesForUnknownID(t *testing.T) {
	m := newTestManager()

	s, created := m.Resolve("stale-id")
	assert.True(t, created)
	assert.NotEqual(t, "stale-id", s.ID)

	again, created := m.Resolve(s.ID)
	assert.False(t, created)
	assert.Same(t, s, again)
}

func TestManager_ExpireClearsRegistry(t *testing.T) {
	m := newTestManager()
	runner := jobs.NewRunner(arbor.NewLogger(), nil, 0)
	release := make(chan struct{})
	defer close(release)

	s := m.Create()
	h, err := s.Registry.TryStart("export:a", func() *jobs.Job {
		return runner.Start(models.JobMeta{Key: "export:a"}, func(ctx context.Context, p *jobs.Progress) (interface{}, error) {
			<-release
			return nil, nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Expire(time.Hour, time.Now()))
	assert.Equal(t, 1, m.Expire(time.Hour, time.Now().Add(2*time.Hour)))

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Registry.Len())
	// Teardown does not cancel the job
	assert.True(t, h.Job().IsRunning())
}

func TestManager_ExpireDisabled(t *testing.T) {
	m := newTestManager()
	m.Create()
	assert.Equal(t, 0, m.Expire(0, time.Now().Add(time.Hour*1000)))
	assert.Equal(t, 1, m.Len())
}

func TestManager_MiddlewareIssuesCookieOnce(t *testing.T) {
	m := newTestManager()

	var seen *Session
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = s
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operations", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "test_session", cookies[0].Name)
	assert.Equal(t, seen.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	first := seen

	req := httptest.NewRequest(http.MethodGet, "/api/operations", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	assert.Same(t, first, seen)
}

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
