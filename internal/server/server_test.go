package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/app"
	"github.com/ternarybob/vigil/internal/common"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Enabled = false
	cfg.Content.Root = t.TempDir()
	return startServer(t, cfg)
}

// newHistoryServer runs with badger history enabled and one module, "intro",
// under the content root
func newHistoryServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Enabled = true
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Content.Root = t.TempDir()

	module := filepath.Join(cfg.Content.Root, "modules", "intro")
	require.NoError(t, os.MkdirAll(module, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(module, "index.html"), []byte("<p>intro</p>"), 0644))

	return startServer(t, cfg)
}

func startServer(t *testing.T, cfg *common.Config) *httptest.Server {
	t.Helper()

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	ts := httptest.NewServer(New(application).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_HealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(ts.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_UnknownRouteIsJSON404(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestServer_IssuesSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/operations")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "vigil_session" {
			found = true
			assert.NotEmpty(t, c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found, "session cookie not set")
}

func TestServer_PollUnknownKeyIsNotFoundEnvelope(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/operations/poll?key=export:nothing")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, false, env["found"])
	assert.Equal(t, false, env["running"])
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/operations/export-module", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func newSessionClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func getBody(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestServer_HistoryIsScopedToSession(t *testing.T) {
	ts := newHistoryServer(t)
	owner := newSessionClient(t)
	other := newSessionClient(t)

	resp, err := owner.Post(ts.URL+"/api/operations/export-module", "application/json", strings.NewReader(`{"target":"intro"}`))
	require.NoError(t, err)
	var started map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := started["job_id"]
	require.NotEmpty(t, jobID)

	var listing string
	require.Eventually(t, func() bool {
		status, body := getBody(t, owner, ts.URL+"/api/history")
		listing = body
		return status == http.StatusOK && strings.Contains(body, jobID)
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotContains(t, listing, "session_id")

	status, record := getBody(t, owner, ts.URL+"/api/history/"+jobID)
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, record, "session_id")

	for _, path := range []string{"/api/history", "/api/history?scope=all"} {
		status, body := getBody(t, other, ts.URL+path)
		assert.Equal(t, http.StatusOK, status, path)
		assert.NotContains(t, body, jobID, path)
	}

	status, _ = getBody(t, other, ts.URL+"/api/history/"+jobID)
	assert.Equal(t, http.StatusNotFound, status)

	status, ops := getBody(t, other, ts.URL+"/api/operations")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, ops, jobID)
}

func TestServer_ListsContent(t *testing.T) {
	ts := newHistoryServer(t)

	status, body := getBody(t, newSessionClient(t), ts.URL+"/api/content")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"modules":["intro"],"projects":[]}`, body)
}
