package webapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostsync/config"
	"hostsync/metrics"
	"hostsync/refresh"
	"hostsync/source"
)

type fakeRefresh struct {
	mu        sync.Mutex
	running   bool
	pending   []string
	last      *refresh.Report
	cancelled int
	triggered int
}

func (f *fakeRefresh) set(running bool, pending []string, last *refresh.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
	f.pending = pending
	f.last = last
}

func (f *fakeRefresh) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRefresh) Pending() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeRefresh) LastReport() *refresh.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeRefresh) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
}

func (f *fakeRefresh) counts() (triggered, cancelled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggered, f.cancelled
}

func (f *fakeRefresh) Trigger() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered++
	return f.triggered == 1
}

type fakeMirrors map[string]time.Time

func (m fakeMirrors) ModTime(item source.Item) time.Time { return m[item.Location] }

type fakeStats struct{ resets atomic.Int32 }

func (s *fakeStats) GetStats() map[string]interface{} { return map[string]interface{}{"cycles": 3} }
func (s *fakeStats) Reset()                           { s.resets.Add(1) }

func newTestServer(t *testing.T) (*httptest.Server, *fakeRefresh, *fakeStats) {
	t.Helper()
	cfg, err := config.Parse([]byte(`
lists:
  items:
    - title: ads
      location: "https://lists.example.com/ads"
    - title: local
      location: "file:/etc/hosts"
      enabled: false
    - title: ads
      location: "https://mirror.example.org/ads"
`))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).Progress(2, 1, nil)

	fr := &fakeRefresh{}
	fs := &fakeStats{}
	srv := NewServer(Deps{
		Config:    cfg,
		Refresh:   fr,
		Scheduler: fr,
		Mirrors:   fakeMirrors{"https://lists.example.com/ads": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		Stats:     fs,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, fr, fs
}

func decode(t *testing.T, resp *http.Response, data interface{}) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	if data != nil && len(out.Data) > 0 {
		require.NoError(t, json.Unmarshal(out.Data, data))
	}
	return out.APIResponse
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.True(t, decode(t, resp, nil).Success)
}

func TestStatus(t *testing.T) {
	ts, fr, _ := newTestServer(t)
	fr.set(true, []string{"ads"}, &refresh.Report{Total: 2, Done: []string{"ads"}, Errors: []refresh.ItemError{}})

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)

	var got StatusResult
	assert.True(t, decode(t, resp, &got).Success)
	assert.True(t, got.Running)
	assert.Equal(t, []string{"ads"}, got.Pending)
	require.NotNil(t, got.LastReport)
	assert.Equal(t, 2, got.LastReport.Total)
}

func TestRefreshTrigger(t *testing.T) {
	ts, fr, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Refresh triggered", decode(t, resp, nil).Message)

	resp, err = http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, "Refresh already queued", decode(t, resp, nil).Message)

	fr.set(true, nil, nil)
	resp, err = http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, decode(t, resp, nil).Success)
	triggered, _ := fr.counts()
	assert.Equal(t, 2, triggered)
}

func TestRefreshCancel(t *testing.T) {
	ts, fr, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/refresh/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	fr.set(true, nil, nil)
	resp, err = http.Post(ts.URL+"/api/refresh/cancel", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	_, cancelled := fr.counts()
	assert.Equal(t, 1, cancelled)
}

func TestSources(t *testing.T) {
	ts, fr, _ := newTestServer(t)
	fr.set(false, nil, &refresh.Report{Errors: []refresh.ItemError{{
		Title:    "ads",
		Location: "https://lists.example.com/ads",
		Message:  "Server responded with 500 Internal Server Error",
	}}})

	resp, err := http.Get(ts.URL + "/api/sources")
	require.NoError(t, err)

	var got []SourceStatus
	assert.True(t, decode(t, resp, &got).Success)
	require.Len(t, got, 3)

	assert.Equal(t, "ads", got[0].Title)
	assert.Equal(t, "http", got[0].Kind)
	assert.True(t, got[0].Enabled)
	require.NotNil(t, got[0].LastModified)
	assert.Equal(t, 2024, got[0].LastModified.Year())
	assert.Contains(t, got[0].LastError, "500")

	assert.False(t, got[1].Enabled)
	assert.Nil(t, got[1].LastModified)
	assert.Empty(t, got[1].LastError)

	assert.Equal(t, "ads", got[2].Title)
	assert.Empty(t, got[2].LastError, "same title, different location")
}

func TestStatsEndpoints(t *testing.T) {
	ts, _, fs := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	var got map[string]interface{}
	assert.True(t, decode(t, resp, &got).Success)
	assert.Equal(t, 3.0, got["cycles"])

	resp, err = http.Post(ts.URL+"/api/stats/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), fs.resets.Load())
}

func TestConfigEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	var got config.Config
	assert.True(t, decode(t, resp, &got).Success)
	assert.Len(t, got.Lists.Items, 3)
	assert.Equal(t, "127.0.0.1:8088", got.WebAPI.ListenAddr)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hostsync_pending_items 1")
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/refresh")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.False(t, decode(t, resp, nil).Success)
}
