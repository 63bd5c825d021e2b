package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostsync/source"
)

var upstreamModTime = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

// hostsServer serves body with Last-Modified and honours If-Modified-Since.
type hostsServer struct {
	*httptest.Server
	body     []byte
	requests atomic.Int32
	full     atomic.Int32
	agent    atomic.Value
}

func newHostsServer(t *testing.T, body string) *hostsServer {
	t.Helper()
	s := &hostsServer{body: []byte(body)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.agent.Store(r.UserAgent())
		if ims, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !upstreamModTime.After(ims) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		s.full.Add(1)
		w.Header().Set("Last-Modified", upstreamModTime.Format(http.TimeFormat))
		w.Write(s.body)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestFetcher(t *testing.T, client *http.Client) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	f := New(Options{
		Client:    client,
		Resolver:  source.Resolver{Dir: dir},
		UserAgent: "hostsync-test",
	})
	return f, dir
}

func mirrorOf(t *testing.T, dir, location string) string {
	t.Helper()
	p, ok := source.Resolver{Dir: dir}.MirrorPath(location)
	require.True(t, ok)
	return p
}

func TestFetchUpdatedThenNotModified(t *testing.T) {
	srv := newHostsServer(t, "0.0.0.0 ads.example.com\n")
	f, dir := newTestFetcher(t, srv.Client())
	item := source.Item{Title: "ads", Location: srv.URL + "/hosts", Enabled: true}

	outcome, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	path := mirrorOf(t, dir, item.Location)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0 ads.example.com\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, upstreamModTime.Equal(info.ModTime()), "mtime %v", info.ModTime())
	assert.True(t, upstreamModTime.Equal(f.ModTime(item)))
	assert.Equal(t, "hostsync-test", srv.agent.Load())

	outcome, err = f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotModified, outcome)
	assert.Equal(t, int32(2), srv.requests.Load())
	assert.Equal(t, int32(1), srv.full.Load(), "second fetch must be answered with 304")
}

func TestFetchUnconditionalWhenMirrorHasNoTime(t *testing.T) {
	srv := newHostsServer(t, "fresh")
	f, dir := newTestFetcher(t, srv.Client())
	item := source.Item{Title: "ads", Location: srv.URL + "/hosts", Enabled: true}

	path := mirrorOf(t, dir, item.Location)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
	require.NoError(t, os.Chtimes(path, time.Unix(0, 0), time.Unix(0, 0)))

	outcome, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, int32(1), srv.full.Load())
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t, srv.Client())
	item := source.Item{Title: "missing", Location: srv.URL + "/hosts", Enabled: true}

	outcome, err := f.Fetch(context.Background(), item)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, ErrUpstream)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.Equal(t, "Server responded with 404 Not Found", ferr.Summary())

	_, statErr := os.Stat(mirrorOf(t, dir, item.Location))
	assert.True(t, os.IsNotExist(statErr), "no write on upstream error")
}

func TestFetchContentReference(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("no network expected")
	})}

	denied := New(Options{Client: client, Granter: source.GranterFunc(func(string) bool { return false })})
	outcome, err := denied.Fetch(context.Background(), source.Item{Title: "local", Location: "content:///sdcard/hosts", Enabled: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, "Permission denied", err.(*Error).Summary())

	granted := New(Options{Client: client, Granter: source.GranterFunc(func(string) bool { return true })})
	outcome, err = granted.Fetch(context.Background(), source.Item{Title: "local", Location: "content:///sdcard/hosts", Enabled: true})
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	assert.Equal(t, int32(0), calls.Load())
}

func TestFetchSkipsNonDownloadable(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request to %s", r.URL)
		return nil, nil
	})}
	f, _ := newTestFetcher(t, client)

	for _, item := range []source.Item{
		{Title: "file", Location: "file:/etc/hosts", Enabled: true},
		{Title: "host", Location: "example.com", Enabled: true},
		{Title: "ftp", Location: "ftp://example.com/hosts", Enabled: true},
		{Title: "disabled", Location: "https://example.com/hosts", Enabled: false},
	} {
		outcome, err := f.Fetch(context.Background(), item)
		assert.NoError(t, err, item.Title)
		assert.Equal(t, OutcomeSkipped, outcome, item.Title)
	}
}

func TestFetchInvalidLocation(t *testing.T) {
	f, _ := newTestFetcher(t, nil)

	outcome, err := f.Fetch(context.Background(), source.Item{Title: "broken", Location: "http://[::1", Enabled: true})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, ErrInvalidLocation)
	assert.Equal(t, "Invalid URL: http://[::1", err.(*Error).Summary())
}

// failingBody returns some bytes and then breaks like a dropped connection.
type failingBody struct {
	r io.Reader
}

func (b *failingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (b *failingBody) Close() error { return nil }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFetchStreamFailureKeepsPriorMirror(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{},
			Body:       &failingBody{r: strings.NewReader(strings.Repeat("x", 10000))},
			Request:    r,
		}, nil
	})}
	f, dir := newTestFetcher(t, client)
	item := source.Item{Title: "flaky", Location: "https://lists.example.com/hosts", Enabled: true}

	path := mirrorOf(t, dir, item.Location)
	prior := []byte("127.0.0.1 prior\n")
	require.NoError(t, os.WriteFile(path, prior, 0644))

	outcome, err := f.Fetch(context.Background(), item)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.True(t, bytes.Equal(prior, data), "prior mirror must be unchanged")

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1, "staging file must be removed")
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestFetchWithoutLastModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "body")
	}))
	defer srv.Close()

	f, dir := newTestFetcher(t, srv.Client())
	item := source.Item{Title: "plain", Location: srv.URL, Enabled: true}

	before := time.Now().Add(-time.Minute)
	outcome, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	info, err := os.Stat(mirrorOf(t, dir, item.Location))
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(before), "mtime stays at write time")
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f, _ := newTestFetcher(t, NewHTTPClient(time.Second, time.Second))
	outcome, err := f.Fetch(context.Background(), source.Item{Title: "down", Location: addr + "/hosts", Enabled: true})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, ErrIO)
}

func TestReadTimeoutIsPerRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		switch r.URL.Path {
		case "/steady":
			for i := 0; i < 5; i++ {
				io.WriteString(w, "chunk\n")
				flusher.Flush()
				time.Sleep(60 * time.Millisecond)
			}
		case "/stall":
			io.WriteString(w, "chunk\n")
			flusher.Flush()
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, NewHTTPClient(time.Second, 200*time.Millisecond))

	outcome, err := f.Fetch(context.Background(), source.Item{Title: "steady", Location: srv.URL + "/steady", Enabled: true})
	require.NoError(t, err, "a slow but steady stream must not time out")
	assert.Equal(t, OutcomeUpdated, outcome)

	outcome, err = f.Fetch(context.Background(), source.Item{Title: "stall", Location: srv.URL + "/stall", Enabled: true})
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, ErrIO)
}
