package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hostsync/fetcher"
	"hostsync/logger"
	"hostsync/source"
)

// DefaultLivenessInterval is how often a draining cycle logs what it is
// still waiting for.
const DefaultLivenessInterval = 10 * time.Second

// ErrAlreadyRunning is returned by Start while another cycle is in progress.
var ErrAlreadyRunning = errors.New("refresh cycle already running")

// Job is the immutable set of items processed by one cycle.
type Job struct {
	Items []source.Item
}

// ItemFetcher refreshes the mirror of one item. *fetcher.Fetcher implements it.
type ItemFetcher interface {
	Fetch(ctx context.Context, item source.Item) (fetcher.Outcome, error)
}

type Options struct {
	Fetcher ItemFetcher

	// MirrorDir is created before dispatch when set.
	MirrorDir string

	// PoolSize caps concurrent fetches. Zero or less runs one goroutine per item.
	PoolSize int

	LivenessInterval time.Duration

	Progress ProgressSink
	Observer Observer
}

// Manager runs refresh cycles, one at a time.
type Manager struct {
	opts Options
	log  *logger.Logger

	mu        sync.Mutex
	running   bool
	cancelled chan struct{}
	cancelOne *sync.Once
	current   *state
	last      *Report
}

func NewManager(opts Options) *Manager {
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = DefaultLivenessInterval
	}
	return &Manager{
		opts: opts,
		log:  logger.With("refresh"),
	}
}

// Start runs one cycle over job and blocks until every dispatched item has
// finished. Per-item failures are reported in the returned Report; the error
// is only set when the cycle could not start at all.
//
// Cancelling ctx or calling Cancel stops further dispatch. Items already
// dispatched run to completion, their fetches do not see the cancellation.
func (m *Manager) Start(ctx context.Context, job Job) (*Report, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.end()

	if m.opts.MirrorDir != "" {
		if err := os.MkdirAll(m.opts.MirrorDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create mirror directory %s: %w", m.opts.MirrorDir, err)
		}
	}

	report := &Report{Started: time.Now(), Total: len(job.Items)}

	var entries []pendingEntry
	for i, item := range job.Items {
		if !item.Enabled {
			report.Disabled = append(report.Disabled, item.Title)
			continue
		}
		entries = append(entries, pendingEntry{index: i, title: item.Title, location: item.Location})
	}

	st := newState(entries, m.opts.Progress)
	m.mu.Lock()
	m.current = st
	cancelled := m.cancelled
	m.mu.Unlock()

	m.log.Infof("starting refresh of %d items (%d disabled)", len(entries), len(report.Disabled))
	st.publish()

	g := new(errgroup.Group)
	if m.opts.PoolSize > 0 {
		g.SetLimit(m.opts.PoolSize)
	}

	seen := make(map[string]struct{}, len(entries))
	var undispatched []int
	for n, e := range entries {
		if stopRequested(ctx, cancelled) {
			for _, rest := range entries[n:] {
				undispatched = append(undispatched, rest.index)
			}
			m.log.Infof("refresh cancelled, %d items not dispatched", len(undispatched))
			break
		}

		item := job.Items[e.index]
		if _, dup := seen[item.Location]; dup {
			m.log.Debugf("%s: %s already queued in this cycle", item.Title, item.Location)
			m.finish(st, item, e.index, fetcher.OutcomeSkipped, nil)
			continue
		}
		seen[item.Location] = struct{}{}

		index := e.index
		fetchCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			outcome, err := m.opts.Fetcher.Fetch(fetchCtx, item)
			m.finish(st, item, index, outcome, err)
			return nil
		})
	}
	st.cancel(undispatched)

	m.drain(g, st)

	st.fill(report)
	report.Finished = time.Now()

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()

	m.log.Infof("refresh finished in %s: %d updated, %d not modified, %d skipped, %d failed, %d cancelled",
		report.Duration().Round(time.Millisecond), report.Updated, report.NotModified,
		report.Skipped, len(report.Errors), len(report.Cancelled))
	if m.opts.Observer != nil {
		m.opts.Observer.CycleFinished(report)
	}
	return report, nil
}

func (m *Manager) finish(st *state, item source.Item, index int, outcome fetcher.Outcome, err error) {
	if !st.finish(index, outcome, err) {
		return
	}
	if err != nil {
		m.log.Warnf("%s: %v", item.Title, err)
	} else {
		m.log.Debugf("%s: %s", item.Title, outcome)
	}
	if m.opts.Observer != nil {
		m.opts.Observer.ItemFinished(item, outcome, err)
	}
}

// drain waits for the pool. The ticker only drives liveness logging.
func (m *Manager) drain(g *errgroup.Group, st *state) {
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	ticker := time.NewTicker(m.opts.LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			titles := st.pendingTitles()
			m.log.Infof("still waiting on %d items: %s", len(titles), strings.Join(titles, ", "))
		}
	}
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.cancelled = make(chan struct{})
	m.cancelOne = new(sync.Once)
	return nil
}

func (m *Manager) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.current = nil
}

// Cancel asks the running cycle to stop dispatching. It returns immediately
// and does nothing when no cycle is running.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	ch := m.cancelled
	m.cancelOne.Do(func() { close(ch) })
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Pending returns the titles the running cycle is still waiting for, or nil
// when idle.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	st := m.current
	m.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.pendingTitles()
}

// LastReport returns the report of the most recent completed cycle.
func (m *Manager) LastReport() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func stopRequested(ctx context.Context, cancelled <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-cancelled:
		return true
	default:
		return false
	}
}
