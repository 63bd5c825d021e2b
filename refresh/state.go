package refresh

import (
	"errors"
	"slices"
	"sync"

	"hostsync/fetcher"
)

type pendingEntry struct {
	index    int // position in the job, titles are not unique
	title    string
	location string
}

// state is the shared bookkeeping of one cycle. Every mutation happens under
// mu and republishes progress before the lock is released, so sinks observe
// remaining counts in order. pending is owned by state; callers keep their
// own slice to iterate over while workers remove entries.
type state struct {
	mu   sync.Mutex
	sink ProgressSink

	total     int
	pending   []pendingEntry
	done      []string
	errors    []ItemError
	cancelled []string

	updated     int
	notModified int
	skipped     int
}

func newState(entries []pendingEntry, sink ProgressSink) *state {
	return &state{
		sink:    sink,
		total:   len(entries),
		pending: slices.Clone(entries),
	}
}

// finish moves the entry for index out of pending. It returns false when the
// entry already left pending, so each item is accounted for once.
func (s *state) finish(index int, outcome fetcher.Outcome, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(index)
	if i < 0 {
		return false
	}
	e := s.pending[i]
	s.pending = slices.Delete(s.pending, i, i+1)
	s.done = append(s.done, e.title)

	if err != nil {
		s.errors = append(s.errors, ItemError{Title: e.title, Location: e.location, Message: errorMessage(err)})
	} else {
		switch outcome {
		case fetcher.OutcomeUpdated:
			s.updated++
		case fetcher.OutcomeNotModified:
			s.notModified++
		default:
			s.skipped++
		}
	}

	s.publishLocked()
	return true
}

// cancel moves the given undispatched entries out of pending.
func (s *state) cancel(indices []int) {
	if len(indices) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, index := range indices {
		if i := s.find(index); i >= 0 {
			s.cancelled = append(s.cancelled, s.pending[i].title)
			s.pending = slices.Delete(s.pending, i, i+1)
		}
	}
	s.publishLocked()
}

func (s *state) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked()
}

func (s *state) publishLocked() {
	if s.sink != nil {
		s.sink.Progress(s.total, len(s.pending), s.titlesLocked())
	}
}

func (s *state) pendingTitles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titlesLocked()
}

func (s *state) titlesLocked() []string {
	titles := make([]string, len(s.pending))
	for i, e := range s.pending {
		titles[i] = e.title
	}
	return titles
}

func (s *state) find(index int) int {
	return slices.IndexFunc(s.pending, func(e pendingEntry) bool { return e.index == index })
}

// fill copies the terminal buckets into r.
func (s *state) fill(r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Done = append([]string{}, s.done...)
	r.Cancelled = slices.Clone(s.cancelled)
	r.Errors = append([]ItemError{}, s.errors...)
	r.Updated = s.updated
	r.NotModified = s.notModified
	r.Skipped = s.skipped
}

func errorMessage(err error) string {
	var ferr *fetcher.Error
	if errors.As(err, &ferr) {
		return ferr.Summary()
	}
	return err.Error()
}
