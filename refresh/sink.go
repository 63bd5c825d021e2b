package refresh

import (
	"strings"

	"hostsync/fetcher"
	"hostsync/logger"
	"hostsync/source"
)

// ProgressSink receives live progress. Progress is called while the cycle
// state is locked, so implementations must return quickly and must not call
// back into the Manager.
type ProgressSink interface {
	Progress(total, remaining int, titles []string)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(total, remaining int, titles []string)

func (f ProgressFunc) Progress(total, remaining int, titles []string) {
	f(total, remaining, titles)
}

// Observer is told about every finished item and every finished cycle.
// Calls can arrive concurrently from worker goroutines.
type Observer interface {
	ItemFinished(item source.Item, outcome fetcher.Outcome, err error)
	CycleFinished(report *Report)
}

// MultiSink fans progress out to several sinks.
type MultiSink []ProgressSink

func (m MultiSink) Progress(total, remaining int, titles []string) {
	for _, s := range m {
		s.Progress(total, remaining, titles)
	}
}

// MultiObserver fans notifications out to several observers.
type MultiObserver []Observer

func (m MultiObserver) ItemFinished(item source.Item, outcome fetcher.Outcome, err error) {
	for _, o := range m {
		o.ItemFinished(item, outcome, err)
	}
}

func (m MultiObserver) CycleFinished(report *Report) {
	for _, o := range m {
		o.CycleFinished(report)
	}
}

// LogSink writes progress to the debug log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.With("progress")}
}

func (s *LogSink) Progress(total, remaining int, titles []string) {
	if remaining == 0 {
		s.log.Debugf("%d/%d finished", total, total)
		return
	}
	s.log.Debugf("%d/%d finished, waiting on: %s", total-remaining, total, strings.Join(titles, ", "))
}
