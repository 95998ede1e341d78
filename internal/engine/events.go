package engine

import "time"

// StartedEvent is emitted once the session is running and candidates are known.
type StartedEvent struct {
	ID     string
	Domain string
	Total  int
}

// ProgressEvent is emitted for every completed resolution, in completion order.
type ProgressEvent struct {
	Completed int
	Total     int
	Result    ScanResult
	Counters  Counters
}

// DoneEvent is emitted when every candidate has a result.
type DoneEvent struct {
	Counters Counters
	Total    int
	Elapsed  time.Duration
}

// CancelledEvent is emitted when a scan stops early. Partial results are valid
// output, sorted by hostname.
type CancelledEvent struct {
	Completed int
	Total     int
	Counters  Counters
	Partial   []ScanResult
	Reason    string
	Elapsed   time.Duration
}

// FailedEvent is emitted when a coordinator-level fault ends the session.
type FailedEvent struct {
	Err error
}

// EventSink consumes coordinator events. All methods are called from a single
// goroutine per scan, so implementations need no locking of their own.
type EventSink interface {
	Started(e StartedEvent)
	Progress(e ProgressEvent)
	Done(e DoneEvent)
	Cancelled(e CancelledEvent)
	Failed(e FailedEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Started(StartedEvent)     {}
func (NopSink) Progress(ProgressEvent)   {}
func (NopSink) Done(DoneEvent)           {}
func (NopSink) Cancelled(CancelledEvent) {}
func (NopSink) Failed(FailedEvent)       {}

// MultiSink fans each event out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Started(e StartedEvent) {
	for _, s := range m {
		s.Started(e)
	}
}

func (m MultiSink) Progress(e ProgressEvent) {
	for _, s := range m {
		s.Progress(e)
	}
}

func (m MultiSink) Done(e DoneEvent) {
	for _, s := range m {
		s.Done(e)
	}
}

func (m MultiSink) Cancelled(e CancelledEvent) {
	for _, s := range m {
		s.Cancelled(e)
	}
}

func (m MultiSink) Failed(e FailedEvent) {
	for _, s := range m {
		s.Failed(e)
	}
}
