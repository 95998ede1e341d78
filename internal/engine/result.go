// Package engine orchestrates a subsweep scan: it turns a domain and a wordlist
// into candidates, resolves them through a bounded worker pool and aggregates
// the results into a single-writer ScanSession.
package engine

import (
	"context"
	"sort"
	"time"
)

// ErrorKind classifies a per-candidate failure. The zero value means no error.
type ErrorKind string

const (
	ErrNone         ErrorKind = ""
	ErrNameNotFound ErrorKind = "name_not_found" // authoritative negative answer
	ErrTimeout      ErrorKind = "timeout"
	ErrNetwork      ErrorKind = "network_error"
	ErrProbeFailed  ErrorKind = "probe_failed" // resolved, but the liveness probe failed
)

// Candidate is a wordlist entry paired with the target domain.
type Candidate struct {
	Subdomain string `json:"subdomain"`
	Domain    string `json:"domain"`
}

// Hostname returns the fully qualified name to resolve, without trailing dot.
func (c Candidate) Hostname() string {
	return c.Subdomain + "." + c.Domain
}

// ScanResult is the outcome of resolving (and optionally probing) one candidate.
type ScanResult struct {
	Hostname   string        `json:"hostname"`
	Found      bool          `json:"found"`
	Address    string        `json:"address,omitempty"`
	Addresses  []string      `json:"addresses,omitempty"`
	CNAME      string        `json:"cname,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Title      string        `json:"title,omitempty"`
	Server     string        `json:"server,omitempty"`
	Error      ErrorKind     `json:"error,omitempty"`
	Wildcard   bool          `json:"wildcard,omitempty"`
	Dangling   bool          `json:"dangling,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// normalize enforces the found/address invariant on results coming back from
// arbitrary Resolver implementations.
func normalize(r ScanResult, hostname string) ScanResult {
	if r.Hostname == "" {
		r.Hostname = hostname
	}
	if r.Found && r.Address == "" && len(r.Addresses) > 0 {
		r.Address = r.Addresses[0]
	}
	if r.Found && r.Address == "" {
		r.Found = false
		if r.Error == ErrNone || r.Error == ErrProbeFailed {
			r.Error = ErrNetwork
		}
	}
	if !r.Found {
		r.Address = ""
		r.Addresses = nil
		r.StatusCode = 0
		r.Title = ""
		r.Server = ""
		r.Wildcard = false
		if r.Error == ErrProbeFailed {
			r.Error = ErrNetwork
		}
	}
	return r
}

// Counters are the aggregate tallies over a session's results map.
type Counters struct {
	Found     int `json:"found"`
	NotFound  int `json:"not_found"`
	Errors    int `json:"errors"`
	Wildcards int `json:"wildcards"`
}

// Total returns the number of results the counters account for.
func (c Counters) Total() int {
	return c.Found + c.NotFound + c.Errors
}

func (c *Counters) add(r ScanResult, delta int) {
	switch {
	case r.Found:
		c.Found += delta
		if r.Wildcard {
			c.Wildcards += delta
		}
	case r.Error == ErrNone || r.Error == ErrNameNotFound:
		c.NotFound += delta
	default:
		c.Errors += delta
	}
}

// State is the lifecycle state of a coordinator's session.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Session is the state of a single scan. Sessions handed out by the
// coordinator are deep copies and can be read freely.
type Session struct {
	ID          string                `json:"id"`
	Domain      string                `json:"domain"`
	State       State                 `json:"state"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at,omitzero"`
	Candidates  []Candidate           `json:"-"`
	Results     map[string]ScanResult `json:"-"`
	Completed   int                   `json:"completed"`
	Counters    Counters              `json:"counters"`
	Err         error                 `json:"-"`
}

// Total returns the number of candidates in the session.
func (s *Session) Total() int {
	return len(s.Candidates)
}

// Sorted returns the results ordered by hostname.
func (s *Session) Sorted() []ScanResult {
	out := make([]ScanResult, 0, len(s.Results))
	for _, r := range s.Results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hostname < out[j].Hostname
	})
	return out
}

func (s *Session) clone() Session {
	c := *s
	c.Candidates = append([]Candidate(nil), s.Candidates...)
	c.Results = make(map[string]ScanResult, len(s.Results))
	for k, v := range s.Results {
		v.Addresses = append([]string(nil), v.Addresses...)
		c.Results[k] = v
	}
	return c
}

// Report is the export view of a finished session.
type Report struct {
	ID           string       `json:"id"`
	Domain       string       `json:"domain"`
	State        State        `json:"state"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at"`
	DurationSecs float64      `json:"duration_secs"`
	Total        int          `json:"total"`
	Completed    int          `json:"completed"`
	Summary      Counters     `json:"summary"`
	Results      []ScanResult `json:"results"`
	Dangling     []ScanResult `json:"dangling,omitempty"`
}

// NewReport builds a Report from a session. Only found hosts are listed unless
// all is set; dangling CNAMEs are always listed separately.
func NewReport(s Session, all bool) *Report {
	rep := &Report{
		ID:          s.ID,
		Domain:      s.Domain,
		State:       s.State,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Total:       s.Total(),
		Completed:   s.Completed,
		Summary:     s.Counters,
		Results:     []ScanResult{},
	}
	if !s.CompletedAt.IsZero() {
		rep.DurationSecs = s.CompletedAt.Sub(s.StartedAt).Seconds()
	}
	for _, r := range s.Sorted() {
		if all || r.Found {
			rep.Results = append(rep.Results, r)
		}
		if r.Dangling {
			rep.Dangling = append(rep.Dangling, r)
		}
	}
	return rep
}

// Resolver resolves one candidate. Implementations must never return an error
// across this boundary; failures are recorded in ScanResult.Error.
type Resolver interface {
	Resolve(ctx context.Context, c Candidate) ScanResult
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, c Candidate) ScanResult

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, c Candidate) ScanResult {
	return f(ctx, c)
}

// ResultProber is an optional interface for Resolver implementations that
// check the liveness of found hosts. The coordinator calls Probe only for
// found results, under its own timeout separate from the resolution's.
// Implementations report a failed check as ErrProbeFailed and keep Found.
type ResultProber interface {
	Probe(ctx context.Context, r ScanResult) ScanResult
}

// WildcardDetector is an optional interface that Resolver implementations can
// satisfy to report the addresses a domain answers for nonexistent names.
type WildcardDetector interface {
	DetectWildcard(ctx context.Context, domain string) ([]string, error)
}
