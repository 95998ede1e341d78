// Package recon contains the network side of a scan: DNS lookups, dangling
// CNAME checks, wildcard detection and the optional liveness probes.
package recon

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vulnverified/subsweep/internal/engine"
)

const (
	wildcardProbes    = 5
	wildcardThreshold = 0.8 // share of resolved probes an address must answer
)

// Resolver implements engine.Resolver, engine.ResultProber and
// engine.WildcardDetector on top of a Lookup back end and an optional Prober.
type Resolver struct {
	Lookup Lookup
	Prober Prober // nil = resolution only
}

// NewResolver returns a resolver using the system lookup when lookup is nil.
func NewResolver(lookup Lookup, prober Prober) *Resolver {
	if lookup == nil {
		lookup = SystemLookup{}
	}
	return &Resolver{Lookup: lookup, Prober: prober}
}

// Resolve implements engine.Resolver. It only looks the name up; probing is a
// separate step. Failures never escape as errors; they are recorded in the
// result.
func (r *Resolver) Resolve(ctx context.Context, c engine.Candidate) engine.ScanResult {
	host := c.Hostname()
	start := time.Now()
	res := engine.ScanResult{Hostname: host}

	ans, err := r.Lookup.LookupHost(ctx, host)
	res.CNAME = ans.CNAME
	if err != nil || len(ans.Addrs) == 0 {
		res.Error = classify(err)
		if err == nil {
			res.Error = engine.ErrNameNotFound
		}
		if res.CNAME != "" {
			if status := danglingStatus(res.CNAME, err); status != "" {
				res.Dangling = true
				log.WithFields(log.Fields{
					"host":   host,
					"cname":  res.CNAME,
					"status": status,
				}).Info("dangling CNAME")
			}
		}
		res.Duration = time.Since(start)
		return res
	}

	res.Found = true
	res.Addresses = ans.Addrs
	res.Address = ans.Addrs[0]
	res.Duration = time.Since(start)
	return res
}

// Probe implements engine.ResultProber. It runs the liveness probe against the
// resolved address of a found result; a failed probe keeps the resolution and
// sets ErrProbeFailed.
func (r *Resolver) Probe(ctx context.Context, res engine.ScanResult) engine.ScanResult {
	if r.Prober == nil || !res.Found {
		return res
	}
	probe, err := r.Prober.Probe(ctx, res.Hostname, res.Address)
	if err != nil {
		log.WithError(err).WithField("host", res.Hostname).Debug("probe failed")
		res.Error = engine.ErrProbeFailed
		return res
	}
	res.StatusCode = probe.StatusCode
	res.Server = probe.Server
	res.Title = probe.Title
	return res
}

// DetectWildcard implements engine.WildcardDetector. It resolves a handful of
// random labels under domain and returns the addresses most of them share.
func (r *Resolver) DetectWildcard(ctx context.Context, domain string) ([]string, error) {
	counts := make(map[string]int)
	resolved := 0
	var lastErr error

	for i := 0; i < wildcardProbes; i++ {
		label := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
		ans, err := r.Lookup.LookupHost(ctx, label+"."+domain)
		if err != nil {
			if classify(err) != engine.ErrNameNotFound {
				lastErr = err
			}
			continue
		}
		resolved++
		for _, a := range ans.Addrs {
			counts[a]++
		}
	}

	if resolved == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		log.WithField("domain", domain).Debug("no wildcard: random labels do not resolve")
		return nil, nil
	}

	var addrs []string
	for addr, n := range counts {
		if float64(n)/float64(resolved) >= wildcardThreshold {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	return addrs, nil
}
