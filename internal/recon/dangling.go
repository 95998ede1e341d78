package recon

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/vulnverified/subsweep/internal/engine"
)

// danglingPatterns are CNAME targets known to be vulnerable to subdomain takeover
// when the CNAME points to a service that no longer exists.
var danglingPatterns = []string{
	".s3.amazonaws.com",
	".azurewebsites.net",
	".github.io",
	".herokuapp.com",
	".cloudfront.net",
	".elasticbeanstalk.com",
	".trafficmanager.net",
	".blob.core.windows.net",
	".azureedge.net",
	".pantheonsite.io",
	".netlify.app",
	".ghost.io",
	".myshopify.com",
	".surge.sh",
}

// danglingStatus reports whether a failed resolution behind a CNAME looks like
// a takeover candidate. It returns "NXDOMAIN" or "SERVFAIL", or "" when the
// CNAME target is not a known pattern or the failure says nothing.
func danglingStatus(cname string, lookupErr error) string {
	cnameLower := strings.ToLower(cname)

	matchesPattern := false
	for _, pattern := range danglingPatterns {
		if strings.HasSuffix(cnameLower, pattern) {
			matchesPattern = true
			break
		}
	}
	if !matchesPattern {
		return ""
	}

	switch classify(lookupErr) {
	case engine.ErrNameNotFound:
		return "NXDOMAIN"
	case engine.ErrNetwork:
		var dnsErr *net.DNSError
		if errors.As(lookupErr, &dnsErr) {
			return "SERVFAIL"
		}
	}
	return ""
}

// classify maps a lookup error onto the per-candidate error taxonomy.
func classify(err error) engine.ErrorKind {
	if err == nil {
		return engine.ErrNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.ErrTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return engine.ErrNameNotFound
		case dnsErr.IsTimeout:
			return engine.ErrTimeout
		}
		return engine.ErrNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return engine.ErrTimeout
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "no such host") {
		return engine.ErrNameNotFound
	}
	return engine.ErrNetwork
}
