package engine

import (
	"errors"
	"net"
	"strings"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

// NormalizeDomain cleans up a user-supplied target ("https://Example.com/x"
// becomes "example.com") and validates its hostname syntax.
func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	d = strings.TrimSuffix(d, ".")

	if err := validateDomain(d); err != nil {
		return "", &InvalidDomainError{Domain: raw, Reason: err.Error()}
	}
	return d, nil
}

func validateDomain(d string) error {
	if d == "" {
		return errors.New("empty")
	}
	if len(d) > 253 {
		return errors.New("longer than 253 characters")
	}
	if net.ParseIP(d) != nil {
		return errors.New("is an IP address")
	}
	if _, ok := dns.IsDomainName(d); !ok {
		return errors.New("not a domain name")
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return errors.New("needs at least two labels")
	}
	for _, l := range labels {
		if err := validateLabel(l); err != nil {
			return err
		}
	}
	return nil
}

func validateLabel(l string) error {
	if l == "" {
		return errors.New("empty label")
	}
	if len(l) > 63 {
		return errors.New("label longer than 63 characters")
	}
	if l[0] == '-' || l[len(l)-1] == '-' {
		return errors.New("label starts or ends with a hyphen")
	}
	for _, r := range l {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return errors.New("label contains invalid characters")
		}
	}
	return nil
}

// BuildCandidates pairs every usable wordlist entry with the domain, keeping
// wordlist order. Blank entries and comments are skipped, as are entries that
// do not form a valid hostname under domain; duplicates are kept.
func BuildCandidates(domain string, words []string) []Candidate {
	candidates := make([]Candidate, 0, len(words))
	skipped := 0
	for _, w := range words {
		w = strings.Trim(strings.ToLower(strings.TrimSpace(w)), ".")
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		c := Candidate{Subdomain: w, Domain: domain}
		if err := validateDomain(c.Hostname()); err != nil {
			log.WithField("entry", w).WithError(err).Debug("skipping wordlist entry")
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}
	if skipped > 0 {
		log.WithField("skipped", skipped).Info("wordlist entries do not form valid hostnames")
	}
	return candidates
}
