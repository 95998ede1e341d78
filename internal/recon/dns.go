package recon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"
)

// Answer is what a lookup learned about one hostname.
type Answer struct {
	Addrs []string
	CNAME string
}

// Lookup resolves a hostname to its IPv4 and IPv6 addresses. A name without
// addresses is reported as a *net.DNSError with IsNotFound set, whatever the
// back end.
type Lookup interface {
	LookupHost(ctx context.Context, host string) (Answer, error)
}

// SystemLookup resolves through the operating system's resolver.
type SystemLookup struct {
	Resolver *net.Resolver
}

// LookupHost implements Lookup.
func (l SystemLookup) LookupHost(ctx context.Context, host string) (Answer, error) {
	r := l.Resolver
	if r == nil {
		r = net.DefaultResolver
	}

	var ans Answer
	// CNAME first, so it is known even if the target no longer resolves.
	if cname, err := r.LookupCNAME(ctx, host); err == nil {
		cname = strings.TrimSuffix(strings.ToLower(cname), ".")
		if cname != host && cname != "" {
			ans.CNAME = cname
		}
	}

	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return ans, err
	}
	ans.Addrs = deduplicateStrings(ips)
	return ans, nil
}

// DNSLookup queries a list of nameservers directly. Queries are spread over the
// servers round-robin; a server failing at the network level is skipped in
// favour of the next one.
type DNSLookup struct {
	Client  *dns.Client
	Servers []string

	next atomic.Uint32
}

// NewDNSLookup returns a lookup against the given nameservers. Servers without
// a port get port 53.
func NewDNSLookup(servers []string, timeout time.Duration) (*DNSLookup, error) {
	var addrs []string
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		addrs = append(addrs, s)
	}
	if len(addrs) == 0 {
		return nil, errors.New("no nameservers given")
	}
	return &DNSLookup{
		Client:  &dns.Client{Net: "udp", Timeout: timeout},
		Servers: addrs,
	}, nil
}

// LookupHost implements Lookup. It asks for A records, then AAAA records.
func (l *DNSLookup) LookupHost(ctx context.Context, host string) (Answer, error) {
	var ans Answer
	fqdn := dns.Fqdn(host)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, qtype)
		msg.RecursionDesired = true

		r, server, err := l.exchange(ctx, msg)
		if err != nil {
			if len(ans.Addrs) > 0 {
				// Keep the IPv4 answer if only the AAAA query failed.
				break
			}
			return ans, err
		}
		if ans.CNAME == "" {
			ans.CNAME = cnameOf(r, fqdn)
		}

		switch r.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return ans, &net.DNSError{Err: "no such host", Name: host, Server: server, IsNotFound: true}
		default:
			if len(ans.Addrs) == 0 {
				return ans, &net.DNSError{Err: dns.RcodeToString[r.Rcode], Name: host, Server: server}
			}
			continue
		}

		for _, rr := range r.Answer {
			switch v := rr.(type) {
			case *dns.A:
				ans.Addrs = append(ans.Addrs, v.A.String())
			case *dns.AAAA:
				ans.Addrs = append(ans.Addrs, v.AAAA.String())
			}
		}
	}

	if len(ans.Addrs) == 0 {
		// NODATA: the name exists but has no addresses.
		return ans, &net.DNSError{Err: "no A or AAAA records", Name: host, IsNotFound: true}
	}
	ans.Addrs = deduplicateStrings(ans.Addrs)
	return ans, nil
}

func (l *DNSLookup) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, string, error) {
	start := int(l.next.Add(1) % uint32(len(l.Servers)))

	var lastErr error
	for i := range l.Servers {
		server := l.Servers[(start+i)%len(l.Servers)]
		r, _, err := l.Client.ExchangeContext(ctx, msg, server)
		if err == nil {
			return r, server, nil
		}
		lastErr = fmt.Errorf("query %s: %w", server, err)
		if ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("server", server).Debug("nameserver failed, trying next")
	}
	return nil, "", lastErr
}

// cnameOf returns the CNAME target for name from the answer section, if any.
func cnameOf(r *dns.Msg, name string) string {
	for _, rr := range r.Answer {
		if c, ok := rr.(*dns.CNAME); ok && strings.EqualFold(c.Hdr.Name, name) {
			return strings.TrimSuffix(strings.ToLower(c.Target), ".")
		}
	}
	return ""
}

func deduplicateStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
