package recon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var titleRegex = regexp.MustCompile(`(?i)<title[^>]*>\s*([^<]+)\s*</title>`)

const httpProbeMaxBody = 256 * 1024 // enough to find the title

// DefaultUserAgent is sent by the HTTP prober unless overridden.
const DefaultUserAgent = "subsweep/1.0"

// Probe is what a liveness probe learned about a resolved host.
type Probe struct {
	StatusCode int
	Server     string
	Title      string
}

// Prober checks a host that has already resolved to addr.
type Prober interface {
	Probe(ctx context.Context, host, addr string) (Probe, error)
}

// tlsFirstPorts are ports where HTTPS should be tried before HTTP.
var tlsFirstPorts = map[int]bool{
	443: true, 8443: true, 9443: true, 6443: true, 1443: true, 4443: true,
}

type dialAddrKey struct{}

// dialPin routes connections for host to addr. Other hosts, such as redirect
// targets elsewhere, are dialed as usual.
type dialPin struct {
	host string
	addr string
}

// pinnedAddress rewrites a host:port dial address to the pinned address when
// its host is the pinned one.
func pinnedAddress(ctx context.Context, address string) string {
	pin, ok := ctx.Value(dialAddrKey{}).(dialPin)
	if !ok || pin.addr == "" {
		return address
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil || !strings.EqualFold(strings.TrimSuffix(host, "."), pin.host) {
		return address
	}
	return net.JoinHostPort(pin.addr, port)
}

// HTTPProber requests the host over HTTP, falling back to HTTPS, and records
// the status code, Server header and page title of the first answer.
// Connections go to the address the lookup found rather than being
// re-resolved, while Host and SNI still carry the hostname.
type HTTPProber struct {
	Client    *http.Client
	Port      int // 0 = default port of each scheme
	UserAgent string
}

// NewHTTPProber returns a prober whose requests give up after timeout.
func NewHTTPProber(port int, timeout time.Duration, userAgent string) *HTTPProber {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives: true,
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, pinnedAddress(ctx, address))
		},
	}
	return &HTTPProber{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		Port:      port,
		UserAgent: userAgent,
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, host, addr string) (Probe, error) {
	ctx = context.WithValue(ctx, dialAddrKey{}, dialPin{host: strings.TrimSuffix(host, "."), addr: addr})
	var errs []error
	for _, scheme := range p.schemes() {
		url := scheme + "://" + host
		if p.Port != 0 {
			url = scheme + "://" + net.JoinHostPort(host, strconv.Itoa(p.Port))
		}
		probe, err := p.probeURL(ctx, url)
		if err == nil {
			return probe, nil
		}
		log.WithError(err).WithField("url", url).Debug("http probe failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Probe{}, fmt.Errorf("http probe %s: %w", host, errors.Join(errs...))
}

func (p *HTTPProber) schemes() []string {
	if tlsFirstPorts[p.Port] {
		return []string{"https", "http"}
	}
	return []string{"http", "https"}
}

func (p *HTTPProber) probeURL(ctx context.Context, url string) (Probe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Probe{}, err
	}
	req.Header.Set("User-Agent", p.UserAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return Probe{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpProbeMaxBody))

	probe := Probe{
		StatusCode: resp.StatusCode,
		Server:     resp.Header.Get("Server"),
	}
	if matches := titleRegex.FindSubmatch(body); len(matches) > 1 {
		probe.Title = strings.TrimSpace(string(matches[1]))
	}
	return probe, nil
}
