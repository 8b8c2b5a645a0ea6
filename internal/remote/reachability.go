package remote

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Reachability reports whether the remote API can currently be reached.
type Reachability interface {
	IsNetworkReachable(ctx context.Context) bool
}

// Probe checks reachability by opening a TCP connection to the API host.
type Probe struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewProbe builds a Probe for the host of baseURL.
func NewProbe(baseURL string, timeout time.Duration) (*Probe, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Probe{addr: hostPort(u), timeout: timeout}, nil
}

// Addr returns the host:port the probe dials.
func (p *Probe) Addr() string {
	return p.addr
}

// IsNetworkReachable implements Reachability.
func (p *Probe) IsNetworkReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Static is a fixed answer, used for forced offline mode and tests.
type Static bool

// IsNetworkReachable implements Reachability.
func (s Static) IsNetworkReachable(context.Context) bool {
	return bool(s)
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
