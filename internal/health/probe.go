// Package health implements the layered liveness check for a (host, port)
// pair: a protocol-aware HTTP GET against a well-known path with an accepted
// status-code set, and a cheap TCP-connect check used when no HTTP descriptor
// is configured or the HTTP request fails at the transport level.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"obsctl/pkg/logging"
)

// Check describes how a service's liveness is confirmed. An empty Path means
// TCP connect only; otherwise an HTTP GET against Path must answer with a
// status in AcceptedStatusCodes (200 when the list is empty).
type Check struct {
	Path                string
	AcceptedStatusCodes []int
}

// Prober runs a single liveness probe.
type Prober interface {
	Probe(ctx context.Context, host string, port int, check Check) error
}

// NetProber is the production Prober using net/http and net.Dialer.
type NetProber struct {
	// Timeout bounds one probe attempt. Zero means 3 seconds.
	Timeout time.Duration
}

// NewNetProber returns a Prober backed by real network calls.
func NewNetProber() *NetProber {
	return &NetProber{}
}

func (p *NetProber) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 3 * time.Second
}

// Probe runs one liveness check. With an HTTP descriptor the GET result
// decides: an accepted status succeeds, an unexpected status fails the
// attempt outright (the endpoint answered, the service said "not ready").
// Transport-level errors fall back to the TCP connect check, which also
// covers specs without an HTTP descriptor.
func (p *NetProber) Probe(ctx context.Context, host string, port int, check Check) error {
	if check.Path != "" {
		err := p.probeHTTP(ctx, host, port, check)
		if err == nil {
			return nil
		}
		if _, ok := err.(*unexpectedStatusError); ok {
			return err
		}
		logging.Debug("HealthProbe", "HTTP probe of %s:%d%s failed (%v), falling back to TCP", host, port, check.Path, err)
	}
	return p.probeTCP(ctx, host, port)
}

type unexpectedStatusError struct {
	status   int
	accepted []int
}

func (e *unexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected health status %d (accepted: %v)", e.status, e.accepted)
}

func (p *NetProber) probeHTTP(ctx context.Context, host string, port int, check Check) error {
	url := fmt.Sprintf("http://%s:%d%s", host, port, check.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	client := &http.Client{Timeout: p.timeout()}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	accepted := check.AcceptedStatusCodes
	if len(accepted) == 0 {
		accepted = []int{http.StatusOK}
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	return &unexpectedStatusError{status: resp.StatusCode, accepted: accepted}
}

func (p *NetProber) probeTCP(ctx context.Context, host string, port int) error {
	dialer := &net.Dialer{Timeout: p.timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", host, port, err)
	}
	conn.Close()
	return nil
}

// WaitHealthy probes until success, spacing attempts by interval and giving
// up once window has elapsed. Context cancellation stops it immediately. The
// returned error is the last probe failure (or the context error).
func WaitHealthy(ctx context.Context, prober Prober, host string, port int, check Check, interval, window time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	operation := func() error {
		return prober.Probe(waitCtx, host, port, check)
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(interval), waitCtx))
}
