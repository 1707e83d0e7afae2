package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"obsctl/internal/health"
	"obsctl/internal/launcher"
	"obsctl/internal/ports"
)

// fakeRegistry is an in-memory ports.Registry.
type fakeRegistry struct {
	mu    sync.Mutex
	bound map[int]ports.Owner // port -> owner; zero Owner means bound with unknown owner
	known map[int]bool        // whether the owner is attributable
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		bound: make(map[int]ports.Owner),
		known: make(map[int]bool),
	}
}

func (r *fakeRegistry) bind(port int, owner ports.Owner, ownerKnown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[port] = owner
	r.known[port] = ownerKnown
}

func (r *fakeRegistry) IsBound(ctx context.Context, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bound[port]
	return ok
}

func (r *fakeRegistry) OwnerOf(ctx context.Context, port int) (ports.Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.bound[port]
	if !ok || !r.known[port] {
		return ports.Owner{}, false
	}
	return owner, true
}

// fakeResolver resolves every candidate list to a fixed path or error.
type fakeResolver struct {
	path string
	err  error
}

func (r *fakeResolver) Resolve(candidates []string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.path, nil
}

// fakeLauncher records launches and optionally fails specific ports.
type fakeLauncher struct {
	mu       sync.Mutex
	launches []launcher.Spec
	failAll  bool
	nextPID  int
}

func (l *fakeLauncher) Launch(ctx context.Context, spec launcher.Spec) (launcher.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, spec)
	if l.failAll {
		return launcher.Handle{}, errors.New("spawn failed")
	}
	l.nextPID++
	return launcher.Handle{PID: 4000 + l.nextPID}, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

// fakeProber succeeds only for ports listed healthy, and records the order of
// probe attempts.
type fakeProber struct {
	mu      sync.Mutex
	healthy map[int]bool
	events  *eventLog
}

func newFakeProber(healthyPorts ...int) *fakeProber {
	healthy := make(map[int]bool)
	for _, p := range healthyPorts {
		healthy[p] = true
	}
	return &fakeProber{healthy: healthy}
}

func (p *fakeProber) Probe(ctx context.Context, host string, port int, check health.Check) error {
	if p.events != nil {
		p.events.add(fmt.Sprintf("probe:%d", port))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.healthy[port] {
		return nil
	}
	return fmt.Errorf("connection refused on %d", port)
}

// eventLog records the interleaving of settle waits and probes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventLog) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// recordingSleep records requested settle delays into the event log without
// actually waiting.
func recordingSleep(events *eventLog) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		events.add(fmt.Sprintf("settle:%s", d))
		return ctx.Err()
	}
}
