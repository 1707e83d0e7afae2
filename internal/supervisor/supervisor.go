// Package supervisor owns one managed service's bootstrap lifecycle, from
// "not yet attempted" to a terminal state. It is the one state machine behind
// every service obsctl brings up: discover an already-running instance, or
// resolve the executable, pick a free port, launch, wait out the settle
// delay, probe health, and on failure advance to the next port until the
// range is exhausted.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"obsctl/internal/config"
	"obsctl/internal/health"
	"obsctl/internal/launcher"
	"obsctl/internal/ports"
	"obsctl/internal/resolver"
	"obsctl/pkg/logging"
)

// Host is the loopback address every managed service binds to.
const Host = "127.0.0.1"

// Status is the supervisor's lifecycle state.
type Status string

const (
	StatusNotStarted  Status = "NotStarted"
	StatusDiscovering Status = "Discovering"
	// StatusBound is transient: a candidate port is held by an expected
	// owner and health confirmation is pending. It never persists as a
	// terminal status.
	StatusBound     Status = "Bound"
	StatusLaunching Status = "Launching"
	StatusSettling  Status = "Settling"
	StatusProbing   Status = "Probing"

	// Terminal states.
	StatusHealthy            Status = "Healthy"
	StatusExhaustedPortRange Status = "ExhaustedPortRange"
	StatusExecutableNotFound Status = "ExecutableNotFound"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	switch s {
	case StatusHealthy, StatusExhaustedPortRange, StatusExecutableNotFound:
		return true
	}
	return false
}

// State is the mutable per-run bookkeeping for one service. AttemptedPorts
// is always a subsequence of the spec's port range in its original order; a
// port is never attempted twice in one run.
type State struct {
	AttemptedPorts []int
	CurrentPort    int // 0 = none
	Handle         *launcher.Handle
	Status         Status
}

// Result is the terminal outcome reported to the orchestrator. No error from
// an individual probe attempt propagates past the supervisor; only this
// aggregate does.
type Result struct {
	Name   string
	Status Status
	Port   int

	// OwnedByUs is true when this run launched the process. The supervisor
	// never kills or restarts processes it did not start.
	OwnedByUs bool

	// Unverified marks the soft-success path: an adopted, externally-owned
	// process that never confirmed its health endpoint.
	Unverified bool

	// Hint is the operator-facing suggestion shown for failures.
	Hint string

	// Err carries the abort cause when the run was cancelled mid-flight.
	Err error
}

// Healthy reports terminal success.
func (r Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// SleepFunc is the timed wait used for the settle delay; injectable so tests
// can observe ordering without real time passing.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Deps are the collaborators a supervisor drives. All are interfaces so
// tests can inject fakes; Sleep may be nil for a real timed wait.
type Deps struct {
	Ports    ports.Registry
	Resolver resolver.Resolver
	Launcher launcher.Launcher
	Prober   health.Prober
	Sleep    SleepFunc
}

// Supervisor runs one service to a terminal state. It has no access to any
// other service's state; the single cross-service input (the upstream
// service's resolved URL) arrives as an argument to Run.
type Supervisor struct {
	spec     config.ServiceSpec
	stackDir string
	deps     Deps
	state    State
}

// New creates a supervisor for the given service spec. stackDir is the stack
// home directory; the service gets stackDir/<name> as its private directory
// and stackDir/logs/<name>.log for child output.
func New(spec config.ServiceSpec, stackDir string, deps Deps) *Supervisor {
	if deps.Sleep == nil {
		deps.Sleep = sleepWithContext
	}
	return &Supervisor{
		spec:     spec,
		stackDir: stackDir,
		deps:     deps,
		state:    State{Status: StatusNotStarted},
	}
}

// State returns a copy of the current bookkeeping, for reporting and tests.
func (s *Supervisor) State() State {
	st := s.state
	st.AttemptedPorts = append([]int(nil), s.state.AttemptedPorts...)
	return st
}

// Run drives the service to a terminal state. upstreamURL is the resolved
// base URL of the service named by the spec's DependsOn, or empty; the
// orchestrator only calls Run once that value is available, so builders
// never see a placeholder address.
func (s *Supervisor) Run(ctx context.Context, upstreamURL string) Result {
	s.transition(StatusDiscovering)

	// Adopt an already-running instance: the first candidate port bound by
	// an expected owner wins, and no launch happens.
	for _, port := range s.spec.PortRange {
		if !s.deps.Ports.IsBound(ctx, port) {
			continue
		}
		owner, known := s.deps.Ports.OwnerOf(ctx, port)
		if !known {
			// Unknown owner is conservatively treated as "not ours".
			continue
		}
		if !ports.MatchesOwner(owner, s.spec.ExpectedOwnerNames) {
			continue
		}
		logging.Info("Supervisor", "%s already running on port %d (pid %d, %s), adopting", s.spec.Name, port, owner.PID, owner.Name)
		s.state.CurrentPort = port
		s.transition(StatusBound)
		if result, adopted := s.confirmAdopted(ctx, port); adopted {
			return result
		}
		break
	}

	execPath, err := s.deps.Resolver.Resolve(s.spec.ExecutableCandidates)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			s.transition(StatusExecutableNotFound)
			return Result{
				Name:   s.spec.Name,
				Status: StatusExecutableNotFound,
				Hint:   fmt.Sprintf("executable not found; check the installation path or pass --exec-path %s=<path> (searched: %v)", s.spec.Name, s.spec.ExecutableCandidates),
			}
		}
		s.transition(StatusExecutableNotFound)
		return Result{Name: s.spec.Name, Status: StatusExecutableNotFound, Err: err}
	}

	return s.launchLoop(ctx, execPath, upstreamURL)
}

// confirmAdopted probes an externally-owned instance found during discovery.
// Returns adopted=false when the supervisor should fall through to a fresh
// launch (soft success disabled and the instance never confirmed).
func (s *Supervisor) confirmAdopted(ctx context.Context, port int) (Result, bool) {
	s.transition(StatusProbing)
	err := health.WaitHealthy(ctx, s.deps.Prober, Host, port, s.healthCheck(), s.probeInterval(), s.probeWindow())
	if err == nil {
		s.transition(StatusHealthy)
		return Result{Name: s.spec.Name, Status: StatusHealthy, Port: port}, true
	}
	if ctx.Err() != nil {
		return s.aborted(ctx), true
	}

	// We did not start this process and cannot restart it. If the expected
	// owner is still on the port, presence alone counts when the spec
	// allows the soft-success fallback.
	if s.spec.AdoptUnverifiedEnabled(true) {
		owner, known := s.deps.Ports.OwnerOf(ctx, port)
		if known && ports.MatchesOwner(owner, s.spec.ExpectedOwnerNames) {
			logging.Warn("Supervisor", "%s on port %d never confirmed its health endpoint; accepting unverified (owner %s, pid %d)", s.spec.Name, port, owner.Name, owner.PID)
			s.transition(StatusHealthy)
			return Result{
				Name:       s.spec.Name,
				Status:     StatusHealthy,
				Port:       port,
				Unverified: true,
				Hint:       "adopted without health confirmation; restart it manually if it is misbehaving",
			}, true
		}
	}

	logging.Warn("Supervisor", "%s on port %d is not responding and will not be adopted; launching fresh", s.spec.Name, port)
	s.state.CurrentPort = 0
	return Result{}, false
}

// launchLoop implements Launching → Settling → Probing with retry by port
// advance until success or the port range is exhausted.
func (s *Supervisor) launchLoop(ctx context.Context, execPath, upstreamURL string) Result {
	for {
		if ctx.Err() != nil {
			return s.aborted(ctx)
		}

		s.transition(StatusLaunching)
		port, ok := s.nextFreePort(ctx)
		if !ok {
			s.transition(StatusExhaustedPortRange)
			return Result{
				Name:   s.spec.Name,
				Status: StatusExhaustedPortRange,
				Hint:   fmt.Sprintf("no free port in configured range %v; free one up or override with --ports %s=<range>", s.spec.PortRange, s.spec.Name),
			}
		}
		s.state.AttemptedPorts = append(s.state.AttemptedPorts, port)
		s.state.CurrentPort = port

		bc := config.BuildContext{
			Port:        port,
			WorkDir:     s.serviceDir(),
			UpstreamURL: upstreamURL,
		}

		if s.spec.Prepare != nil {
			if err := s.spec.Prepare(ctx, bc); err != nil {
				return Result{
					Name:   s.spec.Name,
					Status: s.state.Status,
					Port:   port,
					Err:    err,
					Hint:   "failed to write collaborator files before launch",
				}
			}
		}

		var args []string
		if s.spec.BuildArgs != nil {
			args = s.spec.BuildArgs(bc)
		}
		var env map[string]string
		if s.spec.BuildEnv != nil {
			env = s.spec.BuildEnv(bc)
		}

		handle, err := s.deps.Launcher.Launch(ctx, launcher.Spec{
			Name:    s.spec.Name,
			Path:    execPath,
			Args:    args,
			Env:     env,
			WorkDir: s.serviceDir(),
			LogPath: filepath.Join(s.stackDir, "logs", s.spec.Name+".log"),
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.aborted(ctx)
			}
			logging.Warn("Supervisor", "Failed to start %s on port %d: %v; advancing to next port", s.spec.Name, port, err)
			continue
		}
		s.state.Handle = &handle

		// Probing during process initialization produces false negatives;
		// the settle delay avoids that structurally.
		s.transition(StatusSettling)
		if err := s.deps.Sleep(ctx, s.spec.SettleDelay); err != nil {
			return s.aborted(ctx)
		}

		s.transition(StatusProbing)
		err = health.WaitHealthy(ctx, s.deps.Prober, Host, port, s.healthCheck(), s.probeInterval(), s.probeWindow())
		if err == nil {
			s.transition(StatusHealthy)
			return Result{Name: s.spec.Name, Status: StatusHealthy, Port: port, OwnedByUs: true}
		}
		if ctx.Err() != nil {
			return s.aborted(ctx)
		}
		logging.Warn("Supervisor", "%s did not become healthy on port %d within %s: %v; advancing to next port", s.spec.Name, port, s.probeWindow(), err)
	}
}

// nextFreePort returns the first port in the range that is neither bound by
// anything (regardless of owner) nor already attempted this run.
func (s *Supervisor) nextFreePort(ctx context.Context) (int, bool) {
	for _, port := range s.spec.PortRange {
		if s.attempted(port) {
			continue
		}
		if s.deps.Ports.IsBound(ctx, port) {
			continue
		}
		return port, true
	}
	return 0, false
}

func (s *Supervisor) attempted(port int) bool {
	for _, p := range s.state.AttemptedPorts {
		if p == port {
			return true
		}
	}
	return false
}

func (s *Supervisor) aborted(ctx context.Context) Result {
	logging.Info("Supervisor", "%s aborted in state %s", s.spec.Name, s.state.Status)
	return Result{
		Name:   s.spec.Name,
		Status: s.state.Status,
		Port:   s.state.CurrentPort,
		Err:    ctx.Err(),
		Hint:   "run aborted; already-launched processes were left running",
	}
}

func (s *Supervisor) transition(next Status) {
	if s.state.Status != next {
		logging.Debug("Supervisor", "%s: %s -> %s", s.spec.Name, s.state.Status, next)
	}
	s.state.Status = next
}

func (s *Supervisor) serviceDir() string {
	return filepath.Join(s.stackDir, s.spec.Name)
}

func (s *Supervisor) healthCheck() health.Check {
	return health.Check{
		Path:                s.spec.Health.Path,
		AcceptedStatusCodes: s.spec.Health.AcceptedStatusCodes,
	}
}

func (s *Supervisor) probeInterval() time.Duration {
	if s.spec.ProbeInterval > 0 {
		return s.spec.ProbeInterval
	}
	return time.Second
}

func (s *Supervisor) probeWindow() time.Duration {
	if s.spec.ProbeWindow > 0 {
		return s.spec.ProbeWindow
	}
	return 30 * time.Second
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
