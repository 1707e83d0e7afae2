package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"obsctl/internal/config"
	"obsctl/internal/supervisor"
	"obsctl/pkg/logging"
)

// Config holds everything needed for one bootstrap run.
type Config struct {
	// Specs are the managed services in declaration (dependency) order.
	Specs []config.ServiceSpec

	// StackDir is the stack home directory.
	StackDir string

	// Parallel runs independent supervisors concurrently. Dependent
	// services still wait for their upstream's resolved address through the
	// future, so ordering guarantees hold in both modes.
	Parallel bool

	// Deps are the collaborators handed to every supervisor.
	Deps supervisor.Deps
}

// Orchestrator runs the declared services and aggregates the outcome.
type Orchestrator struct {
	cfg     Config
	futures map[string]*addressFuture
}

// New creates an orchestrator for the given run configuration.
func New(cfg Config) *Orchestrator {
	futures := make(map[string]*addressFuture, len(cfg.Specs))
	for _, spec := range cfg.Specs {
		futures[spec.Name] = newAddressFuture()
	}
	return &Orchestrator{cfg: cfg, futures: futures}
}

// Run drives every declared service to a terminal state and returns the
// aggregated summary. Cancelling the context stops further probing and
// retries immediately but never terminates already-launched children; they
// are meant to outlive the orchestrator.
func (o *Orchestrator) Run(ctx context.Context) Summary {
	reports := make([]ServiceReport, len(o.cfg.Specs))

	if o.cfg.Parallel {
		var g errgroup.Group
		for i, spec := range o.cfg.Specs {
			g.Go(func() error {
				reports[i] = o.runOne(ctx, spec)
				return nil
			})
		}
		// Goroutines never return errors; results travel via reports.
		_ = g.Wait()
	} else {
		for i, spec := range o.cfg.Specs {
			reports[i] = o.runOne(ctx, spec)
		}
	}

	return Summary{Reports: reports}
}

// runOne runs a single service's supervisor to a terminal state and settles
// the service's address future so dependents can proceed (or give up).
func (o *Orchestrator) runOne(ctx context.Context, spec config.ServiceSpec) ServiceReport {
	report := ServiceReport{Required: spec.Required}

	if !spec.Enabled {
		logging.Debug("Orchestrator", "Service %s is disabled, skipping", spec.Name)
		o.futures[spec.Name].fail(fmt.Errorf("service %s is disabled", spec.Name))
		report.Result = supervisor.Result{Name: spec.Name, Status: supervisor.StatusNotStarted}
		report.Disabled = true
		return report
	}

	upstreamURL := ""
	if spec.DependsOn != "" {
		future, exists := o.futures[spec.DependsOn]
		if !exists {
			err := fmt.Errorf("service %s depends on undeclared service %s", spec.Name, spec.DependsOn)
			o.futures[spec.Name].fail(err)
			report.Result = supervisor.Result{Name: spec.Name, Status: supervisor.StatusNotStarted, Err: err}
			return report
		}
		url, err := future.wait(ctx)
		if err != nil {
			logging.Warn("Orchestrator", "Service %s not started: upstream %s unavailable: %v", spec.Name, spec.DependsOn, err)
			o.futures[spec.Name].fail(fmt.Errorf("upstream %s unavailable: %w", spec.DependsOn, err))
			report.Result = supervisor.Result{
				Name:   spec.Name,
				Status: supervisor.StatusNotStarted,
				Err:    err,
				Hint:   fmt.Sprintf("upstream service %s never became healthy", spec.DependsOn),
			}
			return report
		}
		upstreamURL = url
	}

	sup := supervisor.New(spec, o.cfg.StackDir, o.cfg.Deps)
	result := sup.Run(ctx, upstreamURL)

	if result.Healthy() {
		o.futures[spec.Name].resolve(fmt.Sprintf("http://%s:%d", supervisor.Host, result.Port))
	} else {
		o.futures[spec.Name].fail(fmt.Errorf("service %s ended in state %s", spec.Name, result.Status))
	}

	report.Result = result
	return report
}

// ResolvedURL returns the service's resolved base URL when it reached
// Healthy this run. Used by the CLI for the browser-open convenience.
func (o *Orchestrator) ResolvedURL(name string) (string, bool) {
	future, exists := o.futures[name]
	if !exists {
		return "", false
	}
	select {
	case <-future.done:
		if future.err != nil {
			return "", false
		}
		return future.url, true
	default:
		return "", false
	}
}
