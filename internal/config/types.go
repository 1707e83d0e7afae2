package config

import (
	"context"
	"time"
)

// ObsctlConfig is the top-level configuration structure for obsctl.
type ObsctlConfig struct {
	GlobalSettings GlobalSettings      `yaml:"globalSettings"`
	Services       []ServiceDefinition `yaml:"services"`
}

// GlobalSettings holds settings that apply to the whole run rather than to a
// single managed service.
type GlobalSettings struct {
	// WorkDir is the stack home directory. Per-service data directories,
	// log files and provisioning documents live underneath it.
	// Defaults to ~/.obsctl.
	WorkDir string `yaml:"workDir,omitempty"`
}

// HealthCheckDefinition selects how a service's liveness is confirmed.
// An empty Path means the probe is a plain TCP connect; otherwise an HTTP GET
// against Path is performed and the response status must be in
// AcceptedStatusCodes (200 if the list is empty).
type HealthCheckDefinition struct {
	Path                string `yaml:"path,omitempty"`
	AcceptedStatusCodes []int  `yaml:"acceptedStatusCodes,omitempty"`
}

// ServiceDefinition is the data-only description of one managed service.
// Every field here can be overridden from a YAML configuration layer; the
// behavioral parts (argument and environment builders) live on ServiceSpec
// and are attached in code.
type ServiceDefinition struct {
	// Name uniquely identifies the service within a run.
	Name string `yaml:"name"`

	// Enabled controls whether the orchestrator manages this service at all.
	Enabled bool `yaml:"enabled"`

	// Required services fail the overall run when they do not become
	// healthy; optional services are only reported.
	Required bool `yaml:"required"`

	// ExecutableCandidates is the ordered list of locations to search for
	// the service binary. Entries may be bare names (resolved via PATH),
	// absolute paths, or glob patterns such as "~/tools/prometheus-*/prometheus"
	// where the lexically greatest match wins (latest version directory).
	ExecutableCandidates []string `yaml:"executableCandidates,omitempty"`

	// PortRange is the ordered, non-empty sequence of candidate ports,
	// tried in search order. A port is never attempted twice in one run.
	PortRange []int `yaml:"portRange,omitempty"`

	// ExpectedOwnerNames lists process names that indicate "already
	// running, adopt it" when found bound to a candidate port. Matching is
	// case-insensitive.
	ExpectedOwnerNames []string `yaml:"expectedOwnerNames,omitempty"`

	// SettleDelay is the mandatory quiet period between process start and
	// the first health probe. Services with slow cold starts get a longer
	// delay.
	SettleDelay time.Duration `yaml:"settleDelay,omitempty"`

	// ProbeInterval is the spacing between health probe attempts.
	ProbeInterval time.Duration `yaml:"probeInterval,omitempty"`

	// ProbeWindow is the hard wall-clock ceiling for one probing phase.
	// Exceeding it forces a retry on the next port (or the adopt-unverified
	// soft success for services obsctl did not launch).
	ProbeWindow time.Duration `yaml:"probeWindow,omitempty"`

	// AdoptUnverified controls the soft-success fallback: when a candidate
	// port is bound by an expected owner but its health endpoint never
	// confirms within ProbeWindow, the service is still reported healthy.
	// Only applies to processes obsctl did not launch itself. Nil means the
	// per-service default from the stack definition.
	AdoptUnverified *bool `yaml:"adoptUnverified,omitempty"`

	// Health describes the protocol-aware liveness check.
	Health HealthCheckDefinition `yaml:"health,omitempty"`
}

// BuildContext carries the run-scoped inputs available to the builders of a
// ServiceSpec. It is constructed fresh for every launch attempt.
type BuildContext struct {
	// Port is the port chosen for this launch attempt.
	Port int

	// WorkDir is the service's private directory under the stack home
	// (data, logs, generated configuration).
	WorkDir string

	// UpstreamURL is the resolved base URL of the upstream service this
	// service depends on, or empty when the spec declares no dependency.
	// It is only ever populated after the upstream reached Healthy.
	UpstreamURL string
}

// ArgsBuilder constructs the child process argument list for a launch attempt.
type ArgsBuilder func(bc BuildContext) []string

// EnvBuilder constructs the environment overlay applied to the child process
// only. The orchestrator's own environment is never mutated.
type EnvBuilder func(bc BuildContext) map[string]string

// PrepareFunc runs before each launch attempt, after the port is chosen and
// any upstream dependency is resolved. It is used to write collaborator files
// (Grafana provisioning documents, a minimal Prometheus scrape config) and
// must be idempotent.
type PrepareFunc func(ctx context.Context, bc BuildContext) error

// ServiceSpec is a ServiceDefinition plus the behavioral pieces that cannot
// live in YAML. Specs are immutable once built; all mutable bootstrap state
// belongs to the supervisor.
type ServiceSpec struct {
	ServiceDefinition

	// DependsOn names the upstream service whose resolved address must be
	// available before this service's Prepare/BuildArgs run. Empty for
	// independent services. Services must be declared after their upstream.
	DependsOn string

	BuildArgs ArgsBuilder
	BuildEnv  EnvBuilder
	Prepare   PrepareFunc
}

// AdoptUnverifiedEnabled reports the effective soft-success setting,
// defaulting to the stack default when the definition does not pin one.
func (d ServiceDefinition) AdoptUnverifiedEnabled(defaultValue bool) bool {
	if d.AdoptUnverified != nil {
		return *d.AdoptUnverified
	}
	return defaultValue
}
