package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"obsctl/internal/provision"
)

// Names of the stack's known services. Custom services added through YAML use
// their own names and get no builders attached.
const (
	ServicePrometheus      = "prometheus"
	ServiceVictoriaMetrics = "victoria-metrics"
	ServiceGrafana         = "grafana"
	ServiceObsd            = "obsd"
)

// GetDefaultConfig returns the default configuration: the four managed
// services of the local observability stack, declared in dependency order.
// Grafana and obsd consume the metrics server's resolved address, so they
// are declared after prometheus.
func GetDefaultConfig() ObsctlConfig {
	return ObsctlConfig{
		GlobalSettings: GlobalSettings{
			WorkDir: "~/.obsctl",
		},
		Services: []ServiceDefinition{
			{
				Name:     ServicePrometheus,
				Enabled:  true,
				Required: false,
				ExecutableCandidates: []string{
					"prometheus",
					"/usr/local/bin/prometheus",
					"/opt/homebrew/bin/prometheus",
					"~/tools/prometheus-*/prometheus",
				},
				PortRange:          []int{9090, 9091, 9092, 9093, 9094},
				ExpectedOwnerNames: []string{"prometheus"},
				SettleDelay:        1500 * time.Millisecond,
				ProbeInterval:      time.Second,
				ProbeWindow:        30 * time.Second,
				Health: HealthCheckDefinition{
					Path:                "/-/ready",
					AcceptedStatusCodes: []int{200},
				},
			},
			{
				Name:     ServiceVictoriaMetrics,
				Enabled:  true,
				Required: false,
				ExecutableCandidates: []string{
					"victoria-metrics",
					"victoria-metrics-prod",
					"/usr/local/bin/victoria-metrics",
					"~/tools/victoria-metrics-*/victoria-metrics-prod",
				},
				PortRange:          []int{8428, 8429, 8430, 8431, 8432},
				ExpectedOwnerNames: []string{"victoria-metrics", "victoria-metrics-prod"},
				SettleDelay:        time.Second,
				ProbeInterval:      time.Second,
				ProbeWindow:        30 * time.Second,
				Health: HealthCheckDefinition{
					Path:                "/health",
					AcceptedStatusCodes: []int{200},
				},
			},
			{
				Name:     ServiceGrafana,
				Enabled:  true,
				Required: true,
				ExecutableCandidates: []string{
					"grafana",
					"grafana-server",
					"/usr/local/bin/grafana",
					"/usr/share/grafana/bin/grafana-server",
					"~/tools/grafana-*/bin/grafana",
				},
				PortRange:          []int{3000, 3001, 3002, 3003, 3004},
				ExpectedOwnerNames: []string{"grafana", "grafana-server"},
				SettleDelay:        3 * time.Second,
				ProbeInterval:      time.Second,
				ProbeWindow:        60 * time.Second,
				Health: HealthCheckDefinition{
					Path:                "/api/health",
					AcceptedStatusCodes: []int{200},
				},
			},
			{
				Name:     ServiceObsd,
				Enabled:  true,
				Required: true,
				ExecutableCandidates: []string{
					"obsd",
					"./bin/obsd",
					"~/go/bin/obsd",
				},
				PortRange:          []int{8700, 8701, 8702, 8703, 8704},
				ExpectedOwnerNames: []string{"obsd"},
				SettleDelay:        500 * time.Millisecond,
				ProbeInterval:      500 * time.Millisecond,
				ProbeWindow:        15 * time.Second,
				Health: HealthCheckDefinition{
					Path:                "/healthz",
					AcceptedStatusCodes: []int{200},
				},
			},
		},
	}
}

// BuildSpecs attaches the in-code builders (arguments, environment overlay,
// pre-launch provisioning) to the merged service definitions. Definitions for
// unknown service names pass through with no builders; such services are
// launched with no arguments beyond their executable.
func BuildSpecs(cfg ObsctlConfig) []ServiceSpec {
	specs := make([]ServiceSpec, 0, len(cfg.Services))
	for _, def := range cfg.Services {
		spec := ServiceSpec{ServiceDefinition: def}
		switch def.Name {
		case ServicePrometheus:
			spec.Prepare = preparePrometheus
			spec.BuildArgs = prometheusArgs
		case ServiceVictoriaMetrics:
			spec.BuildArgs = victoriaMetricsArgs
		case ServiceGrafana:
			spec.DependsOn = ServicePrometheus
			spec.Prepare = prepareGrafana
			spec.BuildEnv = grafanaEnv
		case ServiceObsd:
			spec.DependsOn = ServicePrometheus
			spec.BuildArgs = obsdArgs
		}
		specs = append(specs, spec)
	}
	return specs
}

// preparePrometheus writes a minimal self-scrape configuration unless the
// operator already maintains one at the expected path.
func preparePrometheus(ctx context.Context, bc BuildContext) error {
	return provision.WritePrometheusConfig(filepath.Join(bc.WorkDir, "prometheus.yml"), bc.Port)
}

func prometheusArgs(bc BuildContext) []string {
	return []string{
		"--config.file=" + filepath.Join(bc.WorkDir, "prometheus.yml"),
		fmt.Sprintf("--web.listen-address=127.0.0.1:%d", bc.Port),
		"--storage.tsdb.path=" + filepath.Join(bc.WorkDir, "data"),
	}
}

func victoriaMetricsArgs(bc BuildContext) []string {
	return []string{
		fmt.Sprintf("-httpListenAddr=127.0.0.1:%d", bc.Port),
		"-storageDataPath=" + filepath.Join(bc.WorkDir, "data"),
	}
}

// prepareGrafana writes the datasource and dashboard-provider provisioning
// documents. bc.UpstreamURL is the metrics server's resolved address and is
// only available after that service reached Healthy.
func prepareGrafana(ctx context.Context, bc BuildContext) error {
	return provision.WriteGrafanaProvisioning(
		filepath.Join(bc.WorkDir, "provisioning"),
		bc.UpstreamURL,
		filepath.Join(bc.WorkDir, "dashboards"),
	)
}

// grafanaEnv builds the environment overlay for the Grafana server. Grafana
// reads its home, data, plugin and provisioning directories plus the bind
// port from GF_* variables, so no argument list is needed.
func grafanaEnv(bc BuildContext) map[string]string {
	return map[string]string{
		"GF_SERVER_HTTP_ADDR":       "127.0.0.1",
		"GF_SERVER_HTTP_PORT":       fmt.Sprintf("%d", bc.Port),
		"GF_PATHS_DATA":             filepath.Join(bc.WorkDir, "data"),
		"GF_PATHS_PLUGINS":          filepath.Join(bc.WorkDir, "plugins"),
		"GF_PATHS_PROVISIONING":     filepath.Join(bc.WorkDir, "provisioning"),
		"GF_AUTH_ANONYMOUS_ENABLED": "true",
	}
}

func obsdArgs(bc BuildContext) []string {
	return []string{
		fmt.Sprintf("--listen=127.0.0.1:%d", bc.Port),
		"--metrics-url=" + bc.UpstreamURL,
	}
}
