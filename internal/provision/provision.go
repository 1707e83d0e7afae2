// Package provision writes the declarative collaborator files consumed by the
// managed services before they are launched: Grafana datasource and
// dashboard-provider descriptors, and a minimal Prometheus scrape
// configuration. obsctl only writes these files; validating their content is
// the consuming service's concern.
package provision

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GrafanaDatasource is one entry of a Grafana datasource provisioning file.
type GrafanaDatasource struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Access    string `yaml:"access"`
	URL       string `yaml:"url"`
	IsDefault bool   `yaml:"isDefault"`
}

type grafanaDatasourceFile struct {
	APIVersion  int                 `yaml:"apiVersion"`
	Datasources []GrafanaDatasource `yaml:"datasources"`
}

// GrafanaDashboardProvider is one entry of a Grafana dashboard-provider
// provisioning file. It points Grafana at a directory of dashboard documents.
type GrafanaDashboardProvider struct {
	Name    string                   `yaml:"name"`
	Type    string                   `yaml:"type"`
	Options DashboardProviderOptions `yaml:"options"`
}

// DashboardProviderOptions holds the file-provider options.
type DashboardProviderOptions struct {
	Path string `yaml:"path"`
}

type grafanaDashboardFile struct {
	APIVersion int                        `yaml:"apiVersion"`
	Providers  []GrafanaDashboardProvider `yaml:"providers"`
}

// WriteGrafanaProvisioning writes the datasource and dashboard-provider
// descriptors under provisioningDir, in the layout Grafana expects
// (datasources/ and dashboards/ subdirectories). datasourceURL is the
// resolved base URL of the metrics server; dashboardsDir is the staged
// directory of dashboard documents, which is created if missing.
//
// The function is idempotent: existing descriptors are overwritten so a
// re-run picks up a changed metrics server port.
func WriteGrafanaProvisioning(provisioningDir, datasourceURL, dashboardsDir string) error {
	if err := os.MkdirAll(dashboardsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dashboards directory: %w", err)
	}

	ds := grafanaDatasourceFile{
		APIVersion: 1,
		Datasources: []GrafanaDatasource{
			{
				Name:      "Prometheus",
				Type:      "prometheus",
				Access:    "proxy",
				URL:       datasourceURL,
				IsDefault: true,
			},
		},
	}
	if err := writeYAML(filepath.Join(provisioningDir, "datasources", "obsctl.yaml"), ds); err != nil {
		return fmt.Errorf("failed to write datasource descriptor: %w", err)
	}

	db := grafanaDashboardFile{
		APIVersion: 1,
		Providers: []GrafanaDashboardProvider{
			{
				Name: "obsctl",
				Type: "file",
				Options: DashboardProviderOptions{
					Path: dashboardsDir,
				},
			},
		},
	}
	if err := writeYAML(filepath.Join(provisioningDir, "dashboards", "obsctl.yaml"), db); err != nil {
		return fmt.Errorf("failed to write dashboard provider descriptor: %w", err)
	}

	return nil
}

type prometheusGlobalConfig struct {
	ScrapeInterval string `yaml:"scrape_interval"`
}

type prometheusStaticConfig struct {
	Targets []string `yaml:"targets"`
}

type prometheusScrapeConfig struct {
	JobName       string                   `yaml:"job_name"`
	StaticConfigs []prometheusStaticConfig `yaml:"static_configs"`
}

type prometheusConfigFile struct {
	Global        prometheusGlobalConfig   `yaml:"global"`
	ScrapeConfigs []prometheusScrapeConfig `yaml:"scrape_configs"`
}

// WritePrometheusConfig writes a minimal scrape configuration (self-scrape
// only) to path unless a file already exists there. An existing file is
// assumed to be operator-maintained and is left untouched.
func WritePrometheusConfig(path string, listenPort int) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat prometheus config: %w", err)
	}

	cfg := prometheusConfigFile{
		Global: prometheusGlobalConfig{
			ScrapeInterval: "15s",
		},
		ScrapeConfigs: []prometheusScrapeConfig{
			{
				JobName: "prometheus",
				StaticConfigs: []prometheusStaticConfig{
					{Targets: []string{fmt.Sprintf("127.0.0.1:%d", listenPort)}},
				},
			},
		},
	}
	return writeYAML(path, cfg)
}

// writeYAML marshals v and writes it to path, creating parent directories as
// needed.
func writeYAML(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
