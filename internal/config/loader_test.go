package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfigFiles points the loader's path lookups at temp files for the
// duration of a test. Empty content means the layer is absent.
func withConfigFiles(t *testing.T, userYAML, projectYAML string) {
	t.Helper()
	dir := t.TempDir()

	userPath := filepath.Join(dir, "user", "config.yaml")
	projectPath := filepath.Join(dir, "project", "config.yaml")
	if userYAML != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
		require.NoError(t, os.WriteFile(userPath, []byte(userYAML), 0o644))
	}
	if projectYAML != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(projectPath), 0o755))
		require.NoError(t, os.WriteFile(projectPath, []byte(projectYAML), 0o644))
	}

	origUser := getUserConfigPath
	origProject := getProjectConfigPath
	getUserConfigPath = func() (string, error) { return userPath, nil }
	getProjectConfigPath = func() (string, error) { return projectPath, nil }
	t.Cleanup(func() {
		getUserConfigPath = origUser
		getProjectConfigPath = origProject
	})
}

func findService(t *testing.T, cfg ObsctlConfig, name string) ServiceDefinition {
	t.Helper()
	for _, svc := range cfg.Services {
		if svc.Name == name {
			return svc
		}
	}
	t.Fatalf("service %q not found in config", name)
	return ServiceDefinition{}
}

func TestLoadConfigDefaultsOnly(t *testing.T) {
	withConfigFiles(t, "", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "~/.obsctl", cfg.GlobalSettings.WorkDir)
	require.Len(t, cfg.Services, 4)
	prom := findService(t, cfg, ServicePrometheus)
	assert.Equal(t, []int{9090, 9091, 9092, 9093, 9094}, prom.PortRange)
	assert.Equal(t, "/-/ready", prom.Health.Path)
}

func TestLoadConfigUserLayerOverridesDefaults(t *testing.T) {
	withConfigFiles(t, `
globalSettings:
  workDir: /srv/obsctl
services:
  - name: prometheus
    enabled: true
    portRange: [19090, 19091]
`, "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/obsctl", cfg.GlobalSettings.WorkDir)
	prom := findService(t, cfg, ServicePrometheus)
	assert.Equal(t, []int{19090, 19091}, prom.PortRange)
	// Fields the overlay left out keep the defaults.
	assert.Equal(t, "/-/ready", prom.Health.Path)
	assert.NotEmpty(t, prom.ExecutableCandidates)
}

func TestLoadConfigProjectLayerWinsOverUser(t *testing.T) {
	withConfigFiles(t, `
services:
  - name: grafana
    enabled: true
    required: true
    portRange: [3100]
`, `
services:
  - name: grafana
    enabled: true
    required: false
    portRange: [3200]
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	grafana := findService(t, cfg, ServiceGrafana)
	assert.Equal(t, []int{3200}, grafana.PortRange)
	assert.False(t, grafana.Required)
}

func TestLoadConfigUnknownServiceAppended(t *testing.T) {
	withConfigFiles(t, "", `
services:
  - name: tempo
    enabled: true
    executableCandidates: ["tempo"]
    portRange: [3200]
    expectedOwnerNames: ["tempo"]
    health:
      path: /ready
`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Services, 5)
	tempo := findService(t, cfg, "tempo")
	assert.True(t, tempo.Enabled)
	assert.Equal(t, "/ready", tempo.Health.Path)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	withConfigFiles(t, "services: [not: valid: yaml\n", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestMergeServiceDefinitionAdoptUnverified(t *testing.T) {
	disable := false
	base := ServiceDefinition{Name: "x", SettleDelay: time.Second}
	overlay := ServiceDefinition{Name: "x", AdoptUnverified: &disable}

	merged := mergeServiceDefinition(base, overlay)
	require.NotNil(t, merged.AdoptUnverified)
	assert.False(t, *merged.AdoptUnverified)
	assert.Equal(t, time.Second, merged.SettleDelay)
}

func TestApplyOverrides(t *testing.T) {
	cfg := GetDefaultConfig()

	cfg = ApplyOverrides(cfg, Overrides{
		WorkDir:   "/tmp/stack",
		Disabled:  []string{"Victoria-Metrics"},
		PortRange: map[string][]int{ServicePrometheus: {9100, 9101}},
		ExecPaths: map[string][]string{ServiceObsd: {"/opt/obsd/bin/obsd"}},
	})

	assert.Equal(t, "/tmp/stack", cfg.GlobalSettings.WorkDir)
	assert.False(t, findService(t, cfg, ServiceVictoriaMetrics).Enabled, "disable matching is case-insensitive")
	assert.Equal(t, []int{9100, 9101}, findService(t, cfg, ServicePrometheus).PortRange)
	assert.Equal(t, []string{"/opt/obsd/bin/obsd"}, findService(t, cfg, ServiceObsd).ExecutableCandidates)
	assert.True(t, findService(t, cfg, ServiceGrafana).Enabled, "untouched services stay enabled")
}

func TestExpandHome(t *testing.T) {
	origHome := osUserHomeDir
	osUserHomeDir = func() (string, error) { return "/home/dev", nil }
	t.Cleanup(func() { osUserHomeDir = origHome })

	assert.Equal(t, "/home/dev", ExpandHome("~"))
	assert.Equal(t, filepath.Join("/home/dev", ".obsctl"), ExpandHome("~/.obsctl"))
	assert.Equal(t, "/var/lib/obsctl", ExpandHome("/var/lib/obsctl"))
	assert.Equal(t, "relative/path", ExpandHome("relative/path"))
}
