package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obsctl/internal/config"
)

func TestParsePortSpec(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		expected []int
		wantErr  bool
	}{
		{"single port", "9090", []int{9090}, false},
		{"comma separated", "9090,9091", []int{9090, 9091}, false},
		{"inclusive range", "9100-9103", []int{9100, 9101, 9102, 9103}, false},
		{"mixed list and range", "9090,9100-9102", []int{9090, 9100, 9101, 9102}, false},
		{"whitespace tolerated", " 9090 , 9091 ", []int{9090, 9091}, false},
		{"descending range", "9104-9100", nil, true},
		{"empty entry", "9090,,9091", nil, true},
		{"not a number", "abc", nil, true},
		{"port zero", "0", nil, true},
		{"port too large", "70000", nil, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := parsePortSpec(test.spec)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, result)
		})
	}
}

func TestSplitOverride(t *testing.T) {
	name, rest, err := splitOverride("prometheus=9100-9104")
	require.NoError(t, err)
	assert.Equal(t, "prometheus", name)
	assert.Equal(t, "9100-9104", rest)

	// Values may contain '=' themselves, only the first one splits.
	name, rest, err = splitOverride("obsd=/opt/obsd=custom/bin/obsd")
	require.NoError(t, err)
	assert.Equal(t, "obsd", name)
	assert.Equal(t, "/opt/obsd=custom/bin/obsd", rest)

	_, _, err = splitOverride("no-separator")
	assert.Error(t, err)
	_, _, err = splitOverride("=value")
	assert.Error(t, err)
	_, _, err = splitOverride("name=")
	assert.Error(t, err)
}

func TestBuildOverrides(t *testing.T) {
	origDisable, origPorts, origExec, origWorkDir := upDisable, upPorts, upExecPath, upWorkDir
	t.Cleanup(func() {
		upDisable, upPorts, upExecPath, upWorkDir = origDisable, origPorts, origExec, origWorkDir
	})

	upWorkDir = "/tmp/stack"
	upDisable = []string{"victoria-metrics"}
	upPorts = []string{"prometheus=9100-9101"}
	upExecPath = []string{"grafana=/opt/grafana/bin/grafana", "grafana=grafana-server"}

	overrides, err := buildOverrides()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/stack", overrides.WorkDir)
	assert.Equal(t, []string{"victoria-metrics"}, overrides.Disabled)
	assert.Equal(t, []int{9100, 9101}, overrides.PortRange["prometheus"])
	assert.Equal(t, []string{"/opt/grafana/bin/grafana", "grafana-server"}, overrides.ExecPaths["grafana"])
}

func TestBuildOverridesRejectsBadFlags(t *testing.T) {
	origPorts, origExec := upPorts, upExecPath
	t.Cleanup(func() { upPorts, upExecPath = origPorts, origExec })

	upExecPath = nil
	upPorts = []string{"prometheus=bogus"}
	_, err := buildOverrides()
	assert.Error(t, err)

	upPorts = nil
	upExecPath = []string{"missing-separator"}
	_, err = buildOverrides()
	assert.Error(t, err)
}

func TestOverridesApplyToDefaultConfig(t *testing.T) {
	cfg := config.ApplyOverrides(config.GetDefaultConfig(), config.Overrides{
		Disabled:  []string{config.ServiceVictoriaMetrics},
		PortRange: map[string][]int{config.ServicePrometheus: {9100}},
	})

	for _, svc := range cfg.Services {
		switch svc.Name {
		case config.ServiceVictoriaMetrics:
			assert.False(t, svc.Enabled)
		case config.ServicePrometheus:
			assert.Equal(t, []int{9100}, svc.PortRange)
		}
	}
}
