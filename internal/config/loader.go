package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/obsctl"
	projectConfigDir = ".obsctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the obsctl configuration by layering default, user, and
// project settings.
func LoadConfig() (ObsctlConfig, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. User-specific configuration (optional)
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return ObsctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Project-specific configuration (optional)
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return ObsctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads an ObsctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (ObsctlConfig, error) {
	var config ObsctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ObsctlConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return ObsctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Services are
// matched by name; an overlay service overrides only the fields it sets,
// except Enabled/Required which are always taken from the overlay entry
// (booleans have no "unset" marker in YAML). Overlay services with unknown
// names are appended in their declared order.
func mergeConfigs(base, overlay ObsctlConfig) ObsctlConfig {
	merged := base

	if overlay.GlobalSettings.WorkDir != "" {
		merged.GlobalSettings.WorkDir = overlay.GlobalSettings.WorkDir
	}

	for _, overlaySvc := range overlay.Services {
		idx := -1
		for i, svc := range merged.Services {
			if svc.Name == overlaySvc.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged.Services = append(merged.Services, overlaySvc)
			continue
		}
		merged.Services[idx] = mergeServiceDefinition(merged.Services[idx], overlaySvc)
	}

	return merged
}

func mergeServiceDefinition(base, overlay ServiceDefinition) ServiceDefinition {
	merged := base
	merged.Enabled = overlay.Enabled
	merged.Required = overlay.Required
	if len(overlay.ExecutableCandidates) > 0 {
		merged.ExecutableCandidates = overlay.ExecutableCandidates
	}
	if len(overlay.PortRange) > 0 {
		merged.PortRange = overlay.PortRange
	}
	if len(overlay.ExpectedOwnerNames) > 0 {
		merged.ExpectedOwnerNames = overlay.ExpectedOwnerNames
	}
	if overlay.SettleDelay > 0 {
		merged.SettleDelay = overlay.SettleDelay
	}
	if overlay.ProbeInterval > 0 {
		merged.ProbeInterval = overlay.ProbeInterval
	}
	if overlay.ProbeWindow > 0 {
		merged.ProbeWindow = overlay.ProbeWindow
	}
	if overlay.AdoptUnverified != nil {
		merged.AdoptUnverified = overlay.AdoptUnverified
	}
	if overlay.Health.Path != "" {
		merged.Health.Path = overlay.Health.Path
	}
	if len(overlay.Health.AcceptedStatusCodes) > 0 {
		merged.Health.AcceptedStatusCodes = overlay.Health.AcceptedStatusCodes
	}
	return merged
}

// Overrides carries command-line level configuration that wins over every
// file layer.
type Overrides struct {
	WorkDir   string
	Disabled  []string            // service names to disable for this run
	PortRange map[string][]int    // per-service port range replacement
	ExecPaths map[string][]string // per-service executable candidate replacement
}

// ApplyOverrides returns cfg with the command-line overrides applied.
func ApplyOverrides(cfg ObsctlConfig, ov Overrides) ObsctlConfig {
	if ov.WorkDir != "" {
		cfg.GlobalSettings.WorkDir = ov.WorkDir
	}
	for i := range cfg.Services {
		name := cfg.Services[i].Name
		for _, disabled := range ov.Disabled {
			if strings.EqualFold(disabled, name) {
				cfg.Services[i].Enabled = false
			}
		}
		if ports, ok := ov.PortRange[name]; ok && len(ports) > 0 {
			cfg.Services[i].PortRange = ports
		}
		if paths, ok := ov.ExecPaths[name]; ok && len(paths) > 0 {
			cfg.Services[i].ExecutableCandidates = paths
		}
	}
	return cfg
}

// ExpandHome replaces a leading "~" in path with the user's home directory.
// Paths without the prefix are returned unchanged, as is the input when the
// home directory cannot be determined.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := osUserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return homeDir
	}
	return filepath.Join(homeDir, path[2:])
}
