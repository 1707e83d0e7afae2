package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"obsctl/internal/config"
	"obsctl/internal/health"
	"obsctl/internal/launcher"
	"obsctl/internal/orchestrator"
	"obsctl/internal/ports"
	"obsctl/internal/resolver"
	"obsctl/internal/supervisor"
	"obsctl/pkg/logging"
)

// upDebug enables verbose logging across the application.
var upDebug bool

// upParallel runs independent services concurrently instead of in
// declaration order. Dependent services still wait for their upstream.
var upParallel bool

// upOpen opens a browser to the Grafana dashboard once it is healthy.
var upOpen bool

// upWorkDir overrides the stack home directory.
var upWorkDir string

// upDisable lists services to skip for this run.
var upDisable []string

// upPorts holds per-service port range overrides, e.g. "prometheus=9100-9104".
var upPorts []string

// upExecPath holds per-service executable search overrides,
// e.g. "grafana=/opt/grafana/bin/grafana".
var upExecPath []string

// upCmd defines the up command, the main bootstrap entry point.
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Locate, launch and verify the observability stack",
	Long: `Brings every enabled service of the local observability stack to a healthy
state. For each service, obsctl:

  1. Scans the service's port range for an instance that is already running
     and owned by the expected process, and adopts it instead of launching.
  2. Otherwise resolves the service executable from its candidate locations.
  3. Picks the first free port in the range, launches the process detached,
     waits out the service's settle delay, and probes its health endpoint.
  4. On probe timeout, advances to the next free port until the range is
     exhausted.

Launched processes outlive obsctl; interrupting a run stops further probing
but never kills children already started. The exit code is zero only when
every required service is healthy.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

// runUp is the main entry point for the up command
func runUp(cmd *cobra.Command, args []string) error {
	logLevel := logging.LevelInfo
	if upDebug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	overrides, err := buildOverrides()
	if err != nil {
		return err
	}
	cfg = config.ApplyOverrides(cfg, overrides)

	stackDir := config.ExpandHome(cfg.GlobalSettings.WorkDir)
	specs := config.BuildSpecs(cfg)

	// Operator abort stops probing and retries immediately; children
	// already launched keep running.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(orchestrator.Config{
		Specs:    specs,
		StackDir: stackDir,
		Parallel: upParallel,
		Deps: supervisor.Deps{
			Ports:    ports.NewSystemRegistry(),
			Resolver: resolver.NewFileSystemResolver(),
			Launcher: launcher.NewExecLauncher(),
			Prober:   health.NewNetProber(),
		},
	})

	summary := orch.Run(ctx)
	fmt.Println(summary.Render())

	if upOpen {
		if url, ok := orch.ResolvedURL(config.ServiceGrafana); ok {
			if err := browser.OpenURL(url); err != nil {
				logging.Warn("Up", "Failed to open browser at %s: %v", url, err)
			}
		}
	}

	if !summary.Success() {
		return fmt.Errorf("one or more required services did not become healthy")
	}
	return nil
}

// buildOverrides translates the repeated name=value flags into config
// overrides.
func buildOverrides() (config.Overrides, error) {
	overrides := config.Overrides{
		WorkDir:   upWorkDir,
		Disabled:  upDisable,
		PortRange: make(map[string][]int),
		ExecPaths: make(map[string][]string),
	}

	for _, value := range upPorts {
		name, spec, err := splitOverride(value)
		if err != nil {
			return config.Overrides{}, fmt.Errorf("invalid --ports value %q: %w", value, err)
		}
		portRange, err := parsePortSpec(spec)
		if err != nil {
			return config.Overrides{}, fmt.Errorf("invalid --ports value %q: %w", value, err)
		}
		overrides.PortRange[name] = portRange
	}

	for _, value := range upExecPath {
		name, path, err := splitOverride(value)
		if err != nil {
			return config.Overrides{}, fmt.Errorf("invalid --exec-path value %q: %w", value, err)
		}
		overrides.ExecPaths[name] = append(overrides.ExecPaths[name], path)
	}

	return overrides, nil
}

func splitOverride(value string) (name, rest string, err error) {
	name, rest, found := strings.Cut(value, "=")
	if !found || name == "" || rest == "" {
		return "", "", fmt.Errorf("expected <service>=<value>")
	}
	return name, rest, nil
}

// parsePortSpec parses a port range specification: comma-separated entries,
// each either a single port or an inclusive low-high range, preserving
// order. Examples: "9090", "9090,9091", "9100-9104", "9090,9100-9102".
func parsePortSpec(spec string) ([]int, error) {
	var result []int
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("empty port entry")
		}
		if low, high, found := strings.Cut(token, "-"); found {
			lowPort, err := parsePort(low)
			if err != nil {
				return nil, err
			}
			highPort, err := parsePort(high)
			if err != nil {
				return nil, err
			}
			if highPort < lowPort {
				return nil, fmt.Errorf("descending range %s", token)
			}
			for p := lowPort; p <= highPort; p++ {
				result = append(result, p)
			}
			continue
		}
		port, err := parsePort(token)
		if err != nil {
			return nil, err
		}
		result = append(result, port)
	}
	return result, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// init registers the up command and its flags with the root command.
func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolVar(&upDebug, "debug", false, "Enable debug logging")
	upCmd.Flags().BoolVar(&upParallel, "parallel", false, "Run independent services concurrently")
	upCmd.Flags().BoolVar(&upOpen, "open", false, "Open a browser to Grafana once it is healthy")
	upCmd.Flags().StringVar(&upWorkDir, "workdir", "", "Stack home directory (default ~/.obsctl)")
	upCmd.Flags().StringArrayVar(&upDisable, "disable", nil, "Disable a service for this run (repeatable)")
	upCmd.Flags().StringArrayVar(&upPorts, "ports", nil, "Override a service's port range, e.g. prometheus=9100-9104 (repeatable)")
	upCmd.Flags().StringArrayVar(&upExecPath, "exec-path", nil, "Override a service's executable search path, e.g. grafana=/opt/grafana/bin/grafana (repeatable)")
}
