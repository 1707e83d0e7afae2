package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"obsctl/internal/config"
	"obsctl/internal/health"
	"obsctl/internal/ports"
	"obsctl/internal/supervisor"
	"obsctl/pkg/logging"
)

var statusDebug bool

// statusCmd inspects the stack without launching anything: for each enabled
// service it reports which candidate port (if any) is bound, by whom, and
// whether the health endpoint answers.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the current state of the observability stack",
	Long: `Probes each enabled service's port range and reports which port is bound,
the owning process, and whether the service's health endpoint answers.
No processes are launched and nothing is modified.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	logLevel := logging.LevelWarn
	if statusDebug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry := ports.NewSystemRegistry()
	prober := health.NewNetProber()

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tPORT\tOWNER\tHEALTH")

	for _, def := range cfg.Services {
		if !def.Enabled {
			continue
		}
		port, owner, found := findBoundPort(cmd.Context(), registry, def)
		if !found {
			fmt.Fprintf(w, "%s\t-\t-\tnot running\n", def.Name)
			continue
		}

		ownerLabel := "unknown"
		if owner.Name != "" {
			ownerLabel = fmt.Sprintf("%s (pid %d)", owner.Name, owner.PID)
		}

		probeCtx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		check := health.Check{Path: def.Health.Path, AcceptedStatusCodes: def.Health.AcceptedStatusCodes}
		healthLabel := "healthy"
		if err := prober.Probe(probeCtx, supervisor.Host, port, check); err != nil {
			healthLabel = fmt.Sprintf("unhealthy (%v)", err)
		}
		cancel()

		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", def.Name, port, ownerLabel, healthLabel)
	}
	w.Flush()
	fmt.Print(sb.String())
	return nil
}

// findBoundPort returns the first bound port in the service's range,
// preferring one owned by an expected process.
func findBoundPort(ctx context.Context, registry ports.Registry, def config.ServiceDefinition) (int, ports.Owner, bool) {
	var fallbackPort int
	var fallbackOwner ports.Owner
	var haveFallback bool

	for _, port := range def.PortRange {
		if !registry.IsBound(ctx, port) {
			continue
		}
		owner, known := registry.OwnerOf(ctx, port)
		if known && ports.MatchesOwner(owner, def.ExpectedOwnerNames) {
			return port, owner, true
		}
		if !haveFallback {
			fallbackPort, fallbackOwner, haveFallback = port, owner, true
		}
	}
	return fallbackPort, fallbackOwner, haveFallback
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusDebug, "debug", false, "Enable debug logging")
}
