package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "obsctl",
	Short: "Bootstrap the local observability stack",
	Long: `obsctl brings up the local observability stack: the Prometheus metrics
server, the VictoriaMetrics time-series database, the Grafana dashboard
server and the first-party obsd dashboard service. Each service is located
on disk, assigned a free port, launched detached, and verified healthy.
Re-running obsctl against an already-healthy stack launches nothing: services
that are bound to their port and owned by the expected process are adopted
as-is.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid overrides, failed bootstraps)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "obsctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
