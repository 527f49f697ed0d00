// PulseFlow - durable client-side analytics pipeline.
// Queues events locally, sanitizes them, and ships batches to an ingestion
// endpoint with retry and circuit breaking.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	endpointFlag string
	modeFlag     string
	storageFlag  string
	taxonomyFlag string
	watchFlag    bool
	batchFlag    int
	verbose      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pulseflow",
	Short: "PulseFlow - durable analytics event pipeline",
	Long: `PulseFlow queues analytics events in durable local storage and delivers
them in batches to an ingestion endpoint. Delivery survives restarts,
backs off exponentially on failure, and stops hammering a dead endpoint
through a circuit breaker. In privacy mode every event is scrubbed
against the taxonomy allowlist before it leaves the machine.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background pipeline until interrupted",
	Long: `Start the flush and maintenance loops and block until SIGINT/SIGTERM.
Events are read from the durable queue left by previous sessions.`,
	RunE: runRun,
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Send one batch from the head of the queue",
	RunE:  runFlush,
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Flush repeatedly until the queue is empty",
	RunE:  runDrain,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth, retry distribution, and breaker state",
	RunE:  runStats,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue management commands",
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all queued events",
	RunE:  runQueueClear,
}

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Taxonomy management commands",
}

var taxonomyCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a taxonomy file and list its events",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTaxonomyCheck,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "Ingestion endpoint URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "Payload mode: default or privacy (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storageFlag, "storage", "", "Queue backend: memory, file, or redis (overrides config)")
	rootCmd.PersistentFlags().StringVar(&taxonomyFlag, "taxonomy", "", "Taxonomy file path (overrides config)")

	runCmd.Flags().BoolVar(&watchFlag, "watch", false, "Hot-reload the taxonomy file on change")
	drainCmd.Flags().IntVar(&batchFlag, "batch-size", 0, "Events per request (overrides config)")
	flushCmd.Flags().IntVar(&batchFlag, "batch-size", 0, "Events per request (overrides config)")

	queueCmd.AddCommand(queueClearCmd)
	taxonomyCmd.AddCommand(taxonomyCheckCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(taxonomyCmd)
}
