package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"edgelogd/internal/app"
	"edgelogd/internal/config"
	"edgelogd/internal/journal"
	"edgelogd/internal/logger"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "edgelogd",
	Short: "Collect log files from edge hosts into a local archive",
	Long: `A polling collector that moves log files from edge hosts into a local archive and a
date-bucketed backup tree. Every remote file carries its own checkpoint in its name,
so an interrupted transfer resumes where it stopped on the next cycle.`,
	RunE: runCollector,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the transfer journal",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries, optionally filtered by outcome",
	RunE:  runJournalList,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "edgelogd.yaml", "config file")

	config.RegisterFlags(rootCmd.Flags())

	journalListCmd.Flags().String("db", "", "Journal database file (default is the configured journal)")
	journalListCmd.Flags().String("outcome", "", "Only show entries with this outcome (done/skipped/failed_df/failed_rf/commit_failed)")
	journalCmd.AddCommand(journalListCmd)
	rootCmd.AddCommand(journalCmd)
}

func runCollector(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create application
	poller, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, finishing the current file...")
		cancel()
	}()

	err = poller.Run(ctx)

	if closeErr := poller.Close(); closeErr != nil {
		log.Error("Error closing poller", zap.Error(closeErr))
	}

	return err
}

func runJournalList(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	outcome, _ := cmd.Flags().GetString("outcome")

	if dbPath == "" {
		c, err := config.Load(configFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dbPath = c.Journal
	}
	if dbPath == "" {
		return fmt.Errorf("no journal configured, pass --db")
	}

	store, err := journal.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	entries, err := store.List(outcome)
	if err != nil {
		return fmt.Errorf("failed to list journal: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tFOLDER\tFILE\tOUTCOME\tSTAGE\tSIZE\tATTEMPTS\tUPDATED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Host, e.Folder, e.RemoteName, e.Outcome, e.Stage,
			humanize.IBytes(uint64(e.Bytes)), e.Attempts, humanize.Time(e.UpdatedAt), e.LastError)
	}
	return w.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
