// optionyield ranks Euronext Amsterdam stock options by time-value yield.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seenimoa/optionyield/internal/config"
	"github.com/seenimoa/optionyield/internal/logging"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and log sink
var (
	cfg       *config.Config
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "optionyield",
	Short: "Rank Euronext Amsterdam stock options by time-value yield",
	Long: `optionyield downloads the Euronext Amsterdam stock option catalog, fetches
every option chain in parallel, and ranks calls and puts by the time value
they pay relative to the spot price and to the trading days left.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		logCloser, err = logging.Init(cfg.Logging, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to init logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(instrumentsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("optionyield %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Instruments Command ---

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List the eligible option instruments",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, slog.Default())
		if err != nil {
			return err
		}
		instruments, err := a.service.Instruments(cmd.Context())
		if err != nil {
			return err
		}
		printInstruments(os.Stdout, instruments)
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show market status and effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  optionyield — Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (AMS):    %s\n", utils.FormatDateTimeAMS(utils.NowAMS()))
		fmt.Printf("  API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  Configuration:")
		for _, s := range config.Describe(cfg) {
			fmt.Printf("    %-32s %-40s (%s)\n", s.Key, s.Value, s.Source)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
