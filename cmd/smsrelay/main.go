package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/daemon"
	"github.com/Fullex26/smsrelay/internal/logging"
	"github.com/Fullex26/smsrelay/internal/pipeline"
	"github.com/Fullex26/smsrelay/internal/setup"
	"github.com/Fullex26/smsrelay/internal/store"
)

var (
	cfgPath   string
	logLevel  string
	logFormat string
)

func main() {
	root := &cobra.Command{
		Use:   "smsrelay",
		Short: "💬 SMSRelay — forwards intercepted SMS to Gotify and keyword-matched webhooks",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(os.Stderr, logFormat, logging.ParseLevel(logLevel))
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultConfigPath, "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(
		runCmd(),
		processCmd(),
		statusCmd(),
		testCmd(),
		setupCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the SMSRelay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return fmt.Errorf("initializing daemon: %w", err)
			}

			return d.Run()
		},
	}
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process [file|-]",
		Short: "Forward one SMS payload read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		// outcomes are reported through notifications; exit status carries the rest
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return fmt.Errorf("initializing daemon: %w", err)
			}
			defer d.Close()

			res := d.Process(raw)
			if res.State == pipeline.StateAborted {
				return res.Err
			}
			return nil
		},
	}
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show forwarding activity from the last 24 hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := store.DefaultDBPath
			if cfg, err := config.Load(cfgPath); err == nil {
				dbPath = cfg.Store.Path
			}

			db, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			counts, err := db.GetRunCounts(24)
			if err != nil {
				return err
			}
			stats, err := db.GetSinkStats(24)
			if err != nil {
				return err
			}
			lastRun, _ := db.GetLastRunTime()

			fmt.Println("💬 SMSRelay Status")
			fmt.Println("─────────────────────────")
			fmt.Printf("  Runs (24h):    %d completed, %d aborted\n",
				counts[pipeline.StateCompleted.String()], counts[pipeline.StateAborted.String()])
			fmt.Printf("  Last run:      %s\n", lastRun)
			fmt.Println()

			if len(stats) == 0 {
				fmt.Println("  No deliveries in last 24 hours")
				return nil
			}
			fmt.Println("  Deliveries:")
			for _, s := range stats {
				fmt.Printf("    %-14s ✅ %d  ❌ %d\n", s.Sink, s.Delivered, s.Failed)
			}
			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a test message through every sink and notification channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Primary.Token == "" {
				return errors.New("primary token is empty, run 'smsrelay setup' first")
			}

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			fmt.Println("💬 Sending test messages...")
			if err := d.TestSinks(); err != nil {
				return err
			}
			fmt.Println("✅ Test messages sent!")
			return nil
		},
	}
}

func setupCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cfgPath, envPath)
		},
	}
	cmd.Flags().StringVar(&envPath, "env-file", setup.DefaultEnvPath, "path to env file for credentials")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("SMSRelay v%s\nhttps://github.com/Fullex26/smsrelay\n", daemon.Version)
		},
	}
}
