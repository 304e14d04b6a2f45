package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snapwatch/internal/app"
	"snapwatch/internal/config"
	"snapwatch/internal/logger"
	"snapwatch/internal/repository/sqlite"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "snapwatch",
		Short:         "Periodic camera change monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(configPath)
			if err != nil {
				return err
			}

			log, err := logger.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.NewApp(ctx, cfg, log)
			if err != nil {
				log.Error("Startup failed: %v", err)
				return err
			}
			defer application.Close()

			if err := application.Run(ctx); err != nil {
				log.Error("Stopped: %v", err)
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (env "+config.ConfigFileEnv+")")
	cmd.AddCommand(indexCmd(&configPath), checkCmd(&configPath))
	return cmd
}

func indexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Back-fill the capture journal from the local capture directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.DatabasePath == "" {
				return fmt.Errorf("capture journal disabled (DB_PATH is empty)")
			}

			db, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			log := logger.NewWriterLogger(out, cmd.ErrOrStderr())

			fmt.Fprintf(out, "Indexing captures from %s into %s\n", cfg.LocalCaptureDir, cfg.DatabasePath)
			result, err := app.IndexCaptures(cfg.LocalCaptureDir, sqlite.NewCaptureRepository(db), log)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "✅ Indexed %d captures (%d already journaled)\n", result.Inserted, result.Existing)
			if result.Skipped > 0 {
				fmt.Fprintf(out, "⚠️  Skipped %d files (invalid name or errors)\n", result.Skipped)
			}
			return nil
		},
	}
}

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, storage destination and clock skew",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(*configPath)
			if err != nil {
				return err
			}
			log := logger.NewWriterLogger(cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err := app.Check(cmd.Context(), cfg, log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Configuration OK")
			return nil
		},
	}
}

func loadValidConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
