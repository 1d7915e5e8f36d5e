package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"actpath-backend/internal/config"
	"actpath-backend/internal/db"
	"actpath-backend/utilities"
)

const version = "1.0.0"

// rootOptions holds global flags and what PersistentPreRunE loads.
type rootOptions struct {
	ConfigPath string

	cfg      *config.APIConfig
	logClose io.Closer
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "actpath",
		Short:         "ACT Path clinical backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load XML configuration from file.
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.cfg = cfg

			closer, err := utilities.SetupLogging(cfg.Logging)
			if err != nil {
				return err
			}
			opts.logClose = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logClose != nil {
				return opts.logClose.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.xml", "path to the XML configuration")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))

	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDB(opts.cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			if err := db.Migrate(gdb); err != nil {
				return err
			}
			log.Info().Str("driver", opts.cfg.DB.Driver).Msg("migrations applied")
			return nil
		},
	}
}

// openDB connects with a gorm log level that follows the configured one.
func openDB(cfg *config.APIConfig) (*gorm.DB, error) {
	level := logger.Warn
	if strings.EqualFold(cfg.Logging.Level, "debug") || strings.EqualFold(cfg.Logging.Level, "trace") {
		level = logger.Info
	}
	gdb, err := db.Open(cfg.DB, level)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("database connected")
	return gdb, nil
}
