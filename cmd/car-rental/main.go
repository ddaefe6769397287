// Command car-rental is the terminal client of the car-rental service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/config"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

var (
	// Global flags
	verbose   bool
	ephemeral bool

	app *Application
)

var rootCmd = &cobra.Command{
	Use:   "car-rental",
	Short: "Browse, book and pay for rental cars from the terminal",
	Long: `car-rental talks to the car-rental API. The session token, cached
profile, booking ledger and downloaded contracts are kept in an encrypted
local store (STORE_ENCRYPTION_KEY, APP_ENCRYPTION_KEY).

Run without arguments to start the interactive shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := os.Getenv("LOG_LEVEL")
		if verbose {
			level = "debug"
		}

		var (
			cfg *config.Config
			err error
		)
		if ephemeral {
			cfg, err = config.LoadEphemeral()
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if level == "" {
			level = cfg.LogLevel
		}

		log, err := logging.New(level, cfg.IsProduction())
		if err != nil {
			return err
		}

		ui := newTerminal(os.Stdin, cmd.OutOrStdout())
		app, err = initializeApplication(cfg, ui, log, ephemeral)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		status := app.session.CheckAuth(cmd.Context())
		log.Debug("session restored", zap.Stringer("status", status))
		// Only commands other than the shell print navigation hints.
		ui.setHints(cmd != shellCmd && cmd != cmd.Root())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.cleanup()
			app.log.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.runShell(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep nothing on disk; the session ends with the process")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errors.UserMessage(err))
		if app != nil {
			app.log.Debug("command failed", zap.Error(err))
			app.cleanup()
		}
		stop()
		os.Exit(1)
	}
}
