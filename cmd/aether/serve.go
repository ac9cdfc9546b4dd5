package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/aether/internal/config"
	"github.com/michaelbrown/aether/internal/logging"
	"github.com/michaelbrown/aether/internal/sandbox"
	"github.com/michaelbrown/aether/internal/server"
	"github.com/michaelbrown/aether/internal/storage"
	"github.com/michaelbrown/aether/internal/storage/sqlite"
)

var (
	portFlag int
	devFlag  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AETHER gateway",
	Long: `Start the AETHER HTTP gateway.

The gateway needs a master key (AETHER_MASTER_KEY) that clients send in the
x-api-key header, and an E2B API key (E2B_API_KEY) for creating sandboxes.
--dev accepts the public development key sk_aether_dev_123 when no master key
is configured. Never use it on a reachable host.

Examples:
  aether serve
  aether serve --port 9090
  aether serve --dev`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&devFlag, "dev", false, "Allow the public development master key")
	rootCmd.AddCommand(serveCmd)
}

// gateway holds what every entry point needs.
type gateway struct {
	cfg      *config.Config
	logger   zerolog.Logger
	provider sandbox.Provider
	store    storage.Store // nil when history is disabled
}

func (gw *gateway) Close() {
	if gw.store != nil {
		gw.store.Close()
	}
}

// newGateway validates cfg and builds the logger, sandbox provider and
// optional history store. auth is false for local transports that have no
// callers to authenticate.
func newGateway(cfg *config.Config, auth, dev bool) (*gateway, error) {
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	validate := cfg.ValidateSandbox
	if auth {
		if dev && cfg.Auth.MasterKey == "" {
			cfg.Auth.MasterKey = config.DevMasterKey
		}
		if cfg.UsesDevKey() {
			if !dev {
				return nil, errors.New("the development master key is only accepted with --dev")
			}
			logger.Warn().Msg("Using the public development master key; do not expose this gateway")
		}
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.E2B.Debug {
		logger.Warn().Msg("E2B debug mode: executing against a local sandbox at localhost:49999")
	}

	provider, err := sandbox.NewE2B(cfg.E2BOptions())
	if err != nil {
		return nil, err
	}
	gw := &gateway{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
	}

	if cfg.History.Enabled {
		store, err := sqlite.Open(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		gw.store = store
		logger.Info().Str("db", cfg.History.DBPath).Msg("Execution history enabled")
	}

	return gw, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg, true, devFlag)
	if err != nil {
		return err
	}
	defer gw.Close()

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, gw.provider, gw.store, gw.logger)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			gw.logger.Error().Err(err).Msg("Shutdown incomplete")
		}
		close(done)
	}()

	if err := srv.Start(cfg.Server.Host, port); err != nil {
		return err
	}
	<-done
	return nil
}
