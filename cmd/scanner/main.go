package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eventgate/internal/checkpoint/models"
	"eventgate/internal/platform/logger"
	"eventgate/internal/scanner"
	"eventgate/internal/scanner/client"
	"eventgate/internal/scanner/terminal"
)

type options struct {
	server        string
	station       string
	token         string
	logLevel      string
	width         int
	debounce      time.Duration
	successDelay  time.Duration
	decisionDelay time.Duration
	lookupTimeout time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "scanner",
		Short: "Terminal scanner for entry and prasad stations",
		Long: `Run a scan station against an eventgate server.

Each line read from stdin is treated as a scanned QR payload. Type "y" to
confirm an allowed decision, "x" to close the current decision and "q" to quit.

Example:
  scanner --server http://localhost:8080 --station entryGate --token $EVENTGATE_TOKEN
  scanner --station prasad2 < scans.txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScanner(ctx, opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.server, "server", envOr("EVENTGATE_SERVER", "http://localhost:8080"), "gateway base URL")
	f.StringVar(&opts.station, "station", "", "checkpoint this device serves (entryGate or a prasad id)")
	f.StringVar(&opts.token, "token", os.Getenv("EVENTGATE_TOKEN"), "staff bearer token from /api/login")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	f.IntVar(&opts.width, "width", 0, "frame width in columns")
	f.DurationVar(&opts.debounce, "debounce", scanner.DefaultDebounce, "minimum gap between accepted scans")
	f.DurationVar(&opts.successDelay, "success-delay", scanner.DefaultSuccessDelay, "how long SUCCESS stays on screen (1.5s..4s)")
	f.DurationVar(&opts.decisionDelay, "decision-delay", scanner.DefaultDecisionDelay, "how long a rejection stays on screen")
	f.DurationVar(&opts.lookupTimeout, "lookup-timeout", scanner.DefaultLookupTimeout, "profile and status lookup timeout")
	_ = cmd.MarkFlagRequired("station")

	return cmd
}

func runScanner(ctx context.Context, opts *options, cmd *cobra.Command) error {
	log := logger.NewWithWriter(cmd.ErrOrStderr(), opts.logLevel)
	if opts.token == "" {
		return errors.New("a staff token is required (--token or EVENTGATE_TOKEN)")
	}

	gateway := client.New(opts.server,
		client.WithBearerToken(opts.token),
		client.WithLogger(log),
	)

	station := models.CheckpointID(opts.station)
	if err := checkStation(ctx, gateway, station); err != nil {
		return err
	}

	ctrl := scanner.NewController(station, gateway, terminal.New(cmd.OutOrStdout(), opts.width),
		scanner.WithDebounce(opts.debounce),
		scanner.WithSuccessDelay(opts.successDelay),
		scanner.WithDecisionDelay(opts.decisionDelay),
		scanner.WithLookupTimeout(opts.lookupTimeout),
		scanner.WithLogger(log),
	)
	log.Info("scanner ready", "server", opts.server, "station", station)
	return runSession(ctx, ctrl, cmd.InOrStdin(), cmd.ErrOrStderr())
}

type checkpointLister interface {
	Checkpoints(ctx context.Context) ([]models.CheckpointID, error)
}

// checkStation rejects stations the server does not know about.
func checkStation(ctx context.Context, lister checkpointLister, station models.CheckpointID) error {
	if station.IsEntryGate() {
		return nil
	}
	ids, err := lister.Checkpoints(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	if !slices.Contains(ids, station) {
		return fmt.Errorf("unknown station %q, server offers %v", station, ids)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
