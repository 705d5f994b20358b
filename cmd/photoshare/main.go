package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ssd-technologies/photoshare/internal/app"
	"github.com/ssd-technologies/photoshare/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, dataDir, logLevel string
	var port int

	flagSet := pflag.NewFlagSet("photoshare", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file (default: $PHOTOSHARE_CONFIG)")
	flagSet.IntVarP(&port, "port", "p", 0, "port to listen on (overrides config and $PORT)")
	flagSet.StringVar(&dataDir, "data-dir", "", "directory for the database and uploads")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := a.Server()
	srv.StartWorkers(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("photoshare listening", "addr", httpServer.Addr, "driver", a.DB.Driver(), "uploads", a.Files.Root())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
