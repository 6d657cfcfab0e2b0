// Command omnifsd serves the omnifs HTTP API over a set of configured
// storage backends.
//
//	omnifsd --config backends.yaml --listen-addr :8080
//	omnifsd memory://scratch
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

	"github.com/urfave/cli/v2"

	"github.com/omnifs/omnifs"
	"github.com/omnifs/omnifs/config"
	"github.com/omnifs/omnifs/httpserver"

	// Registered backend schemes.
	_ "github.com/omnifs/omnifs/backend/file"
	_ "github.com/omnifs/omnifs/backend/memory"
	_ "github.com/omnifs/omnifs/backend/s3"
	_ "github.com/omnifs/omnifs/backend/sftp"
)

func main() {
	app := &cli.App{
		Name:      "omnifsd",
		Usage:     "multi-backend file storage HTTP daemon",
		ArgsUsage: "[backend-url]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen-addr",
				Value:   ":8080",
				Usage:   "HTTP listen address",
				EnvVars: []string{"OMNIFS_LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "backend configuration file (YAML or JSON)",
				EnvVars: []string{"OMNIFS_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "emit JSON logs",
			},
			&cli.BoolFlag{
				Name:  "log-debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := newLogger(c.Bool("log-json"), c.Bool("log-debug"))

	reg := omnifs.NewRegistry(omnifs.WithLogger(logger))
	defer func() { _ = reg.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := registerBackends(ctx, c, reg); err != nil {
		return err
	}
	if reg.DefaultName() == "" {
		return errors.New("no backends configured: pass --config or a backend URL")
	}

	disp := omnifs.NewDispatcher(reg, omnifs.WithDispatcherLogger(logger))
	api := httpserver.New(disp, httpserver.WithLogger(logger))

	srv := &http.Server{
		Addr:              c.String("listen-addr"),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// registerBackends populates the registry from the config file, the legacy
// positional URL, or both. Positional registration happens after the file
// so a name clash on "default" surfaces as ErrNameConflict.
func registerBackends(ctx context.Context, c *cli.Context, reg *omnifs.Registry) error {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Apply(ctx, reg); err != nil {
			return err
		}
	}

	if rawURL := c.Args().First(); rawURL != "" {
		err := reg.Register(ctx, omnifs.Descriptor{
			Name:        "default",
			URL:         rawURL,
			Description: "backend from command line",
		}, omnifs.SetAsDefault())
		if err != nil {
			return err
		}
	}

	return nil
}

func newLogger(jsonOutput, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
