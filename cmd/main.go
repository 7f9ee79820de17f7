package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/cmd/cli"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/serverdex"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
	"github.com/joho/godotenv"
) // .import

const (
	appMainExitCode = 1
	shutdownTimeout = 30 * time.Second
)

var (
	appConfig appconfig.AppConfig
	logger    *slog.Logger
)

// NOTE: this large init file may be an antipattern.
// A main reason for it is to enable to cross cutting logging aspect.
// If another way is found to manage that this should be moved to main.
func init() {
	ctx := context.Background()

	buildInfo, _ := debug.ReadBuildInfo()
	logInfo := []any{"buildInfo.Main.Path", buildInfo.Main.Path}
	// ------------------------------------------------------------------
	// parse and load cli flags
	// ------------------------------------------------------------------
	if !testing.Testing() {
		if err := cli.ParseFlags(); err != nil {
			slog.Error("error starting app, error parsing cli flags", "error", err)
			os.Exit(appMainExitCode)
		} // .if
	}

	if cli.Flags.AppConfigPath != "" {
		slog.Info("Loading environment from", "file", cli.Flags.AppConfigPath)
		if err := godotenv.Load(cli.Flags.AppConfigPath); err != nil {
			slog.Error("error loading local configuration", "error", err)
			os.Exit(appMainExitCode)
		} // .if
	}

	// ------------------------------------------------------------------
	// parse and load config from os exported
	// ------------------------------------------------------------------
	var err error
	appConfig, err = appconfig.ParseConfig(ctx)
	if err != nil {
		slog.Error("error starting app, error parsing app config", "error", err)
		os.Exit(appMainExitCode)
	} // .if

	// ------------------------------------------------------------------
	// configure app custom logging
	// ------------------------------------------------------------------
	logInfo = append(logInfo, "pkg", "main", "runMode", cli.Flags.RunMode)
	logger = cli.AppLogger(appConfig).With(logInfo...)
	sloger.SetDefaultLogger(logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting app")

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdownTracing, err := cli.InitTracerProvider(ctx)
		if err != nil {
			logger.Error("error starting app, error initializing tracing", "error", err)
			os.Exit(appMainExitCode)
		}
		defer shutdownTracing(context.WithoutCancel(ctx))
	}

	sink, err := cli.Serve(ctx, appConfig)
	if err != nil {
		logger.Error("error starting app, error initialize report sink", "error", err)
		os.Exit(appMainExitCode)
	}
	defer sink.Close()

	logger.Info("report sink ready")
	// ------------------------------------------------------------------
	// create dex server, serves health, metrics and report queries
	// ------------------------------------------------------------------
	serverDex, err := serverdex.New(appConfig, sink.Handler)
	if err != nil {
		logger.Error("error starting app, error initialize dex server", "error", err)
		os.Exit(appMainExitCode)
	} // .if

	httpServer := serverDex.HttpServer()

	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("error starting app, error starting http server", "error", err, "port", appConfig.ServerPort)
			os.Exit(appMainExitCode)
		} // .if
	}() // .go

	logger.Info("started http server", "port", appConfig.ServerPort)

	// ------------------------------------------------------------------
	// 	Consume until signalled, then drain in-flight messages
	// ------------------------------------------------------------------
	if err := sink.Run(ctx); err != nil {
		logger.Error("listener stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	logger.Info("closing server by os signal", "port", appConfig.ServerPort)
} // .main
