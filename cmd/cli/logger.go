package cli

import (
	"log/slog"
	"os"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
)

var (
	logger *slog.Logger
)

func init() {
	logger = sloger.With("pkg", "cli")
}

// AppLogger, this is the custom application logger for uniformity
func AppLogger(appConfig appconfig.AppConfig) *slog.Logger {

	// Configure debug on if needed, otherwise should be off
	opts := &slog.HandlerOptions{
		AddSource: true,
	} // .opts

	if appConfig.LoggerDebugOn {
		opts.Level = slog.LevelDebug

	} // .if

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))

	appLogger := logger.With(
		slog.Group("app_info",
			slog.String("System", "DEX"),
			slog.String("Product", "PROCESSING STATUS"),
			slog.String("App", "REPORT SINK"),
			slog.String("Env", appConfig.Environment),
		)) // .appLogger

	return appLogger
} // .AppLogger
