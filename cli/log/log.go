package log

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/gammadia/flotilla/cli/config"
)

// Base is a bare logger without attributes
var Base = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init configures Base from the log flags. Logs are written to w, never to stdout.
func Init(v *viper.Viper, w io.Writer) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(v.GetString(config.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	options := slog.HandlerOptions{
		AddSource: v.GetBool(config.LogSource),
		Level:     logLevel,
	}

	switch format := v.GetString(config.LogFormat); format {
	case "json":
		Base = slog.New(slog.NewJSONHandler(w, &options))
	case "text":
		Base = slog.New(slog.NewTextHandler(w, &options))
	default:
		return fmt.Errorf("unknown log format '%s'", format)
	}

	slog.SetDefault(Base)
	return nil
}

// With returns a logger for one component of the CLI.
func With(component string) *slog.Logger {
	return Base.With("component", component)
}
