package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/druidgo/druid-boot/internal/autoconfigure"
	"github.com/druidgo/druid-boot/internal/server"
)

// newLogger builds the process logger from logging.level and logging.format.
// --dev forces debug level.
func newLogger(w io.Writer, v *viper.Viper, dev bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if s := v.GetString("logging.level"); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := strings.ToLower(v.GetString("logging.format")); format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging.format: unsupported format %q", format)
	}
}

// serverConfig reads the server.* settings over the defaults.
func serverConfig(v *viper.Viper) (server.Config, error) {
	cfg := server.DefaultConfig()
	if v.IsSet("server.host") {
		cfg.Host = v.GetString("server.host")
	}
	if v.IsSet("server.port") {
		port, err := cast.ToIntE(v.Get("server.port"))
		if err != nil {
			return cfg, fmt.Errorf("server.port: %w", err)
		}
		cfg.Port = port
	}
	if v.IsSet("server.shutdown_timeout") {
		d, err := parseDuration(v.Get("server.shutdown_timeout"))
		if err != nil {
			return cfg, fmt.Errorf("server.shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if v.IsSet("server.cors.origins") {
		origins, err := cast.ToStringSliceE(v.Get("server.cors.origins"))
		if err != nil {
			return cfg, fmt.Errorf("server.cors.origins: %w", err)
		}
		cfg.CORSOrigins = origins
	}
	return cfg, nil
}

// parseDuration accepts a Go duration string ("30s") or a bare number of
// seconds.
func parseDuration(raw any) (time.Duration, error) {
	if s, ok := raw.(string); ok {
		if secs, err := cast.ToInt64E(s); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(s)
	}
	secs, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// configure runs the auto-configuration against the global viper instance.
func configure(ctx context.Context, logger *slog.Logger) (*autoconfigure.Result, error) {
	ac := autoconfigure.New(viper.GetViper(),
		autoconfigure.WithLogger(logger),
		autoconfigure.WithVersion(versionString()),
	)
	return ac.Configure(ctx)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
