// Package debug controls verbose diagnostic logging. The --debug flag
// stores the setting in the context; OHC_DEBUG=1 works as an
// environment fallback for scripts that cannot pass flags.
package debug

import (
	"context"
	"log/slog"
	"os"
)

type debugKey struct{}

// WithDebug stores the debug setting in the context.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, debugKey{}, enabled)
}

// IsEnabled reports whether debug mode is on, either via the context or
// the OHC_DEBUG environment variable.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(debugKey{}).(bool); ok {
		return v
	}
	return envEnabled()
}

func envEnabled() bool {
	v := os.Getenv("OHC_DEBUG")
	return v != "" && v != "0"
}

// SetupLogger installs the process-wide slog handler on stderr.
// Debug mode lowers the level to Debug; otherwise only warnings and
// errors are emitted so command output stays clean.
func SetupLogger(debugEnabled bool) {
	level := slog.LevelWarn
	if debugEnabled {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
