//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/sandman/jailer/logger"
	"github.com/sandman/jailer/options"
	"github.com/sandman/jailer/sandbox"
)

func logLevelForVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func main() {
	config, err := options.ParseCli(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing error:", err)
		os.Exit(1)
	} else if config == nil {
		os.Exit(0)
	}

	log := logger.CreateLogger(&logger.LoggerOpts{
		LogLevel:  logLevelForVerbosity(config.VerboseLevel),
		LogFormat: logger.LogText,
	}).With(slog.String("run_id", uuid.New().String()))

	log.Info("starting", slog.String("mode", config.Mode.String()), slog.Int("box_id", config.BoxID), slog.Int("process_id", config.ProcessID))

	jailer := sandbox.NewJailer(config)
	code := jailer.Dispatch()
	if code != 0 {
		log.Error("sandbox operation failed", slog.Int("exit_code", code))
	}

	os.Exit(code)
}
