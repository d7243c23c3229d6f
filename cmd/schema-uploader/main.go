package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dd0wney/cluso-schema-uploader/pkg/bloodhound"
	"github.com/dd0wney/cluso-schema-uploader/pkg/config"
	"github.com/dd0wney/cluso-schema-uploader/pkg/logging"
	"github.com/dd0wney/cluso-schema-uploader/pkg/uploader"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run holds the whole process logic so tests can drive it with their own
// arguments and capture the exit code.
func run(args []string, stderr io.Writer) (code int) {
	cfg, done, err := config.Parse(args, stderr)
	if err != nil {
		var usageErr *config.UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(stderr, "schema-uploader:", usageErr.Message)
			return exitUsage
		}
		fmt.Fprintln(stderr, "schema-uploader:", err)
		return exitUsage
	}
	if done {
		return exitOK
	}

	logger := newLogger(cfg, stderr)

	// Truly unexpected failures still produce a log line and exit 1
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unexpected error", logging.Any("panic", r))
			code = exitFailure
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := bloodhound.NewClient(cfg.ServerURL, cfg.Timeout, logger)
	driver := uploader.New(client, cfg, logger)

	if err := driver.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Warn("Operation cancelled by user")
		}
		return exitFailure
	}
	return exitOK
}

func newLogger(cfg *config.Config, out io.Writer) logging.Logger {
	level := logging.InfoLevel
	if cfg.Verbose {
		level = logging.DebugLevel
	}
	if cfg.LogFormat == "json" {
		return logging.NewJSONLogger(out, level)
	}
	return logging.NewTextLogger(out, level)
}
