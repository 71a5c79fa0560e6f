// Command tilereplay replays a draw call trace on a tile GPU device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"

	"github.com/gogpu/tilereplay"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tilereplay", flag.ExitOnError)
	opts := newOptions(fs)
	_ = fs.Parse(args)

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "tilereplay",
	})
	if opts.verbose {
		logger.SetLevel(log.DebugLevel)
	}
	tilereplay.SetLogger(slog.New(logger))

	cfg, err := opts.config(fs)
	if err != nil {
		logger.Error("load config", "err", err)
		return tilereplay.ExitCode(err)
	}
	cfg.Perf = os.Stdout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := replay(ctx, cfg, logger)
	if !opts.watch {
		return code
	}
	w, err := newWatcher(cfg)
	if err != nil {
		logger.Error("watch", "err", err)
		return 1
	}
	defer w.Close()
	logger.Info("watching for changes", "trace", cfg.Trace, "kernel", cfg.Kernel)
	w.loop(ctx, logger, func() { replay(ctx, cfg, logger) })
	return code
}

// replay runs cfg once and reports the outcome.
func replay(ctx context.Context, cfg tilereplay.Config, logger *log.Logger) int {
	res, err := tilereplay.Run(ctx, cfg)
	if res != nil {
		if rerr := res.Counters.Report(os.Stdout, language.English); rerr != nil {
			logger.Warn("report", "err", rerr)
		}
	}
	var mismatch *tilereplay.MismatchError
	switch {
	case err == nil:
		if cfg.Reference != "" {
			fmt.Println("PASSED!")
		}
	case errors.As(err, &mismatch):
		fmt.Printf("FAILED! %d errors\n", mismatch.Count)
	default:
		logger.Error("replay failed", "err", err)
	}
	return tilereplay.ExitCode(err)
}
