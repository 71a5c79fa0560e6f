package tilereplay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/image"
	"github.com/gogpu/tilereplay/trace"
)

// Result describes a completed replay.
type Result struct {
	// RunID identifies the run in logs.
	RunID uuid.UUID

	// Stats summarizes the replayed trace.
	Stats trace.Stats

	// Draws lists the launched draw calls.
	Draws []DrawStats

	// Counters sums the launched draw calls.
	Counters Counters

	// Mismatches is the number of pixels differing from the reference,
	// or 0 when no reference was given.
	Mismatches int

	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration
}

// Run loads the trace named by cfg, replays it on the configured device,
// saves the output image and compares it with the reference.
//
// The returned error wraps one of the package sentinels; a reference
// mismatch is reported as a *MismatchError together with the Result.
// The device is closed before Run returns.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	begin := time.Now()
	res := &Result{RunID: uuid.New()}
	log := Logger().With("run", res.RunID.String())

	tr, err := trace.Load(cfg.Trace)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	res.Stats = tr.Stats()
	log.Info("trace loaded", "path", cfg.Trace, "stats", res.Stats)

	dev, err := device.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	rc, err := NewRenderContext(dev, cfg)
	if err != nil {
		return nil, err
	}
	rc.log = log
	rc.bufs.log = log
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			log.Warn("teardown", "err", cerr)
		}
	}()

	res.Draws, err = rc.Replay(ctx, tr)
	res.Counters = rc.Counters()
	if err != nil {
		return res, err
	}

	if cfg.Output != NullOutput {
		if err := rc.Save(cfg.Output); err != nil {
			return res, err
		}
	}
	res.Elapsed = time.Since(begin)
	log.Info("replay done", "counters", res.Counters, "elapsed", res.Elapsed)

	if cfg.Reference == "" {
		return res, nil
	}
	n, err := image.CompareImages(cfg.Output, cfg.Reference, image.FormatA8R8G8B8)
	if err != nil {
		return res, fmt.Errorf("%w: compare with %s: %w", ErrConfig, cfg.Reference, err)
	}
	res.Mismatches = n
	if n > 0 {
		log.Warn("output differs from reference", "reference", cfg.Reference, "pixels", n)
		return res, &MismatchError{Reference: cfg.Reference, Count: n}
	}
	log.Info("output matches reference", "reference", cfg.Reference)
	return res, nil
}
