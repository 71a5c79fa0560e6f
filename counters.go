package tilereplay

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Counters accumulates device performance counters over a run.
type Counters struct {
	// Draws is the number of launched draw calls.
	Draws int

	// Instrs and Cycles sum the MINSTRET and MCYCLE counters of every launch.
	Instrs uint64
	Cycles uint64

	// Elapsed is the host time spent in launched draw calls.
	Elapsed time.Duration
}

// IPC returns instructions per cycle, or 0 before any cycle is counted.
func (c Counters) IPC() float64 {
	if c.Cycles == 0 {
		return 0
	}
	return float64(c.Instrs) / float64(c.Cycles)
}

func (c *Counters) add(d DrawStats) {
	c.Draws++
	c.Instrs += d.Instrs
	c.Cycles += d.Cycles
	c.Elapsed += d.Elapsed
}

// Report writes a human-readable summary using the number formatting of tag.
func (c Counters) Report(w io.Writer, tag language.Tag) error {
	p := message.NewPrinter(tag)
	_, err := p.Fprintf(w, "draw calls: %d\ninstructions: %d\ncycles: %d\nIPC: %.3f\nelapsed: %v\n",
		c.Draws, c.Instrs, c.Cycles, c.IPC(), c.Elapsed.Round(time.Microsecond))
	return err
}

// LogValue implements slog.LogValuer.
func (c Counters) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("draws", c.Draws),
		slog.Uint64("instrs", c.Instrs),
		slog.Uint64("cycles", c.Cycles),
		slog.Float64("ipc", c.IPC()),
		slog.Duration("elapsed", c.Elapsed),
	)
}

// DrawStats describes one launched draw call.
type DrawStats struct {
	Index   int
	Tiles   int
	Instrs  uint64
	Cycles  uint64
	Elapsed time.Duration
}
