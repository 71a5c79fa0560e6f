package tilereplay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/tilereplay/device"
	"github.com/gogpu/tilereplay/internal/binning"
)

// NullOutput as Config.Output discards the rendered image.
const NullOutput = "null"

// Defaults used by DefaultConfig.
const (
	DefaultWidth       = 128
	DefaultHeight      = 128
	DefaultTileLogSize = 5
	DefaultOutput      = "output.png"
	DefaultDevice      = "emu"
	DefaultClearColor  = 0xff000000
	DefaultClearDepth  = 0xffffffff
)

// maxTileLogSize keeps tile origins within the 16-bit header fields.
const maxTileLogSize = 15

// Duration is a time.Duration that reads and writes as a string such as
// "30s" in configuration files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config describes one replay run.
type Config struct {
	// Trace is the path of the trace file.
	Trace string `toml:"trace"`

	// Start and End select the inclusive range of draw calls to replay.
	// End -1 selects through the last draw call.
	Start int `toml:"start"`
	End   int `toml:"end"`

	// Output is the image written after replay, or NullOutput.
	Output string `toml:"output"`

	// Reference, when set, is compared against Output.
	Reference string `toml:"reference"`

	Width  int `toml:"width"`
	Height int `toml:"height"`

	// Software fallbacks: the kernel reads the unit's configuration from
	// the argument block instead of the hardware registers.
	SwRast bool `toml:"sw_rast"`
	SwTex  bool `toml:"sw_tex"`
	SwOM   bool `toml:"sw_om"`

	TileLogSize int `toml:"tile_log_size"`

	// Kernel is the path of the program image. It is ignored when Program
	// is set.
	Kernel string `toml:"kernel"`

	// Device names the registered device backend.
	Device string `toml:"device"`

	// Timeout bounds the wait for each launch.
	Timeout Duration `toml:"timeout"`

	ClearColor uint32 `toml:"clear_color"`
	ClearDepth uint32 `toml:"clear_depth"`

	// Program is an in-memory program image.
	Program []byte `toml:"-"`

	// Perf receives the device performance dump after each draw call.
	// Nil discards it.
	Perf io.Writer `toml:"-"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		End:         -1,
		Output:      DefaultOutput,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		TileLogSize: DefaultTileLogSize,
		Device:      DefaultDevice,
		Timeout:     Duration(device.MaxTimeout),
		ClearColor:  DefaultClearColor,
		ClearDepth:  DefaultClearDepth,
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, fmt.Errorf("%w: %s: %s", ErrConfig, path, strict.String())
		}
		return cfg, fmt.Errorf("%w: %s: %w", ErrConfig, path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting, wrapped in ErrConfig.
func (c *Config) Validate() error {
	switch {
	case c.Trace == "":
		return fmt.Errorf("%w: no trace file", ErrConfig)
	case c.Start < 0:
		return fmt.Errorf("%w: start %d is negative", ErrConfig, c.Start)
	case c.End < -1:
		return fmt.Errorf("%w: end %d below -1", ErrConfig, c.End)
	case c.End >= 0 && c.End < c.Start:
		return fmt.Errorf("%w: end %d before start %d", ErrConfig, c.End, c.Start)
	case c.Width <= 0 || c.Height <= 0 || c.Width > binning.MaxCoord || c.Height > binning.MaxCoord:
		return fmt.Errorf("%w: output size %dx%d outside 1..%d", ErrConfig, c.Width, c.Height, binning.MaxCoord)
	case c.TileLogSize < 0 || c.TileLogSize > maxTileLogSize:
		return fmt.Errorf("%w: tile log size %d outside 0..%d", ErrConfig, c.TileLogSize, maxTileLogSize)
	case c.Output == "":
		return fmt.Errorf("%w: no output file", ErrConfig)
	case c.Output == NullOutput && c.Reference != "":
		return fmt.Errorf("%w: reference %s needs an output image", ErrConfig, c.Reference)
	case c.Program == nil && c.Kernel == "":
		return fmt.Errorf("%w: no kernel program", ErrConfig)
	case c.Device == "":
		return fmt.Errorf("%w: no device", ErrConfig)
	case c.Timeout <= 0 || time.Duration(c.Timeout) > device.MaxTimeout:
		return fmt.Errorf("%w: timeout %v outside (0, %v]", ErrConfig, time.Duration(c.Timeout), device.MaxTimeout)
	}
	return nil
}

// inRange reports whether draw call i is selected.
func (c *Config) inRange(i int) bool {
	return i >= c.Start && (c.End < 0 || i <= c.End)
}

// program returns the program image to upload.
func (c *Config) program() ([]byte, error) {
	if c.Program != nil {
		return c.Program, nil
	}
	prog, err := os.ReadFile(filepath.Clean(c.Kernel))
	if err != nil {
		return nil, fmt.Errorf("%w: kernel: %w", ErrConfig, err)
	}
	return prog, nil
}
