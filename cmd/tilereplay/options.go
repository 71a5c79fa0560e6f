package main

import (
	"flag"

	"github.com/gogpu/tilereplay"
	"github.com/gogpu/tilereplay/device/emu"
)

// options holds the command line.
type options struct {
	configPath string
	watch      bool
	verbose    bool

	// flags is filled by the flag set and copied over the configuration
	// for every flag given explicitly.
	flags tilereplay.Config
}

func newOptions(fs *flag.FlagSet) *options {
	o := &options{flags: tilereplay.DefaultConfig()}
	f := &o.flags
	fs.StringVar(&o.configPath, "config", "", "TOML configuration file")
	fs.BoolVar(&o.watch, "watch", false, "replay again whenever the trace or kernel changes")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")

	fs.StringVar(&f.Trace, "trace", "", "trace file")
	fs.IntVar(&f.Start, "start", f.Start, "first draw call to replay")
	fs.IntVar(&f.End, "end", f.End, "last draw call to replay (-1 for all)")
	fs.StringVar(&f.Output, "output", f.Output, "output image, or \"null\"")
	fs.StringVar(&f.Reference, "reference", "", "reference image to compare with")
	fs.IntVar(&f.Width, "width", f.Width, "output width")
	fs.IntVar(&f.Height, "height", f.Height, "output height")
	fs.BoolVar(&f.SwRast, "sw-rast", false, "emulate the rasterizer in the kernel")
	fs.BoolVar(&f.SwTex, "sw-tex", false, "emulate the texture unit in the kernel")
	fs.BoolVar(&f.SwOM, "sw-om", false, "emulate the output merger in the kernel")
	fs.IntVar(&f.TileLogSize, "tile-log-size", f.TileLogSize, "log2 of the tile size")
	fs.StringVar(&f.Kernel, "kernel", "", "kernel program image (default: built-in draw3d)")
	fs.StringVar(&f.Device, "device", f.Device, "device backend")
	return o
}

// config loads the configuration file, if any, and applies the flags set
// on the command line over it. Without a kernel file the built-in draw3d
// program is used.
func (o *options) config(fs *flag.FlagSet) (tilereplay.Config, error) {
	cfg := tilereplay.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = tilereplay.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}

	f := &o.flags
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "trace":
			cfg.Trace = f.Trace
		case "start":
			cfg.Start = f.Start
		case "end":
			cfg.End = f.End
		case "output":
			cfg.Output = f.Output
		case "reference":
			cfg.Reference = f.Reference
		case "width":
			cfg.Width = f.Width
		case "height":
			cfg.Height = f.Height
		case "sw-rast":
			cfg.SwRast = f.SwRast
		case "sw-tex":
			cfg.SwTex = f.SwTex
		case "sw-om":
			cfg.SwOM = f.SwOM
		case "tile-log-size":
			cfg.TileLogSize = f.TileLogSize
		case "kernel":
			cfg.Kernel = f.Kernel
		case "device":
			cfg.Device = f.Device
		}
	})
	if cfg.Kernel == "" {
		cfg.Program = emu.Program(emu.Draw3D)
	}
	return cfg, nil
}
