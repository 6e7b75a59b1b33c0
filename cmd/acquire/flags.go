package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/banshee-data/biosignal/internal/acq"
	"github.com/banshee-data/biosignal/internal/config"
)

// cliFlags holds the command line. Flags that are set override the matching
// config file fields; unset flags leave the file (or the default) alone.
type cliFlags struct {
	fs *flag.FlagSet

	configPath    string
	transport     string
	port          string
	group         string
	udpPort       int
	delegate      string
	iface         string
	replay        string
	buffer        int
	streamer      string
	readTimeout   time.Duration
	statsInterval time.Duration
	vref          float64
	gain          float64
	logLevel      string
	debugListen   string
	version       bool
}

func newFlags(name string) *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs := f.fs
	fs.StringVar(&f.configPath, "config", "", "JSON or YAML config file")
	fs.StringVar(&f.transport, "transport", "serial", "Transport to acquire from: serial or relay")
	fs.StringVar(&f.port, "port", "/dev/ttyACM0", "Serial port of the FreeEEG32")
	fs.StringVar(&f.group, "group", "", "Multicast group to receive relayed samples from")
	fs.IntVar(&f.udpPort, "udp-port", 0, "UDP port of the relay group")
	fs.StringVar(&f.delegate, "delegate", "", "Board id of the device behind the relay")
	fs.StringVar(&f.iface, "iface", "", "Network interface used to join the relay group (all when empty)")
	fs.StringVar(&f.replay, "replay", "", "Replay relay packets from a pcap file instead of the network")
	fs.IntVar(&f.buffer, "buffer", config.DefaultBufferSize, "Ring buffer capacity in samples")
	fs.StringVar(&f.streamer, "streamer", "", "Re-stream samples, e.g. streaming_board://225.1.1.1:6677")
	fs.DurationVar(&f.readTimeout, "read-timeout", acq.DefaultReadTimeout, "Read timeout for the serial port or relay socket")
	fs.DurationVar(&f.statsInterval, "stats-interval", config.DefaultStatsInterval, "How often to log acquisition counters")
	fs.Float64Var(&f.vref, "vref", acq.DefaultVref, "Analog reference voltage in volts")
	fs.Float64Var(&f.gain, "gain", acq.DefaultGain, "Analog front end gain")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.debugListen, "debug-listen", config.DefaultDebugListen, "Debug HTTP listen address (empty to disable)")
	fs.BoolVar(&f.version, "version", false, "Print version and exit")
	return f
}

func (f *cliFlags) parse(args []string) error {
	return f.fs.Parse(args)
}

// load reads the config file, if any, and applies the flags that were set.
func (f *cliFlags) load() (*config.AcquireConfig, error) {
	cfg := &config.AcquireConfig{}
	if f.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "transport":
			cfg.Transport = &f.transport
		case "port":
			cfg.SerialPort = &f.port
		case "group":
			cfg.MulticastGroup = &f.group
		case "udp-port":
			cfg.MulticastPort = &f.udpPort
		case "delegate":
			cfg.DelegateBoard = &f.delegate
		case "iface":
			cfg.Interface = &f.iface
		case "replay":
			cfg.ReplayPcap = &f.replay
		case "buffer":
			cfg.BufferSize = &f.buffer
		case "streamer":
			cfg.Streamer = &f.streamer
		case "read-timeout":
			s := f.readTimeout.String()
			cfg.ReadTimeout = &s
		case "stats-interval":
			s := f.statsInterval.String()
			cfg.StatsInterval = &s
		case "vref":
			cfg.Vref = &f.vref
		case "gain":
			cfg.Gain = &f.gain
		case "log-level":
			cfg.LogLevel = &f.logLevel
		case "debug-listen":
			cfg.DebugListen = &f.debugListen
		}
	})

	// The serial default applies when neither the file nor the flags name a port.
	if cfg.SerialPort == nil {
		cfg.SerialPort = &f.port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
