// Package config loads acquisition settings from JSON or YAML files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/banshee-data/biosignal/internal/acq"
	"github.com/banshee-data/biosignal/internal/monitoring"
	"github.com/banshee-data/biosignal/internal/sink"
)

// Defaults for fields left out of a config file.
const (
	DefaultBufferSize    = 450000 // 30 minutes at 250 Hz
	DefaultStatsInterval = time.Minute
	DefaultDebugListen   = "localhost:8090"
	DefaultLogLevel      = "info"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// AcquireConfig is the on-disk configuration for one acquisition session.
// Every field is optional; the Get* methods supply defaults.
type AcquireConfig struct {
	Transport      *string  `json:"transport,omitempty" yaml:"transport,omitempty"`
	SerialPort     *string  `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	MulticastGroup *string  `json:"multicast_group,omitempty" yaml:"multicast_group,omitempty"`
	MulticastPort  *int     `json:"multicast_port,omitempty" yaml:"multicast_port,omitempty"`
	DelegateBoard  *string  `json:"delegate_board,omitempty" yaml:"delegate_board,omitempty"`
	Interface      *string  `json:"interface,omitempty" yaml:"interface,omitempty"`
	ReplayPcap     *string  `json:"replay_pcap,omitempty" yaml:"replay_pcap,omitempty"`
	BufferSize     *int     `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	Streamer       *string  `json:"streamer,omitempty" yaml:"streamer,omitempty"`
	ReadTimeout    *string  `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"` // duration string like "1s"
	Vref           *float64 `json:"vref,omitempty" yaml:"vref,omitempty"`
	Gain           *float64 `json:"gain,omitempty" yaml:"gain,omitempty"`
	StatsInterval  *string  `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"`
	LogLevel       *string  `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	DebugListen    *string  `json:"debug_listen,omitempty" yaml:"debug_listen,omitempty"`
}

// LoadConfig reads a .json, .yaml or .yml file. Omitted fields stay nil and
// fall back to defaults, so partial files are fine.
func LoadConfig(path string) (*AcquireConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &AcquireConfig{}
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *AcquireConfig) Validate() error {
	if c.Transport != nil {
		if _, err := acq.ParseTransport(*c.Transport); err != nil {
			return err
		}
	}
	if c.MulticastPort != nil && (*c.MulticastPort <= 0 || *c.MulticastPort > 65535) {
		return fmt.Errorf("multicast_port must be between 1 and 65535, got %d", *c.MulticastPort)
	}
	if c.BufferSize != nil && (*c.BufferSize <= 0 || *c.BufferSize > sink.MaxCaptureSamples) {
		return fmt.Errorf("buffer_size must be between 1 and %d, got %d", sink.MaxCaptureSamples, *c.BufferSize)
	}
	if c.Streamer != nil {
		if _, err := sink.ParseStreamerSpec(*c.Streamer); err != nil {
			return fmt.Errorf("invalid streamer: %w", err)
		}
	}
	for name, v := range map[string]*string{"read_timeout": c.ReadTimeout, "stats_interval": c.StatsInterval} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Vref != nil && *c.Vref <= 0 {
		return fmt.Errorf("vref must be positive, got %f", *c.Vref)
	}
	if c.Gain != nil && *c.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %f", *c.Gain)
	}
	if c.LogLevel != nil {
		if _, err := monitoring.ParseLevel(*c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// GetTransport returns the transport, serial by default.
func (c *AcquireConfig) GetTransport() acq.Transport {
	t, err := acq.ParseTransport(stringOr(c.Transport, ""))
	if err != nil {
		return acq.TransportSerial
	}
	return t
}

// GetBufferSize returns the ring capacity in samples.
func (c *AcquireConfig) GetBufferSize() int {
	if c.BufferSize == nil {
		return DefaultBufferSize
	}
	return *c.BufferSize
}

// GetStreamer returns the streamer spec, empty by default.
func (c *AcquireConfig) GetStreamer() string {
	return stringOr(c.Streamer, "")
}

// GetReadTimeout returns the transport read timeout.
func (c *AcquireConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, acq.DefaultReadTimeout)
}

// GetStatsInterval returns how often counters are logged.
func (c *AcquireConfig) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, DefaultStatsInterval)
}

// GetVref returns the analog reference voltage.
func (c *AcquireConfig) GetVref() float64 {
	if c.Vref == nil {
		return acq.DefaultVref
	}
	return *c.Vref
}

// GetGain returns the analog front end gain.
func (c *AcquireConfig) GetGain() float64 {
	if c.Gain == nil {
		return acq.DefaultGain
	}
	return *c.Gain
}

// GetLogLevel returns the log level name.
func (c *AcquireConfig) GetLogLevel() string {
	return stringOr(c.LogLevel, DefaultLogLevel)
}

// GetDebugListen returns the debug HTTP listen address. An empty string
// disables the server.
func (c *AcquireConfig) GetDebugListen() string {
	return stringOr(c.DebugListen, DefaultDebugListen)
}

// GetInterface returns the network interface used to join relay groups.
func (c *AcquireConfig) GetInterface() string {
	return stringOr(c.Interface, "")
}

// GetReplayPcap returns the capture file replayed instead of the network.
func (c *AcquireConfig) GetReplayPcap() string {
	return stringOr(c.ReplayPcap, "")
}

// SessionParams builds session parameters from the connection fields.
func (c *AcquireConfig) SessionParams() acq.Params {
	p := acq.Params{
		Transport:  c.GetTransport(),
		SerialPort: stringOr(c.SerialPort, ""),
		IPAddress:  stringOr(c.MulticastGroup, ""),
		OtherInfo:  stringOr(c.DelegateBoard, ""),
	}
	if c.MulticastPort != nil {
		p.IPPort = *c.MulticastPort
	}
	return p
}
