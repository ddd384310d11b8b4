package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/vango-dev/patchwire/internal/errors"
	"github.com/vango-dev/patchwire/pkg/action"
	"github.com/vango-dev/patchwire/pkg/signal"
	"github.com/vango-dev/patchwire/pkg/stream"
)

// ConfigFileNames are searched in order by Load.
var ConfigFileNames = []string{"patchwire.json", "patchwire.yaml", "patchwire.yml"}

const (
	// DefaultDemoAddr is where the demo server listens.
	DefaultDemoAddr = "localhost:8080"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"
)

// Config is the complete patchwire configuration.
type Config struct {
	// URL is the page the runtime loads.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	Log     LogConfig     `json:"log" yaml:"log"`
	Signals SignalsConfig `json:"signals" yaml:"signals"`
	Stream  StreamConfig  `json:"stream" yaml:"stream"`
	Retry   RetryConfig   `json:"retry" yaml:"retry"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Record  RecordConfig  `json:"record" yaml:"record"`
	Demo    DemoConfig    `json:"demo" yaml:"demo"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// SignalsConfig configures the signal store.
type SignalsConfig struct {
	LocalPrefix     string `json:"localPrefix,omitempty" yaml:"localPrefix,omitempty"`
	MaxCascadeDepth int    `json:"maxCascadeDepth,omitempty" yaml:"maxCascadeDepth,omitempty"`
}

// StreamConfig configures stream consumers.
type StreamConfig struct {
	IdleTimeout Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
}

// RetryConfig is the default action retry policy.
type RetryConfig struct {
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Scaler   float64  `json:"scaler,omitempty" yaml:"scaler,omitempty"`
	MaxWait  Duration `json:"maxWait,omitempty" yaml:"maxWait,omitempty"`
	MaxCount int      `json:"maxCount,omitempty" yaml:"maxCount,omitempty"`
}

// Policy converts the config to an action.RetryPolicy.
func (r RetryConfig) Policy() action.RetryPolicy {
	return action.RetryPolicy{
		Interval: time.Duration(r.Interval),
		Scaler:   r.Scaler,
		MaxWait:  time.Duration(r.MaxWait),
		MaxCount: r.MaxCount,
	}
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables /metrics when set.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// RecordConfig selects where stream frames are recorded. File and Bucket
// are mutually exclusive.
type RecordConfig struct {
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`
}

// Enabled reports whether recording is configured.
func (r RecordConfig) Enabled() bool {
	return r.File != "" || r.Bucket != ""
}

// DemoConfig configures the demo server.
type DemoConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// New returns a Config with default values.
func New() *Config {
	def := action.DefaultRetry
	return &Config{
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Signals: SignalsConfig{
			LocalPrefix:     signal.DefaultLocalPrefix,
			MaxCascadeDepth: signal.DefaultMaxCascadeDepth,
		},
		Stream: StreamConfig{
			IdleTimeout: Duration(stream.DefaultIdleTimeout),
		},
		Retry: RetryConfig{
			Interval: Duration(def.Interval),
			Scaler:   def.Scaler,
			MaxWait:  Duration(def.MaxWait),
			MaxCount: def.MaxCount,
		},
		Demo: DemoConfig{
			Addr: DefaultDemoAddr,
		},
	}
}

// Load finds and loads the first config file in dir.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E102").WithDetail("No config file in " + dir)
}

// LoadFile loads configuration from a specific path. The format follows the
// file extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E102").WithDetail(path)
		}
		return nil, err
	}

	cfg := New()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E103").
			WithDetail("Failed to parse " + path).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Save writes the configuration back to the path it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("E103").WithDetail("No config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path in the format its extension names.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	def := New()
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Signals.LocalPrefix == "" {
		c.Signals.LocalPrefix = def.Signals.LocalPrefix
	}
	if c.Signals.MaxCascadeDepth == 0 {
		c.Signals.MaxCascadeDepth = def.Signals.MaxCascadeDepth
	}
	if c.Stream.IdleTimeout == 0 {
		c.Stream.IdleTimeout = def.Stream.IdleTimeout
	}
	if c.Retry.Interval == 0 {
		c.Retry.Interval = def.Retry.Interval
	}
	if c.Retry.Scaler == 0 {
		c.Retry.Scaler = def.Retry.Scaler
	}
	if c.Retry.MaxWait == 0 {
		c.Retry.MaxWait = def.Retry.MaxWait
	}
	if c.Demo.Addr == "" {
		c.Demo.Addr = def.Demo.Addr
	}
	if c.Record.Bucket != "" && c.Record.Key == "" {
		c.Record.Key = "patchwire/session.msgpack"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("E103").WithDetailf("log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("E103").WithDetailf("log.format %q", c.Log.Format)
	}
	if c.Signals.MaxCascadeDepth < 1 {
		return errors.New("E103").WithDetail("signals.maxCascadeDepth must be positive")
	}
	if c.Stream.IdleTimeout < 0 {
		return errors.New("E103").WithDetail("stream.idleTimeout must not be negative")
	}
	if c.Retry.Scaler < 1 {
		return errors.New("E103").WithDetail("retry.scaler must be at least 1")
	}
	if c.Retry.MaxCount < 0 {
		return errors.New("E103").WithDetail("retry.maxCount must not be negative")
	}
	if c.Record.File != "" && c.Record.Bucket != "" {
		return errors.New("E103").
			WithDetail("record.file and record.bucket are mutually exclusive")
	}
	return nil
}

// Exists reports whether dir holds a config file.
func Exists(dir string) bool {
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir to the first directory holding a
// config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E102").
				WithDetail("No config file in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration found from the working directory
// upward. A missing file yields the defaults.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		if errors.IsKind(err, errors.KindConfig) {
			return New(), nil
		}
		return nil, err
	}
	return Load(root)
}
