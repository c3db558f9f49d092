// Package config loads runtime settings for the heartbeat pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the pipeline cadences and signal window.
const (
	DefaultTargetFPS        = 30
	DefaultWindowSeconds    = 6
	DefaultEstimateInterval = 250 * time.Millisecond
	DefaultRescanInterval   = 1000 * time.Millisecond
	DefaultLowBPM           = 42
	DefaultHighBPM          = 240
	DefaultFrameWidth       = 640
	DefaultFrameHeight      = 480
	DefaultCascadePath      = "data/haarcascade_frontalface_alt.xml"
	DefaultListenAddr       = ":8080"
	DefaultReportTimeout    = 5 * time.Second
)

// maxFileSize bounds the config file read.
const maxFileSize = 1 * 1024 * 1024

// Config holds every setting fixed at pipeline construction.
type Config struct {
	CameraID    int    `json:"camera_id" yaml:"camera_id"`
	VideoFile   string `json:"video_file" yaml:"video_file"`
	FrameWidth  int    `json:"frame_width" yaml:"frame_width"`
	FrameHeight int    `json:"frame_height" yaml:"frame_height"`

	TargetFPS        int      `json:"target_fps" yaml:"target_fps"`
	WindowSeconds    int      `json:"window_seconds" yaml:"window_seconds"`
	EstimateInterval Duration `json:"estimate_interval" yaml:"estimate_interval"`
	RescanInterval   Duration `json:"rescan_interval" yaml:"rescan_interval"`
	LowBPM           float64  `json:"low_bpm" yaml:"low_bpm"`
	HighBPM          float64  `json:"high_bpm" yaml:"high_bpm"`

	CascadePath    string `json:"cascade_path" yaml:"cascade_path"`
	UseOpticalFlow bool   `json:"use_optical_flow" yaml:"use_optical_flow"`

	DBPath     string `json:"db_path" yaml:"db_path"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	StaticDir  string `json:"static_dir" yaml:"static_dir"`

	ReportURL     string   `json:"report_url" yaml:"report_url"`
	ReportHook    string   `json:"report_hook" yaml:"report_hook"`
	ReportTimeout Duration `json:"report_timeout" yaml:"report_timeout"`

	Preview bool `json:"preview" yaml:"preview"`
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Duration is a time.Duration that reads and writes as a string like "250ms".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts either a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %s", string(b))
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %s", value.Value)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config populated with the stock settings.
func Default() *Config {
	return &Config{
		FrameWidth:       DefaultFrameWidth,
		FrameHeight:      DefaultFrameHeight,
		TargetFPS:        DefaultTargetFPS,
		WindowSeconds:    DefaultWindowSeconds,
		EstimateInterval: Duration(DefaultEstimateInterval),
		RescanInterval:   Duration(DefaultRescanInterval),
		LowBPM:           DefaultLowBPM,
		HighBPM:          DefaultHighBPM,
		CascadePath:      DefaultCascadePath,
		DBPath:           defaultDBPath(),
		ListenAddr:       DefaultListenAddr,
		ReportTimeout:    Duration(DefaultReportTimeout),
	}
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "heartbeat.db"
	}
	return filepath.Join(homeDir, ".heartbeat", "heartbeat.db")
}

// Load reads a JSON or YAML config file on top of the defaults.
// Fields omitted from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings describe a runnable pipeline.
func (c *Config) Validate() error {
	var problems []string

	if c.TargetFPS <= 0 {
		problems = append(problems, "target_fps must be positive")
	}
	if c.WindowSeconds <= 0 {
		problems = append(problems, "window_seconds must be positive")
	}
	if c.EstimateInterval.Std() <= 0 {
		problems = append(problems, "estimate_interval must be positive")
	}
	if c.RescanInterval.Std() <= 0 {
		problems = append(problems, "rescan_interval must be positive")
	}
	if c.LowBPM <= 0 || c.LowBPM >= c.HighBPM {
		problems = append(problems, "low_bpm must be positive and below high_bpm")
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		problems = append(problems, "frame size must be positive")
	}
	if c.ReportTimeout.Std() <= 0 {
		problems = append(problems, "report_timeout must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WindowCapacity is the number of samples held by the signal window.
func (c *Config) WindowCapacity() int {
	return c.TargetFPS * c.WindowSeconds
}

// FrameInterval is the period of the frame cadence.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.TargetFPS)
}
