// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "rtaudioctl"
	ConfigType    = "yaml"
	DefaultConfig = `# rtaudioctl configuration

# Backend selection: alsa, oss, pulse, jack, core, ds, wasapi, dummy, or
# unspecified to auto-pick the first compiled, natively-available one.
backend: "unspecified"

# Device settings
device_index: -1        # -1 for the backend's default device
sample_rate: 48000       # requested sample rate in Hz
channels: 2              # requested channel count
format: "s16"            # s8, s16, s24, s32, f32, f64
block_frames: 256        # requested block size in frames

# Stream options
noninterleaved: false    # planar user buffer instead of interleaved
minimize_latency: false  # request the smallest block count the backend supports
hog_device: false        # request exclusive device access where supported
number_of_buffers: 0     # 0/1 means "backend minimum"

# Output
debug: false             # enable debug output
`
)

// Settings holds rtaudioctl's own configuration; it is a demo/CLI
// concern only and is never imported by the engine packages (internal/
// stream, internal/backend, ...), which build their parameters
// programmatically instead.
type Settings struct {
	Backend     string  `mapstructure:"backend"`
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	Format      string  `mapstructure:"format"`
	BlockFrames int     `mapstructure:"block_frames"`

	NonInterleaved  bool `mapstructure:"noninterleaved"`
	MinimizeLatency bool `mapstructure:"minimize_latency"`
	HogDevice       bool `mapstructure:"hog_device"`
	NumberOfBuffers int  `mapstructure:"number_of_buffers"`

	Debug bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/rtaudioctl/
func Init() error {
	viper.SetDefault("backend", "unspecified")
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 2)
	viper.SetDefault("format", "s16")
	viper.SetDefault("block_frames", 256)
	viper.SetDefault("noninterleaved", false)
	viper.SetDefault("minimize_latency", false)
	viper.SetDefault("hog_device", false)
	viper.SetDefault("number_of_buffers", 0)
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/rtaudioctl/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// validFormats is the closed set of format tags rtaudioctl accepts on
// the command line/config file, matching internal/format's Sample enum.
var validFormats = map[string]bool{
	"s8": true, "s16": true, "s24": true, "s32": true, "f32": true, "f64": true,
}

// Validate checks that all settings are within acceptable ranges.
func (s *Settings) Validate() error {
	var problems []error

	if s.SampleRate < 4000 || s.SampleRate > 192000 {
		problems = append(problems, fmt.Errorf("sample_rate must be between 4000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 32 {
		problems = append(problems, fmt.Errorf("channels must be between 1 and 32, got %d", s.Channels))
	}
	if s.BlockFrames < 1 || s.BlockFrames > 65536 {
		problems = append(problems, fmt.Errorf("block_frames must be between 1 and 65536, got %d", s.BlockFrames))
	}
	if s.DeviceIndex < -1 {
		problems = append(problems, fmt.Errorf("device_index must be -1 or a valid device index, got %d", s.DeviceIndex))
	}
	if s.NumberOfBuffers < 0 {
		problems = append(problems, fmt.Errorf("number_of_buffers must be >= 0, got %d", s.NumberOfBuffers))
	}
	if !validFormats[s.Format] {
		problems = append(problems, fmt.Errorf("format must be one of s8, s16, s24, s32, f32, f64, got %q", s.Format))
	}

	if len(problems) > 0 {
		return errors.Join(problems...)
	}
	return nil
}
