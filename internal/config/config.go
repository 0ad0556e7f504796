// Package config loads the application settings from an optional config
// file, environment variables and built-in defaults, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the application.
type Config struct {
	// DataDir is where the note database and the recorded media live.
	DataDir string `mapstructure:"data_dir"`

	// StoreBackend selects the note store: "json" or "sqlite".
	StoreBackend string `mapstructure:"store_backend"`

	SampleRate int `mapstructure:"sample_rate"`
	Channels   int `mapstructure:"channels"`

	// RecordingCeilingSec caps a single recording's length.
	RecordingCeilingSec int `mapstructure:"recording_ceiling_sec"`

	DefaultVolume float64 `mapstructure:"default_volume"`

	// DeviceTimeoutSec bounds every audio device call.
	DeviceTimeoutSec int `mapstructure:"device_timeout_sec"`

	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
}

// DeviceTimeout returns the device call bound as a duration.
func (c Config) DeviceTimeout() time.Duration {
	return time.Duration(c.DeviceTimeoutSec) * time.Second
}

// MediaDir is the subdirectory of DataDir holding recorded audio.
func (c Config) MediaDir() string {
	return filepath.Join(c.DataDir, "media")
}

// StorePath is the note database location for the configured backend.
func (c Config) StorePath() string {
	if c.StoreBackend == "sqlite" {
		return filepath.Join(c.DataDir, "notes.db")
	}
	return filepath.Join(c.DataDir, "notes.json")
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("store_backend", "json")
	v.SetDefault("sample_rate", 44100)
	v.SetDefault("channels", 1)
	v.SetDefault("recording_ceiling_sec", 600)
	v.SetDefault("default_volume", 1.0)
	v.SetDefault("device_timeout_sec", 5)
	v.SetDefault("log_file", filepath.Join(dataDir, "memovox.log"))
	v.SetDefault("log_level", "info")
}

// Load reads the config file at path when it exists, applies MEMOVOX_*
// environment variables over it, and fills the rest from defaults. An
// empty path looks for config.yaml in the user config directory.
func Load(path string) (Config, error) {
	v := viper.New()

	dataDir, err := defaultDataDir()
	if err != nil {
		return Config{}, err
	}
	setDefaults(v, dataDir)

	v.SetEnvPrefix("memovox")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "memovox"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return Config{}, fmt.Errorf("read config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.StoreBackend != "json" && c.StoreBackend != "sqlite" {
		return fmt.Errorf("store_backend %q: want json or sqlite", c.StoreBackend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate %d: must be positive", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels %d: want 1 or 2", c.Channels)
	}
	if c.RecordingCeilingSec <= 0 {
		return fmt.Errorf("recording_ceiling_sec %d: must be positive", c.RecordingCeilingSec)
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 1 {
		return fmt.Errorf("default_volume %v: want 0..1", c.DefaultVolume)
	}
	if c.DeviceTimeoutSec <= 0 {
		return fmt.Errorf("device_timeout_sec %d: must be positive", c.DeviceTimeoutSec)
	}
	return nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".memovox"), nil
}
