// Package config reads the slideshow settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	DisplaySeconds float64 `mapstructure:"img_display_time"`
	FadeSeconds    float64 `mapstructure:"img_fade_time"`
	FolderPath     string  `mapstructure:"img_folder_path"`
	Extension      string  `mapstructure:"img_extension"`
	LEDGPIO        int     `mapstructure:"led_pause_indicator_gpio"`

	Platform     string        `mapstructure:"platform"`
	Decoder      string        `mapstructure:"decoder"`
	FitMode      string        `mapstructure:"fit_mode"`
	Scaler       string        `mapstructure:"scaler"`
	AsyncDecode  bool          `mapstructure:"async_decode"`
	SkipCut      bool          `mapstructure:"skip_cut"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FenceTimeout time.Duration `mapstructure:"fence_timeout"`
	DRMDevice    string        `mapstructure:"drm_device"`

	InputDevice string `mapstructure:"input_device"`
	InputGrab   bool   `mapstructure:"input_grab"`

	HTTPAddr   string `mapstructure:"http_addr"`
	ThumbWidth int    `mapstructure:"thumb_width"`
	StatsFile  string `mapstructure:"stats_file"`

	SyncEndpoint string        `mapstructure:"sync_endpoint"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	SyncWidth    int           `mapstructure:"sync_width"`
	SyncHeight   int           `mapstructure:"sync_height"`
	SyncPing     bool          `mapstructure:"sync_ping"`
	SyncCaption  bool          `mapstructure:"sync_caption"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"img_display_time":         60.0,
	"img_fade_time":            0.5,
	"img_folder_path":          "/tmp",
	"img_extension":            ".jpg",
	"led_pause_indicator_gpio": 23,
	"platform":                 "kms",
	"decoder":                  "std",
	"fit_mode":                 "contain",
	"scaler":                   "approx",
	"async_decode":             false,
	"skip_cut":                 false,
	"poll_interval":            100 * time.Millisecond,
	"fence_timeout":            time.Second,
	"drm_device":               "",
	"input_device":             "/dev/input/event0",
	"input_grab":               false,
	"http_addr":                "",
	"thumb_width":              160,
	"stats_file":               "",
	"sync_endpoint":            "",
	"sync_interval":            5 * time.Minute,
	"sync_width":               1920,
	"sync_height":              1080,
	"sync_ping":                false,
	"sync_caption":             false,
	"log_level":                "info",
}

// Load reads CONFIG_FILE when set, then lets environment variables
// override it.
func Load() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.DisplaySeconds < 0:
		return fmt.Errorf("%w: IMG_DISPLAY_TIME must not be negative", ErrInvalid)
	case c.FadeSeconds < 0:
		return fmt.Errorf("%w: IMG_FADE_TIME must not be negative", ErrInvalid)
	case c.Platform != "kms" && c.Platform != "sdl":
		return fmt.Errorf("%w: PLATFORM %q, want kms or sdl", ErrInvalid, c.Platform)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: POLL_INTERVAL must be positive", ErrInvalid)
	}
	return nil
}

func (c Config) Display() time.Duration { return seconds(c.DisplaySeconds) }

func (c Config) Fade() time.Duration { return seconds(c.FadeSeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
