// Package config loads settings from flags, environment and an optional
// config file through viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lvcoi/ytdl-playlist/internal/downloader"
	"github.com/lvcoi/ytdl-playlist/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. YTPL_ITEM_DELAY.
const EnvPrefix = "YTPL"

// Keys shared by flags, env and the config file.
const (
	KeyServer    = "server"
	KeyQuality   = "quality"
	KeyFormat    = "format"
	KeyItemDelay = "item-delay"
	KeyTick      = "tick"
	KeyTimeout   = "timeout"
	KeyRetries   = "retries"
	KeyDest      = "dest"
	KeySaveDir   = "save-dir"
	KeyListen    = "listen"
	KeyMediaDir  = "media-dir"
	KeyDB        = "db"
	KeyRate      = "rate"
	KeyDemo      = "demo"
	KeyLogLevel  = "log-level"
	KeyLogFile   = "log-file"
	KeyPlain     = "plain"
)

// Config is the resolved configuration.
type Config struct {
	Server    string
	Quality   string
	Format    string
	ItemDelay time.Duration
	Tick      time.Duration
	Timeout   time.Duration
	Retries   int
	Dest      string
	SaveDir   string
	Listen    string
	MediaDir  string
	DB        string
	Rate      float64
	Demo      bool
	LogLevel  string
	LogFile   string
	Plain     bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServer, "http://127.0.0.1:5000")
	v.SetDefault(KeyQuality, downloader.DefaultQuality)
	v.SetDefault(KeyFormat, downloader.DefaultFormat)
	v.SetDefault(KeyItemDelay, downloader.DefaultItemDelay)
	v.SetDefault(KeyTick, downloader.DefaultTickInterval)
	v.SetDefault(KeyTimeout, 10*time.Minute)
	v.SetDefault(KeyRetries, 2)
	v.SetDefault(KeyDest, "")
	saveDir, err := downloader.DefaultSaveDir()
	if err != nil {
		saveDir = "Downloads"
	}
	v.SetDefault(KeySaveDir, saveDir)
	v.SetDefault(KeyListen, "127.0.0.1:5000")
	v.SetDefault(KeyMediaDir, "downloads")
	v.SetDefault(KeyDB, filepath.Join("downloads", "library.db"))
	v.SetDefault(KeyRate, 1.0)
	v.SetDefault(KeyDemo, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyPlain, false)
}

// BindEnv makes every key overridable through YTPL_<KEY>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// DefaultFile returns $XDG_CONFIG_HOME/ytdl-playlist/config.yaml, or "" when
// no config directory is known.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ytdl-playlist", "config.yaml")
}

// ReadFile loads path into v. An explicit path must exist; the default path
// is optional.
func ReadFile(v *viper.Viper, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// Load reads and validates a Config from v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server:    strings.TrimSpace(v.GetString(KeyServer)),
		Quality:   v.GetString(KeyQuality),
		Format:    v.GetString(KeyFormat),
		ItemDelay: v.GetDuration(KeyItemDelay),
		Tick:      v.GetDuration(KeyTick),
		Timeout:   v.GetDuration(KeyTimeout),
		Retries:   v.GetInt(KeyRetries),
		Dest:      downloader.ExpandHome(v.GetString(KeyDest)),
		SaveDir:   downloader.ExpandHome(v.GetString(KeySaveDir)),
		Listen:    v.GetString(KeyListen),
		MediaDir:  downloader.ExpandHome(v.GetString(KeyMediaDir)),
		DB:        downloader.ExpandHome(v.GetString(KeyDB)),
		Rate:      v.GetFloat64(KeyRate),
		Demo:      v.GetBool(KeyDemo),
		LogLevel:  v.GetString(KeyLogLevel),
		LogFile:   downloader.ExpandHome(v.GetString(KeyLogFile)),
		Plain:     v.GetBool(KeyPlain),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var errs []error

	quality, err := downloader.NormalizeQuality(c.Quality)
	if err != nil {
		errs = append(errs, err)
	}
	c.Quality = quality
	format, err := downloader.NormalizeFormat(c.Format)
	if err != nil {
		errs = append(errs, err)
	}
	c.Format = format

	if u, err := url.Parse(c.Server); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", KeyServer, c.Server))
	}
	if c.ItemDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyItemDelay))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyTick))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyTimeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyRetries))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyRate))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
