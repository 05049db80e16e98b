package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	EnvPrefix   = "SESSION_SYNC"
	EnvFile     = EnvPrefix + "_CONFIG"
	DefaultName = "session-sync"
)

type BreakerConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Failures    uint32        `mapstructure:"failures"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type RealtimeConfig struct {
	// URL of the push channel; derived from api.base_url when empty.
	URL            string        `mapstructure:"url"`
	MaxRetries     uint          `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	HandshakeTime  time.Duration `mapstructure:"handshake_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type StorageConfig struct {
	Driver    string      `mapstructure:"driver"` // file | redis
	Dir       string      `mapstructure:"dir"`
	Namespace string      `mapstructure:"namespace"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type ProfileConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
	Otel   bool   `mapstructure:"otel"`
}

type ViewConfig struct {
	Addr        string        `mapstructure:"addr"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// MessageTemplate maps a notification message key to a format string with
// {param} placeholders. Keys are kept as a list because viper splits map keys on dots.
type MessageTemplate struct {
	Key  string `mapstructure:"key"`
	Text string `mapstructure:"text"`
}

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	Log      LogConfig      `mapstructure:"log"`
	View     ViewConfig     `mapstructure:"view"`
	// Messages is the catalog used to render structured notifications.
	Messages []MessageTemplate `mapstructure:"messages"`

	v        *viper.Viper
	watching sync.Once
}

// LoadConfig reads defaults, an optional YAML file and SESSION_SYNC_* env vars, in
// increasing precedence. An empty file falls back to $SESSION_SYNC_CONFIG and
// then to ./session-sync.yaml when present.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if file == "" {
		file = os.Getenv(EnvFile)
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.v = v
	return cfg, nil
}

// Watch re-reads the file on change and hands the fresh config to fn.
// It is a no-op when no config file was loaded.
func (c *Config) Watch(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.watching.Do(func() {
		c.v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			next, err := decode(c.v)
			if err != nil {
				return
			}
			fn(next)
		})
		c.v.WatchConfig()
	})
}

// RealtimeURL returns the configured push URL, deriving ws(s):// from the API base.
func (c *Config) RealtimeURL() (string, error) {
	if c.Realtime.URL != "" {
		return c.Realtime.URL, nil
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse api.base_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// MessageCatalog indexes Messages by key; later entries win.
func (c *Config) MessageCatalog() map[string]string {
	out := make(map[string]string, len(c.Messages))
	for _, m := range c.Messages {
		out[m.Key] = m.Text
	}
	return out
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.breaker.max_requests", 1)
	v.SetDefault("api.breaker.interval", "60s")
	v.SetDefault("api.breaker.timeout", "30s")
	v.SetDefault("api.breaker.failures", 5)

	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.max_retries", 5)
	v.SetDefault("realtime.initial_backoff", "500ms")
	v.SetDefault("realtime.max_backoff", "30s")
	v.SetDefault("realtime.handshake_timeout", "10s")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", defaultStorageDir())
	v.SetDefault("storage.namespace", "session")
	v.SetDefault("storage.redis.addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "session-sync:")

	v.SetDefault("profile.cache_size", 128)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.otel", false)

	v.SetDefault("view.addr", "127.0.0.1:7070")
	v.SetDefault("view.poll_timeout", "30s")
}

func defaultStorageDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, DefaultName)
	}
	return "." + DefaultName
}
