package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	Secret       string        `mapstructure:"secret"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	Backpressure string        `mapstructure:"backpressure"`
	WS           WSConfig      `mapstructure:"ws"`
	Rate         RateConfig    `mapstructure:"rate"`
	Auth         AuthConfig    `mapstructure:"auth"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
}

type WSConfig struct {
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type AuthConfig struct {
	// JWTSecret enables token verification on the websocket endpoint.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./public")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("backpressure", "drop")
	v.SetDefault("ws.read_limit", 100<<20)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.allowed_origins", []string{"*"})
	v.SetDefault("rate.limit", 200)
	v.SetDefault("rate.interval", "1s")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("metrics.enabled", true)
}

// Load reads config/config.<CONFIG_ENV>.yaml, then environment variables
// (CODESYNC_WS_READ_LIMIT for ws.read_limit), then any flags bound from fs.
func Load(fs *pflag.FlagSet) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	SetDefaults(v)

	v.SetEnvPrefix("CODESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WS.PingPeriod <= 0 || c.WS.PingPeriod >= c.WS.PongWait {
		return fmt.Errorf("ws.ping_period (%s) must be shorter than ws.pong_wait (%s)", c.WS.PingPeriod, c.WS.PongWait)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	if c.Rate.Limit <= 0 || c.Rate.Interval <= 0 {
		return fmt.Errorf("rate.limit and rate.interval must be positive")
	}
	if c.Backpressure != "drop" && c.Backpressure != "kick" {
		return fmt.Errorf("unknown backpressure policy %q", c.Backpressure)
	}
	return nil
}

// ParseLevel falls back to info for unknown or empty levels.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WatchLogLevel re-applies log_level whenever the config file changes.
// Only the log level is hot-reloaded; everything else needs a restart.
func WatchLogLevel(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		lvl := ParseLevel(v.GetString("log_level"))
		zerolog.SetGlobalLevel(lvl)
		log.Info().Str("module", "config").Str("file", e.Name).Str("level", lvl.String()).Msg("config changed")
	})
	v.WatchConfig()
}
