package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Signal    SignalConfig    `mapstructure:"signal"`
}

type StorageConfig struct {
	Driver     string        `mapstructure:"driver"`
	RedisURL   string        `mapstructure:"redis_url"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	Required   bool          `mapstructure:"required"`
	RoomTTL    time.Duration `mapstructure:"room_ttl"`
}

type BroadcastConfig struct {
	Channel string `mapstructure:"channel"`
}

type RoomsConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	JanitorPeriod time.Duration `mapstructure:"janitor_period"`
}

type SignalConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

// Load reads config/config.<CONFIG_ENV>.yaml over built-in defaults.
// MUSICROOM_* environment variables override both, e.g.
// MUSICROOM_STORAGE_REDIS_URL.
func Load() (*Config, error) {
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

	setDefaults(v)

	v.SetEnvPrefix("musicroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("storage", cfg.Storage.Driver).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 4000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("storage.driver", "redis")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.sqlite_path", "./data/musicroom.db")
	v.SetDefault("storage.required", false)
	v.SetDefault("storage.room_ttl", "0s")

	v.SetDefault("broadcast.channel", "musicroom:broadcast")

	v.SetDefault("rooms.idle_timeout", "30m")
	v.SetDefault("rooms.janitor_period", "1m")

	v.SetDefault("signal.rate_limit", 20)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("signal.send_buffer", 32)
}
