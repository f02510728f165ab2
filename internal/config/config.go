package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type RTC struct {
	MinPort     uint16 `mapstructure:"min_port"`
	MaxPort     uint16 `mapstructure:"max_port"`
	AnnouncedIP string `mapstructure:"announced_ip"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	ReadLimit   int64         `mapstructure:"read_limit"`
	WriteWait   time.Duration `mapstructure:"write_wait"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
	SendBuffer  int           `mapstructure:"send_buffer"`

	MaxUsers           int           `mapstructure:"max_users"`
	MaxRooms           int           `mapstructure:"max_rooms"`
	ReapInterval       time.Duration `mapstructure:"reap_interval"`
	ChatHistorySize    int           `mapstructure:"chat_history_size"`
	ChatRateLimit      int           `mapstructure:"chat_rate_limit"`
	ChatRateInterval   time.Duration `mapstructure:"chat_rate_interval"`
	BackpressurePolicy string        `mapstructure:"backpressure_policy"`

	AllowedOrigins []string    `mapstructure:"allowed_origins"`
	ICEServers     []ICEServer `mapstructure:"ice_servers"`
	RTC            RTC         `mapstructure:"rtc"`
}

func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3001)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("write_wait", "5s")
	v.SetDefault("ping_period", "25s")
	v.SetDefault("pong_timeout", "45s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("max_users", 10)
	v.SetDefault("max_rooms", 100)
	v.SetDefault("reap_interval", "5m")
	v.SetDefault("chat_history_size", 100)
	v.SetDefault("chat_rate_limit", 20)
	v.SetDefault("chat_rate_interval", "10s")
	v.SetDefault("backpressure_policy", "log")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rtc.min_port", 40000)
	v.SetDefault("rtc.max_port", 49999)
	v.SetDefault("rtc.announced_ip", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) over the
// defaults. SFU_* environment variables override both; an optional .env
// file is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("SFU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("addr", cfg.Addr()).Int("max_rooms", cfg.MaxRooms).Int("max_users", cfg.MaxUsers).Msg("config ready")
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.PongTimeout <= c.PingPeriod {
		corrected := c.PingPeriod * 9 / 5
		log.Warn().Str("module", "config").Dur("ping_period", c.PingPeriod).Dur("pong_timeout", c.PongTimeout).Dur("corrected", corrected).Msg("pong_timeout must exceed ping_period")
		c.PongTimeout = corrected
	}
	if c.RTC.MaxPort < c.RTC.MinPort {
		c.RTC.MinPort, c.RTC.MaxPort = c.RTC.MaxPort, c.RTC.MinPort
	}
	// Comma separated values arrive this way from the environment.
	if len(c.AllowedOrigins) == 1 && strings.Contains(c.AllowedOrigins[0], ",") {
		c.AllowedOrigins = strings.Split(c.AllowedOrigins[0], ",")
	}
}
