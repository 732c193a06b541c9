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
	PongWait   time.Duration `mapstructure:"pong_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Admin      AdminConfig  `mapstructure:"admin"`
	Auth       AuthConfig   `mapstructure:"auth"`
	Rooms      RoomsConfig  `mapstructure:"rooms"`
	Ledger     LedgerConfig `mapstructure:"ledger"`
	ICEServers []ICEServer  `mapstructure:"ice_servers"`
}

// AdminConfig holds the dashboard credentials. PasswordHash is a bcrypt
// hash and wins over the plain Password when both are set.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

type AuthConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RoomsConfig struct {
	BcryptCost         int           `mapstructure:"bcrypt_cost"`
	BackpressurePolicy string        `mapstructure:"backpressure_policy"`
	JoinRateLimit      int           `mapstructure:"join_rate_limit"`
	JoinRateWindow     time.Duration `mapstructure:"join_rate_window"`
}

type LedgerConfig struct {
	MaxQualitySamples    int           `mapstructure:"max_quality_samples"`
	SessionRetention     time.Duration `mapstructure:"session_retention"`
	OrphanTimeout        time.Duration `mapstructure:"orphan_timeout"`
	RoomMetricsRetention time.Duration `mapstructure:"room_metrics_retention"`
	ReclaimInterval      time.Duration `mapstructure:"reclaim_interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("auth.ttl", "24h")
	v.SetDefault("auth.sweep_interval", "15m")

	v.SetDefault("rooms.bcrypt_cost", 10)
	v.SetDefault("rooms.backpressure_policy", "drop")
	v.SetDefault("rooms.join_rate_limit", 10)
	v.SetDefault("rooms.join_rate_window", "1m")

	v.SetDefault("ledger.max_quality_samples", 50)
	v.SetDefault("ledger.session_retention", "72h")
	v.SetDefault("ledger.orphan_timeout", "12h")
	v.SetDefault("ledger.room_metrics_retention", "168h")
	v.SetDefault("ledger.reclaim_interval", "10m")

	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Load reads config/config.<CONFIG_ENV>.yaml, dev by default.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName over the defaults. A missing file is not an error.
// HUDDLE_* variables override file values, e.g. HUDDLE_ADMIN_PASSWORD.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("HUDDLE")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PingPeriod >= c.PongWait {
		return fmt.Errorf("ping_period %s must be shorter than pong_wait %s", c.PingPeriod, c.PongWait)
	}
	if c.Ledger.MaxQualitySamples <= 0 {
		return fmt.Errorf("ledger.max_quality_samples must be positive")
	}
	if c.Auth.TTL <= 0 || c.Auth.SweepInterval <= 0 {
		return fmt.Errorf("auth.ttl and auth.sweep_interval must be positive")
	}
	if c.Ledger.ReclaimInterval <= 0 {
		return fmt.Errorf("ledger.reclaim_interval must be positive")
	}
	if c.Rooms.JoinRateLimit > 0 && c.Rooms.JoinRateWindow <= 0 {
		return fmt.Errorf("rooms.join_rate_window must be positive when join_rate_limit is set")
	}
	if c.Secret == "" && c.Mode == "release" {
		return fmt.Errorf("secret is required in release mode")
	}
	return nil
}
