// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		DataPort    int      `mapstructure:"data_port"`
		UIPort      int      `mapstructure:"ui_port"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Anomaly  AnomalyConfig  `mapstructure:"anomaly"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	History  struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"history"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Influx InfluxConfig `mapstructure:"influx"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"backend"` // memory | mqtt
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	QoS      byte   `mapstructure:"qos"`
}

// Band is the allowed range for one metric. After Load a nil bound means that
// side is not checked.
type Band struct {
	Low         *float64 `mapstructure:"low"`
	High        *float64 `mapstructure:"high"`
	DisableLow  bool     `mapstructure:"disable_low"`
	DisableHigh bool     `mapstructure:"disable_high"`
}

type AnomalyConfig struct {
	Thresholds struct {
		Flow        Band `mapstructure:"flow"`
		Pressure    Band `mapstructure:"pressure"`
		Temperature Band `mapstructure:"temperature"`
	} `mapstructure:"thresholds"`
	Heuristics HeuristicsConfig `mapstructure:"heuristics"`
}

type HeuristicsConfig struct {
	NightFlow      float64 `mapstructure:"night_flow"`
	LowPressure    float64 `mapstructure:"low_pressure"`
	BurstFlow      float64 `mapstructure:"burst_flow"`
	QuietStartHour int     `mapstructure:"quiet_start_hour"`
	QuietEndHour   int     `mapstructure:"quiet_end_hour"`
}

type AlertingConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rooms    []string      `mapstructure:"rooms"`
	Notifier string        `mapstructure:"notifier"` // websocket | log
}

type AuthConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	JWTExpiration int      `mapstructure:"jwt_expiration"` // in minutes
	APIKeys       []string `mapstructure:"api_keys"`
	Users         []User   `mapstructure:"users"`
	ServiceUser   string   `mapstructure:"service_user"`
	ServicePass   string   `mapstructure:"service_password"`
}

type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// Load reads config.yaml from dir, an optional .env next to it, and
// LEAKWATCH_* environment overrides.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil {
		log.Println("[config] no .env file found, relying on system environment variables")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("leakwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("[config] warning: no config file in %s, using defaults", dir)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyBandDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.data_port", 8080)
	v.SetDefault("server.ui_port", 8081)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.broker", "tcp://localhost:1883")
	v.SetDefault("store.client_id", "leakwatch-gateway")
	v.SetDefault("store.qos", 1)

	v.SetDefault("anomaly.heuristics.night_flow", 0.1)
	v.SetDefault("anomaly.heuristics.low_pressure", 0.8) // PSI, inside the 0.5-3 band
	v.SetDefault("anomaly.heuristics.burst_flow", 5)
	v.SetDefault("anomaly.heuristics.quiet_start_hour", 23)
	v.SetDefault("anomaly.heuristics.quiet_end_hour", 5)

	v.SetDefault("alerting.cooldown", 5*time.Minute)
	v.SetDefault("alerting.notifier", "websocket")

	v.SetDefault("history.capacity", 120)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiration", 60)
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.service_user", "gateway")
	v.SetDefault("auth.service_password", "")

	// secrets usually arrive through LEAKWATCH_* variables, which viper only
	// binds for known keys
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "leakwatch")
}

// DefaultThresholds are used for any bound missing from the config file.
var DefaultThresholds = struct {
	Flow, Pressure, Temperature Band
}{
	Flow:        Band{Low: ptr(0), High: ptr(11)},
	Pressure:    Band{Low: ptr(0.5), High: ptr(3)},
	Temperature: Band{Low: ptr(5), High: ptr(30)},
}

func applyBandDefaults(cfg *Config) {
	fill := func(b *Band, def Band) {
		if b.Low == nil {
			b.Low = def.Low
		}
		if b.High == nil {
			b.High = def.High
		}
		if b.DisableLow {
			b.Low = nil
		}
		if b.DisableHigh {
			b.High = nil
		}
	}
	t := &cfg.Anomaly.Thresholds
	fill(&t.Flow, DefaultThresholds.Flow)
	fill(&t.Pressure, DefaultThresholds.Pressure)
	fill(&t.Temperature, DefaultThresholds.Temperature)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "mqtt":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Alerting.Notifier {
	case "websocket", "log":
	default:
		return fmt.Errorf("unknown notifier %q", c.Alerting.Notifier)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set (LEAKWATCH_AUTH_JWT_SECRET)")
	}
	if c.Alerting.Cooldown < 0 {
		return errors.New("alerting.cooldown must not be negative")
	}
	if c.History.Capacity <= 0 {
		return errors.New("history.capacity must be positive")
	}
	for name, b := range map[string]Band{
		"flow":        c.Anomaly.Thresholds.Flow,
		"pressure":    c.Anomaly.Thresholds.Pressure,
		"temperature": c.Anomaly.Thresholds.Temperature,
	} {
		if b.Low != nil && b.High != nil && *b.Low > *b.High {
			return fmt.Errorf("anomaly.thresholds.%s: low %.2f above high %.2f", name, *b.Low, *b.High)
		}
	}
	return nil
}

func ptr(v float64) *float64 { return &v }
