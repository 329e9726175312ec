package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB struct {
		DSN      string `mapstructure:"dsn"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"db"`

	API struct {
		Listen        string `mapstructure:"listen"`
		MaxFrameBytes int64  `mapstructure:"max_frame_bytes"`
		DedupeWindow  int    `mapstructure:"dedupe_window"`
	} `mapstructure:"api"`

	Store struct {
		MemoryMax int `mapstructure:"memory_max"`
	} `mapstructure:"store"`

	Alerts struct {
		QuietThresholdSeconds float64       `mapstructure:"quiet_threshold_seconds"`
		CheckIntervalSeconds  float64       `mapstructure:"check_interval_seconds"`
		QuietThreshold        time.Duration `mapstructure:"-"`
		CheckInterval         time.Duration `mapstructure:"-"`
	} `mapstructure:"alerts"`

	WS struct {
		SendBuffer       int           `mapstructure:"send_buffer"`
		WriteWaitSeconds int           `mapstructure:"write_wait_seconds"`
		PongWaitSeconds  int           `mapstructure:"pong_wait_seconds"`
		MaxMessageBytes  int64         `mapstructure:"max_message_bytes"`
		AllowedOrigins   []string      `mapstructure:"allowed_origins"`
		WriteWait        time.Duration `mapstructure:"-"`
		PongWait         time.Duration `mapstructure:"-"`
	} `mapstructure:"ws"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.max_frame_bytes", 8<<20)
	v.SetDefault("api.dedupe_window", 256)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("store.memory_max", 10000)
	v.SetDefault("alerts.quiet_threshold_seconds", 30)
	v.SetDefault("alerts.check_interval_seconds", 5)
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.write_wait_seconds", 10)
	v.SetDefault("ws.pong_wait_seconds", 60)
	v.SetDefault("ws.max_message_bytes", 64<<10)
	v.SetDefault("ws.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	// Env overrides
	v.SetEnvPrefix("SENTRYHUB")
	v.AutomaticEnv()
	_ = v.BindEnv("db.dsn", "SENTRYHUB_DB_DSN")
	_ = v.BindEnv("api.listen", "SENTRYHUB_API_LISTEN")
	_ = v.BindEnv("log.level", "SENTRYHUB_LOG_LEVEL")
	_ = v.BindEnv("alerts.quiet_threshold_seconds", "SENTRYHUB_ALERTS_QUIET_THRESHOLD_SECONDS")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.derive()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the configuration Load produces with no file and no env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	c.derive()
	return &c
}

func (c *Config) derive() {
	c.Alerts.QuietThreshold = seconds(c.Alerts.QuietThresholdSeconds)
	c.Alerts.CheckInterval = seconds(c.Alerts.CheckIntervalSeconds)
	c.WS.WriteWait = time.Duration(c.WS.WriteWaitSeconds) * time.Second
	c.WS.PongWait = time.Duration(c.WS.PongWaitSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Alerts.QuietThreshold <= 0 {
		return fmt.Errorf("alerts.quiet_threshold_seconds must be positive")
	}
	if c.Alerts.CheckInterval <= 0 {
		return fmt.Errorf("alerts.check_interval_seconds must be positive")
	}
	if c.WS.SendBuffer < 1 {
		return fmt.Errorf("ws.send_buffer must be at least 1")
	}
	if c.WS.PongWait <= 0 || c.WS.WriteWait <= 0 {
		return fmt.Errorf("ws.pong_wait_seconds and ws.write_wait_seconds must be positive")
	}
	if c.API.MaxFrameBytes <= 0 {
		return fmt.Errorf("api.max_frame_bytes must be positive")
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
