package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	Engine       EngineConfig
	Reconciler   ReconcilerConfig
	StatusPoller StatusPollerConfig
	Static       StaticConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// EngineConfig points at the external automation engine. APIURL covers the
// REST surface, WebhookURL is the base the webhook suffix is appended to.
type EngineConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	APIKey         string        `mapstructure:"api_key"`
	TriggerTimeout time.Duration `mapstructure:"trigger_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ReconcilerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StatusPollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StaticConfig struct {
	Dir                 string `mapstructure:"dir"`
	DefaultWorkflowFile string `mapstructure:"default_workflow_file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/jobpulse/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("JOBPULSE")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.metrics_port", 9091)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("auth.token_ttl", "30m")
	viper.SetDefault("engine.api_url", "http://localhost:5678")
	viper.SetDefault("engine.trigger_timeout", "30s")
	viper.SetDefault("engine.request_timeout", "10s")
	viper.SetDefault("reconciler.interval", "15m")
	viper.SetDefault("statuspoller.interval", "30s")
	viper.SetDefault("static.dir", "./static")
	viper.SetDefault("static.default_workflow_file", "automation.json")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
