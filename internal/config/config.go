// Package config loads the marginx platform configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host" json:"host" mapstructure:"host"`
	Port int    `yaml:"port" json:"port" mapstructure:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"` // seconds
}

// RedisConfig represents the optional parameter-set cache backend
type RedisConfig struct {
	Address  string `yaml:"address" json:"address" mapstructure:"address"`
	Password string `yaml:"password" json:"password" mapstructure:"password"`
	DB       int    `yaml:"db" json:"db" mapstructure:"db"`
}

// KafkaConfig represents the optional calculation event stream
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" json:"topic" mapstructure:"topic"`
}

// MarginConfig represents margin-engine specific settings
type MarginConfig struct {
	// ParameterFile is the YAML calibration file used to seed the initial
	// parameter set when the store is empty.
	ParameterFile     string `yaml:"parameter_file" json:"parameter_file" mapstructure:"parameter_file"`
	ReportingCurrency string `yaml:"reporting_currency" json:"reporting_currency" mapstructure:"reporting_currency"`
}

// Config represents the application configuration
type Config struct {
	Environment string         `yaml:"environment" json:"environment" mapstructure:"environment"`
	LogLevel    string         `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	Server      ServerConfig   `yaml:"server" json:"server" mapstructure:"server"`
	Database    DatabaseConfig `yaml:"database" json:"database" mapstructure:"database"`
	Redis       RedisConfig    `yaml:"redis" json:"redis" mapstructure:"redis"`
	Kafka       KafkaConfig    `yaml:"kafka" json:"kafka" mapstructure:"kafka"`
	Margin      MarginConfig   `yaml:"margin" json:"margin" mapstructure:"margin"`
}

// LoadConfig loads configuration from an optional YAML file plus MARGINX_*
// environment variables. Missing files are not an error; defaults apply.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("MARGINX")

	setDefaults(v)

	if len(paths) == 0 {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	} else {
		for _, p := range paths {
			v.SetConfigFile(p)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", p, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("kafka.topic", "margin.calculations")
	v.SetDefault("margin.reporting_currency", "USD")
}
