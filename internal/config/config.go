package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendPostgres  = "postgres"
	BackendTimescale = "timescale"
	BackendInflux    = "influx"
	BackendFiles     = "files"
	BackendMemory    = "memory"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	OTA      OTAConfig
	Device   DeviceConfig
	Firmware FirmwareConfig
	History  HistoryConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Influx   InfluxConfig
	MQTT     MQTTConfig
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	SendBuffer      int           `mapstructure:"send_buffer"`
}

type OTAConfig struct {
	ChunkDelay  time.Duration `mapstructure:"chunk_delay"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type DeviceConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Port    int           `mapstructure:"port"`
}

type FirmwareConfig struct {
	Backend     string `mapstructure:"backend"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
	BasePath    string `mapstructure:"base_path"`
}

type HistoryConfig struct {
	Backend         string        `mapstructure:"backend"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type DatabaseConfig struct {
	TimescaleDB PostgresConfig `mapstructure:"timescaledb"`
	AppDB       PostgresConfig `mapstructure:"postgres_app"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

type MQTTConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Broker        string `mapstructure:"broker"`
	ClientID      string `mapstructure:"client_id"`
	ReadingsTopic string `mapstructure:"readings_topic"`
	SnapshotTopic string `mapstructure:"snapshot_topic"`
	QoS           byte   `mapstructure:"qos"`
	Retain        bool   `mapstructure:"retain"`
}

// Load initializes configuration from environment variables and config file
func Load() (*Config, error) {
	// A .env file is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("EMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.send_buffer", 256)

	v.SetDefault("ota.chunk_delay", "40ms")
	v.SetDefault("ota.send_timeout", "10s")

	v.SetDefault("device.timeout", "5s")
	v.SetDefault("device.port", 80)

	v.SetDefault("firmware.backend", BackendMemory)
	v.SetDefault("firmware.max_file_size", 10*1024*1024) // 10MB
	v.SetDefault("firmware.base_path", "./data/firmware")

	v.SetDefault("history.backend", BackendMemory)
	v.SetDefault("history.retention", "0s")
	v.SetDefault("history.cleanup_interval", "1h")

	// Database defaults
	for _, db := range []string{"timescaledb", "postgres_app"} {
		v.SetDefault("database."+db+".host", "")
		v.SetDefault("database."+db+".user", "")
		v.SetDefault("database."+db+".password", "")
		v.SetDefault("database."+db+".dbname", "")
	}
	v.SetDefault("database.timescaledb.port", 5432)
	v.SetDefault("database.timescaledb.sslmode", "disable")
	v.SetDefault("database.postgres_app.port", 5432)
	v.SetDefault("database.postgres_app.sslmode", "disable")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "emhub:")

	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "emhub")
	v.SetDefault("mqtt.readings_topic", "emhub/device/readings")
	v.SetDefault("mqtt.snapshot_topic", "emhub/snapshot")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	if config.OTA.ChunkDelay < 0 {
		return fmt.Errorf("ota chunk delay must not be negative")
	}
	if config.OTA.SendTimeout <= 0 {
		return fmt.Errorf("ota send timeout must be positive")
	}
	if config.Device.Timeout <= 0 {
		return fmt.Errorf("device timeout must be positive")
	}

	switch config.Firmware.Backend {
	case BackendMemory:
	case BackendFiles:
		if config.Firmware.BasePath == "" {
			return fmt.Errorf("firmware base path is required for the files backend")
		}
	case BackendPostgres:
		if config.Database.AppDB.Host == "" {
			return fmt.Errorf("postgres app host is required")
		}
	default:
		return fmt.Errorf("unknown firmware backend %q", config.Firmware.Backend)
	}

	switch config.History.Backend {
	case BackendMemory:
	case BackendTimescale:
		if config.Database.TimescaleDB.Host == "" {
			return fmt.Errorf("timescaledb host is required")
		}
	case BackendInflux:
		if config.Influx.Token == "" || config.Influx.Org == "" || config.Influx.Bucket == "" {
			return fmt.Errorf("influx token, org and bucket are required")
		}
	default:
		return fmt.Errorf("unknown history backend %q", config.History.Backend)
	}

	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	return nil
}
