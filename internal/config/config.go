package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// StorePostgres selects the Postgres-backed store.
	StorePostgres = "postgres"
	// StoreMemory selects the in-memory store for local runs.
	StoreMemory = "memory"
)

// MQTTConfig configures the MQTT transport adapter. An empty broker disables
// the adapter entirely (REST-only ingestion).
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	QoS           byte   `yaml:"qos"`
	SensorTopic   string `yaml:"sensor_topic"`
	StatusTopic   string `yaml:"status_topic"`
	RotationTopic string `yaml:"rotation_topic"`
	CommandTopic  string `yaml:"command_topic"`
}

// AlertsConfig tunes the event deriver.
type AlertsConfig struct {
	VibrationThreshold float64       `yaml:"vibration_threshold"`
	TiltThreshold      float64       `yaml:"tilt_threshold"`
	Cooldown           time.Duration `yaml:"cooldown"`
}

// HealthConfig is the heartbeat recency threshold pair.
type HealthConfig struct {
	OKWithin   time.Duration `yaml:"ok_within"`
	WarnWithin time.Duration `yaml:"warn_within"`
}

// QueryConfig tunes the aggregation/query engine.
type QueryConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	DefaultRange time.Duration `yaml:"default_range"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full service configuration.
type Config struct {
	HTTPAddr    string        `yaml:"http_addr"`
	Store       string        `yaml:"store"`
	DatabaseURL string        `yaml:"database_url"`
	DBTimeout   time.Duration `yaml:"db_timeout"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
	Alerts      AlertsConfig  `yaml:"alerts"`
	Health      HealthConfig  `yaml:"health"`
	Query       QueryConfig   `yaml:"query"`
	Log         LogConfig     `yaml:"log"`
}

// Load builds configuration from environment variables, overridden by an
// optional YAML file pointed at by SAFEWATCH_CONFIG.
func Load() (Config, error) {
	// MQTT QoS must be 0-2; byte() would truncate an out-of-range env value.
	mqttQoS := getenvIntDefault("MQTT_QOS", 1)
	if mqttQoS < 0 || mqttQoS > 2 {
		mqttQoS = 1
	}

	cfg := Config{
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		Store:       getenvDefault("STORE", StorePostgres),
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		DBTimeout:   getenvDuration("DB_TIMEOUT", 5*time.Second),
		MQTT: MQTTConfig{
			Broker:        os.Getenv("MQTT_BROKER"),
			ClientID:      getenvDefault("MQTT_CLIENT_ID", "safewatch-cloud"),
			Username:      os.Getenv("MQTT_USERNAME"),
			Password:      os.Getenv("MQTT_PASSWORD"),
			QoS:           byte(mqttQoS),
			SensorTopic:   getenvDefault("MQTT_SENSOR_TOPIC", "safewatch/telemetry/sensor"),
			StatusTopic:   getenvDefault("MQTT_STATUS_TOPIC", "safewatch/telemetry/status"),
			RotationTopic: getenvDefault("MQTT_ROTATION_TOPIC", "safewatch/telemetry/rotation"),
			CommandTopic:  getenvDefault("MQTT_COMMAND_TOPIC", "safewatch/commands"),
		},
		Alerts: AlertsConfig{
			VibrationThreshold: getenvFloatDefault("ALERT_VIBRATION_THRESHOLD", 3000),
			TiltThreshold:      getenvFloatDefault("ALERT_TILT_THRESHOLD", 45),
			Cooldown:           getenvDuration("ALERT_COOLDOWN", 5*time.Second),
		},
		Health: HealthConfig{
			OKWithin:   getenvDuration("HEALTH_OK_WITHIN", 5*time.Second),
			WarnWithin: getenvDuration("HEALTH_WARN_WITHIN", 30*time.Second),
		},
		Query: QueryConfig{
			Timeout:      getenvDuration("QUERY_TIMEOUT", 10*time.Second),
			DefaultRange: getenvDuration("QUERY_DEFAULT_RANGE", 30*24*time.Hour),
		},
		Log: LogConfig{
			Level:  getenvDefault("LOG_LEVEL", "info"),
			Format: getenvDefault("LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv("SAFEWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return errors.New("config: store must be postgres or memory")
	}
	if c.Health.WarnWithin <= c.Health.OKWithin {
		return errors.New("config: health warn threshold must exceed ok threshold")
	}
	if c.Alerts.Cooldown <= 0 {
		return errors.New("config: alert cooldown must be positive")
	}
	if c.MQTT.QoS > 2 {
		return errors.New("config: mqtt qos must be 0, 1 or 2")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
