package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sensorsim/internal/emitter"
	"github.com/sensorsim/internal/logging"
	"github.com/sensorsim/internal/publisher"
	"github.com/sensorsim/internal/sensors"
	"gopkg.in/yaml.v3"
)

const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// Broker holds everything needed to reach the message bus.
type Broker struct {
	Transport string `yaml:"transport" env:"BROKER_TRANSPORT"`
	Host      string `yaml:"host" env:"BROKER_HOST,MQTT_HOST"`
	Port      int    `yaml:"port" env:"BROKER_PORT,MQTT_PORT"`
	Topic     string `yaml:"topic" env:"TOPIC"`
	QoS       int    `yaml:"qos" env:"QOS"`

	ConnectTimeoutSeconds          float64 `yaml:"connectTimeoutSeconds" env:"CONNECT_TIMEOUT_SECONDS"`
	ConnectRetryAttempts           int     `yaml:"connectRetryAttempts" env:"CONNECT_RETRY_ATTEMPTS"`
	ConnectRetryBackoffBaseSeconds float64 `yaml:"connectRetryBackoffBaseSeconds" env:"CONNECT_RETRY_BACKOFF_BASE_SECONDS"`
	ConnectRetryBackoffCapSeconds  float64 `yaml:"connectRetryBackoffCapSeconds" env:"CONNECT_RETRY_BACKOFF_CAP_SECONDS"`
	PublishTimeoutSeconds          float64 `yaml:"publishTimeoutSeconds" env:"PUBLISH_TIMEOUT_SECONDS"`
}

// Config holds all configuration parameters for the sensor publisher
type Config struct {
	Broker Broker `yaml:"broker"`

	// CyclesToRun is a non-negative integer or "unbounded".
	CyclesToRun          string  `yaml:"cyclesToRun" env:"CYCLES_TO_RUN"`
	CycleIntervalSeconds float64 `yaml:"cycleIntervalSeconds" env:"CYCLE_INTERVAL_SECONDS"`

	SensorsPerClass          int            `yaml:"sensorsPerClass" env:"SENSORS_PER_CLASS"`
	SensorsPerClassOverrides map[string]int `yaml:"sensorsPerClassOverrides,omitempty" env:"SENSORS_PER_CLASS_OVERRIDES"`

	// StatusAddr enables the HTTP status API when set, e.g. ":8080".
	StatusAddr string `yaml:"statusAddr,omitempty" env:"STATUS_ADDR"`

	Logging logging.Config `yaml:"logging"`

	// Source is the file the configuration was read from, or "environment".
	Source string `yaml:"-"`
}

// Error is a configuration problem detected before anything connects.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Default returns the configuration used for anything a file or the
// environment leaves unset.
func Default() Config {
	return Config{
		Broker: Broker{
			Transport:                      TransportMQTT,
			Host:                           "mqtt",
			Port:                           1883,
			Topic:                          publisher.DefaultTopic,
			ConnectTimeoutSeconds:          60,
			ConnectRetryAttempts:           3,
			ConnectRetryBackoffBaseSeconds: 1,
			ConnectRetryBackoffCapSeconds:  30,
			PublishTimeoutSeconds:          5,
		},
		CyclesToRun:          "2",
		CycleIntervalSeconds: 2.0,
		SensorsPerClass:      sensors.DefaultSensorsPerClass,
		Logging:              logging.Config{Format: "console", Level: "info"},
	}
}

// Load reads configuration from the file at path and applies environment
// variable overrides. A missing file falls back to environment and defaults.
// Defaults are seeded before decoding so an explicit 0 in the file is kept.
func Load(path string) (*Config, error) {
	cfg := Default()

	_, statErr := os.Stat(path)
	switch {
	case path == "" || errors.Is(statErr, os.ErrNotExist):
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, &Error{Reason: "failed to read environment", Err: err}
		}
		cfg.Source = "environment"
	default:
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("failed to read config from %s", path), Err: err}
		}
		cfg.Source = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all configuration parameters are valid
func (c *Config) Validate() error {
	b := &c.Broker

	b.Transport = strings.ToLower(strings.TrimSpace(b.Transport))
	if b.Transport != TransportMQTT && b.Transport != TransportKafka {
		return invalid("broker.transport", "must be %q or %q, got %q", TransportMQTT, TransportKafka, b.Transport)
	}
	if strings.TrimSpace(b.Host) == "" {
		return invalid("broker.host", "cannot be empty")
	}
	if b.Port <= 0 || b.Port > 65535 {
		return invalid("broker.port", "must be between 1 and 65535, got %d", b.Port)
	}
	if strings.TrimSpace(b.Topic) == "" {
		return invalid("broker.topic", "cannot be empty")
	}
	if b.QoS != 0 && b.QoS != 1 {
		return invalid("broker.qos", "must be 0 (at-most-once) or 1 (at-least-once), got %d", b.QoS)
	}
	if b.ConnectTimeoutSeconds <= 0 {
		return invalid("broker.connectTimeoutSeconds", "must be positive, got %g", b.ConnectTimeoutSeconds)
	}
	if b.ConnectRetryAttempts < 1 {
		return invalid("broker.connectRetryAttempts", "must be at least 1, got %d", b.ConnectRetryAttempts)
	}
	if b.ConnectRetryBackoffBaseSeconds <= 0 {
		return invalid("broker.connectRetryBackoffBaseSeconds", "must be positive, got %g", b.ConnectRetryBackoffBaseSeconds)
	}
	if b.ConnectRetryBackoffCapSeconds < b.ConnectRetryBackoffBaseSeconds {
		return invalid("broker.connectRetryBackoffCapSeconds", "must not be below the base (%g), got %g",
			b.ConnectRetryBackoffBaseSeconds, b.ConnectRetryBackoffCapSeconds)
	}
	if b.PublishTimeoutSeconds <= 0 {
		return invalid("broker.publishTimeoutSeconds", "must be positive, got %g", b.PublishTimeoutSeconds)
	}

	if _, err := c.Cycles(); err != nil {
		return err
	}
	if c.CycleIntervalSeconds < 0 {
		return invalid("cycleIntervalSeconds", "must not be negative, got %g", c.CycleIntervalSeconds)
	}
	if c.SensorsPerClass < 0 {
		return invalid("sensorsPerClass", "must not be negative, got %d", c.SensorsPerClass)
	}
	if _, err := c.classOverrides(); err != nil {
		return err
	}

	if err := logging.Validate(&c.Logging); err != nil {
		return &Error{Field: "logging", Err: err}
	}
	return nil
}

// Cycles returns the number of cycles to run, or emitter.Unbounded.
func (c *Config) Cycles() (int, error) {
	raw := strings.ToLower(strings.TrimSpace(c.CyclesToRun))
	switch raw {
	case "unbounded", "forever", "infinite":
		return emitter.Unbounded, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("cyclesToRun", "must be a non-negative integer or \"unbounded\", got %q", c.CyclesToRun)
	}
	if n < 0 {
		return 0, invalid("cyclesToRun", "must not be negative, got %d", n)
	}
	return n, nil
}

func (c *Config) classOverrides() (map[sensors.Class]int, error) {
	out := make(map[sensors.Class]int, len(c.SensorsPerClassOverrides))
	for key, n := range c.SensorsPerClassOverrides {
		class, err := sensors.ParseClass(key)
		if err != nil {
			return nil, &Error{Field: "sensorsPerClassOverrides", Err: err}
		}
		if n < 0 {
			return nil, invalid("sensorsPerClassOverrides", "%s must not be negative, got %d", key, n)
		}
		out[class] = n
	}
	return out, nil
}

// Registry builds the sensor registry. Call only on a validated config.
func (c *Config) Registry() *sensors.Registry {
	overrides, _ := c.classOverrides()
	return sensors.NewRegistry(c.SensorsPerClass, overrides)
}

// SchedulerConfig converts the cycle settings. Call only on a validated config.
func (c *Config) SchedulerConfig() emitter.Config {
	cycles, _ := c.Cycles()
	return emitter.Config{Cycles: cycles, Interval: seconds(c.CycleIntervalSeconds)}
}

func (c *Config) RetryPolicy() publisher.RetryPolicy {
	return publisher.RetryPolicy{
		Attempts: c.Broker.ConnectRetryAttempts,
		Base:     seconds(c.Broker.ConnectRetryBackoffBaseSeconds),
		Cap:      seconds(c.Broker.ConnectRetryBackoffCapSeconds),
	}
}

func (b *Broker) ConnectTimeout() time.Duration { return seconds(b.ConnectTimeoutSeconds) }

func (b *Broker) PublishTimeout() time.Duration { return seconds(b.PublishTimeoutSeconds) }

// Address is host:port of the broker.
func (b *Broker) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
