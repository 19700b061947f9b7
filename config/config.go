// Package config handles meshtel configuration loading: JSON file layers,
// environment variable overrides and validation.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	MQTT     MQTTConfig     `json:"mqtt"`
	Topics   TopicsConfig   `json:"topics"`
	Database DatabaseConfig `json:"database"`
	HTTP     HTTPConfig     `json:"http"`
}

// MQTTConfig defines the broker connection
type MQTTConfig struct {
	BrokerURL string        `json:"broker_url"` // e.g. tcp://localhost:1883
	ClientID  string        `json:"client_id"`
	Username  string        `json:"username,omitempty"`
	Password  string        `json:"password,omitempty"`
	KeepAlive time.Duration `json:"keep_alive,omitempty"`
	QoS       byte          `json:"qos"`
}

// TopicsConfig defines the subscribed topic hierarchy.
// Gateway and Temperature are wildcard filters; when left empty they are
// derived from Base as "<base>/gateway/#" and "<base>/temperature/#" so that
// per-device sub-topics match.
type TopicsConfig struct {
	Base        string `json:"base"`
	Gateway     string `json:"gateway,omitempty"`
	Temperature string `json:"temperature,omitempty"`
}

// DatabaseConfig defines the sqlite reading store
type DatabaseConfig struct {
	Path string `json:"path"`
}

// HTTPConfig defines the API server
type HTTPConfig struct {
	Addr            string        `json:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `json:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty"`
}

// Default returns the built-in configuration, matching a local broker and an
// on-disk sqlite database.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			BrokerURL: "tcp://localhost:1883",
			ClientID:  "meshtel",
			KeepAlive: 30 * time.Second,
			QoS:       1,
		},
		Topics: TopicsConfig{
			Base: "/readings",
		},
		Database: DatabaseConfig{
			Path: "data/meshtel.db",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: "MESHTEL"}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// LoadFile loads configuration from a single file on top of the defaults.
// An empty path loads defaults and environment overrides only.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = nil
	if path != "" {
		l.layers = []string{path}
	}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	l.applyEnvOverrides(cfg)
	cfg.applyDerivedDefaults()

	return cfg, nil
}

// applyEnvOverrides applies MESHTEL_* environment variables on top of the
// loaded configuration
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := l.env("BROKER_URL"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
	if v := l.env("CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := l.env("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := l.env("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := l.env("BASE_TOPIC"); v != "" {
		cfg.Topics.Base = v
		// Wildcard filters follow the base unless pinned explicitly
		cfg.Topics.Gateway = ""
		cfg.Topics.Temperature = ""
	}
	if v := l.env("DATABASE"); v != "" {
		cfg.Database.Path = v
	}
	if v := l.env("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}

func (l *Loader) env(key string) string {
	return os.Getenv(l.envPrefix + "_" + key)
}

// applyDerivedDefaults fills the wildcard topic filters from the base topic
func (c *Config) applyDerivedDefaults() {
	if c.Topics.Gateway == "" {
		c.Topics.Gateway = c.Topics.Base + "/gateway/#"
	}
	if c.Topics.Temperature == "" {
		c.Topics.Temperature = c.Topics.Base + "/temperature/#"
	}
}

// Validate checks the configuration for required fields and well-formed values
func (c *Config) Validate() error {
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}
	if !strings.Contains(c.MQTT.BrokerURL, "://") {
		return fmt.Errorf("mqtt.broker_url must include a scheme (tcp://, ssl://, ws://): %s", c.MQTT.BrokerURL)
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Topics.Base == "" {
		return fmt.Errorf("topics.base is required")
	}
	if c.Topics.Gateway == "" || c.Topics.Temperature == "" {
		return fmt.Errorf("topic filters must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
		return fmt.Errorf("http.addr is not a valid host:port: %s", c.HTTP.Addr)
	}
	return nil
}
