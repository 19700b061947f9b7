package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	cfg.applyDerivedDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "/readings/gateway/#", cfg.Topics.Gateway)
	assert.Equal(t, "/readings/temperature/#", cfg.Topics.Temperature)
}

func TestLoadFile_MergesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"mqtt": {"broker_url": "tcp://broker.example.com:1883", "client_id": "collector-1", "qos": 1},
		"topics": {"base": "/mesh"},
		"database": {"path": "/var/lib/meshtel/db.sqlite"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tcp://broker.example.com:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "collector-1", cfg.MQTT.ClientID)
	assert.Equal(t, "/mesh/gateway/#", cfg.Topics.Gateway)
	assert.Equal(t, "/mesh/temperature/#", cfg.Topics.Temperature)
	assert.Equal(t, "/var/lib/meshtel/db.sqlite", cfg.Database.Path)
	// untouched sections keep defaults
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadFile_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MESHTEL_BROKER_URL", "tcp://env-broker:1883")
	t.Setenv("MESHTEL_BASE_TOPIC", "/envbase")
	t.Setenv("MESHTEL_DATABASE", "/tmp/env.db")
	t.Setenv("MESHTEL_HTTP_ADDR", ":9090")

	cfg, err := NewLoader().LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "/envbase/gateway/#", cfg.Topics.Gateway)
	assert.Equal(t, "/envbase/temperature/#", cfg.Topics.Temperature)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.applyDerivedDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty broker url", func(c *Config) { c.MQTT.BrokerURL = "" }},
		{"broker url without scheme", func(c *Config) { c.MQTT.BrokerURL = "localhost:1883" }},
		{"empty client id", func(c *Config) { c.MQTT.ClientID = "" }},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"empty base topic", func(c *Config) { c.Topics.Base = "" }},
		{"empty gateway filter", func(c *Config) { c.Topics.Gateway = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"bad http addr", func(c *Config) { c.HTTP.Addr = "no-port" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
