package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
broadlink:
  hosts:
    - address: "192.168.1.50"
      mac: "34:EA:34:AA:BB:CC"
      type: 0x2737
  liveness:
    probe_interval: 10s
    max_retries: 4
  learning:
    ir_timeout: 15s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if len(cfg.Broadlink.Hosts) != 1 {
		t.Fatalf("len(Broadlink.Hosts) = %d, want 1", len(cfg.Broadlink.Hosts))
	}

	if cfg.Broadlink.Hosts[0].Type != 0x2737 {
		t.Errorf("Hosts[0].Type = %#x, want 0x2737", cfg.Broadlink.Hosts[0].Type)
	}

	if cfg.Broadlink.Liveness.ProbeInterval != 10*time.Second {
		t.Errorf("ProbeInterval = %v, want 10s", cfg.Broadlink.Liveness.ProbeInterval)
	}

	// Unset values keep their defaults
	if cfg.Broadlink.Liveness.ProbeTimeout != 3*time.Second {
		t.Errorf("ProbeTimeout = %v, want 3s", cfg.Broadlink.Liveness.ProbeTimeout)
	}

	if cfg.Broadlink.Learning.IRTimeout != 15*time.Second {
		t.Errorf("IRTimeout = %v, want 15s", cfg.Broadlink.Learning.IRTimeout)
	}

	if cfg.Broadlink.Learning.LockPause != 3*time.Second {
		t.Errorf("LockPause = %v, want 3s", cfg.Broadlink.Learning.LockPause)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "influx enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "host without address",
			mutate: func(c *Config) {
				c.Broadlink.Hosts = []HostConfig{{MAC: "34:ea:34:aa:bb:cc"}}
			},
			wantErr: true,
		},
		{
			name:    "zero probe interval",
			mutate:  func(c *Config) { c.Broadlink.Liveness.ProbeInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.Broadlink.Liveness.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "zero max retries allowed",
			mutate:  func(c *Config) { c.Broadlink.Liveness.MaxRetries = 0 },
			wantErr: false,
		},
		{
			name:    "zero dispatch timeout",
			mutate:  func(c *Config) { c.Broadlink.Dispatch.DefaultTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero sweep timeout",
			mutate:  func(c *Config) { c.Broadlink.Learning.SweepTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "api enabled without secret",
			mutate:  func(c *Config) { c.API.Enabled = true },
			wantErr: true,
		},
		{
			name: "api enabled with short secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "too-short"
			},
			wantErr: true,
		},
		{
			name: "api enabled with secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "0123456789abcdef0123456789abcdef"
			},
			wantErr: false,
		},
		{
			name: "api tls without cert",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.TLS.Enabled = true
				c.Security.JWT.Secret = "0123456789abcdef0123456789abcdef"
			},
			wantErr: true,
		},
		{
			name:    "bad api port ignored while disabled",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: false,
		},
		{
			name:    "zero lock pause allowed",
			mutate:  func(c *Config) { c.Broadlink.Learning.LockPause = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_BROADLINK_LOCAL_IP", "192.168.1.2")
	t.Setenv("GRAYLOGIC_API_HOST", "0.0.0.0")
	t.Setenv("GRAYLOGIC_JWT_SECRET", "env-secret")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Broadlink.Discovery.LocalIP != "192.168.1.2" {
		t.Errorf("Discovery.LocalIP = %q, want %q", cfg.Broadlink.Discovery.LocalIP, "192.168.1.2")
	}

	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "0.0.0.0")
	}

	if cfg.Security.JWT.Secret != "env-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "env-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Broadlink.Liveness.MaxRetries != 2 {
		t.Errorf("defaultConfig Liveness.MaxRetries = %d, want 2", cfg.Broadlink.Liveness.MaxRetries)
	}

	if cfg.Broadlink.Dispatch.DefaultTimeout != 60*time.Second {
		t.Errorf("defaultConfig Dispatch.DefaultTimeout = %v, want 60s", cfg.Broadlink.Dispatch.DefaultTimeout)
	}

	if cfg.Broadlink.Learning.PollInterval != time.Second {
		t.Errorf("defaultConfig Learning.PollInterval = %v, want 1s", cfg.Broadlink.Learning.PollInterval)
	}

	if cfg.API.Enabled {
		t.Error("defaultConfig API.Enabled = true, want false")
	}

	if cfg.WriteTimeout() <= cfg.Broadlink.Dispatch.DefaultTimeout {
		t.Errorf("API write timeout %v must exceed dispatch timeout %v", cfg.WriteTimeout(), cfg.Broadlink.Dispatch.DefaultTimeout)
	}
}

func TestBroadlinkConfig_AllowList(t *testing.T) {
	b := BroadlinkConfig{
		Hosts: []HostConfig{
			{Address: "192.168.1.50", MAC: "34:EA:34:AA:BB:CC"},
			{Address: "192.168.1.51"},
		},
	}

	allowed := b.AllowList()

	for _, key := range []string{"192.168.1.50", "34:ea:34:aa:bb:cc", "192.168.1.51"} {
		if _, ok := allowed[key]; !ok {
			t.Errorf("AllowList() missing %q", key)
		}
	}

	if len(BroadlinkConfig{}.AllowList()) != 0 {
		t.Error("AllowList() of empty config should be empty")
	}
}
