package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-wsfeed
  az: us-east-1a
endpoints:
  - name: trades
    addr: wss://stream.example.com/ws
    max_multiplex: 4
    idle_tolerance: 5m
    keepalive_payload: '{"op":"ping"}'
    subscriptions:
      - subscribe: '{"op":"subscribe","channel":"trades"}'
        unsubscribe: '{"op":"unsubscribe","channel":"trades"}'
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-wsfeed" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-wsfeed")
	}
	if len(cfg.Endpoints) != 1 {
		t.Fatalf("len(Endpoints) = %d, want 1", len(cfg.Endpoints))
	}
	ep := cfg.Endpoints[0]
	if ep.Addr != "wss://stream.example.com/ws" {
		t.Errorf("Endpoints[0].Addr = %q, want %q", ep.Addr, "wss://stream.example.com/ws")
	}
	if ep.MaxMultiplex != 4 {
		t.Errorf("Endpoints[0].MaxMultiplex = %d, want 4", ep.MaxMultiplex)
	}
	if ep.IdleTolerance != 5*time.Minute {
		t.Errorf("Endpoints[0].IdleTolerance = %v, want 5m", ep.IdleTolerance)
	}
	if len(ep.Subscriptions) != 1 {
		t.Fatalf("len(Subscriptions) = %d, want 1", len(ep.Subscriptions))
	}
	if ep.Subscriptions[0].Subscribe != `{"op":"subscribe","channel":"trades"}` {
		t.Errorf("Subscriptions[0].Subscribe = %q", ep.Subscriptions[0].Subscribe)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-wsfeed
endpoints:
  - addr: wss://stream.example.com/ws
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-wsfeed
endpoints:
  - addr: wss://stream.example.com/ws
recorder:
  enabled: true
database:
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	ep := cfg.Endpoints[0]
	if ep.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want default %v", ep.ConnectTimeout, DefaultConnectTimeout)
	}
	if ep.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default %v", ep.PollInterval, DefaultPollInterval)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Postgres.MaxConns = %d, want default %d", cfg.Database.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Recorder.Table != DefaultRecorderTable {
		t.Errorf("Recorder.Table = %q, want default %q", cfg.Recorder.Table, DefaultRecorderTable)
	}
	if cfg.Recorder.BatchSize != DefaultBatchSize {
		t.Errorf("Recorder.BatchSize = %d, want default %d", cfg.Recorder.BatchSize, DefaultBatchSize)
	}
}

func TestValidate(t *testing.T) {
	validEndpoint := EndpointConfig{
		Addr: "wss://stream.example.com/ws",
		Subscriptions: []SubscriptionConfig{
			{Subscribe: `{"op":"sub"}`, Unsubscribe: `{"op":"unsub"}`},
		},
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     Config{},
			wantErr: "instance.id is required",
		},
		{
			name: "no endpoints",
			cfg: Config{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "at least one endpoint is required",
		},
		{
			name: "missing endpoint addr",
			cfg: Config{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{{}},
			},
			wantErr: "endpoints[0].addr is required",
		},
		{
			name: "bad endpoint scheme",
			cfg: Config{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{{Addr: "https://example.com"}},
			},
			wantErr: `endpoints[0].addr must use ws or wss scheme, got "https"`,
		},
		{
			name: "missing unsubscribe payload",
			cfg: Config{
				Instance: InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{{
					Addr:          "wss://stream.example.com/ws",
					Subscriptions: []SubscriptionConfig{{Subscribe: `{"op":"sub"}`}},
				}},
			},
			wantErr: "endpoints[0].subscriptions[0].unsubscribe is required",
		},
		{
			name: "recorder without database",
			cfg: Config{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Recorder:  RecorderConfig{Enabled: true, BatchSize: 100, BufferSize: 100},
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: Config{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Recorder:  RecorderConfig{Enabled: true, BatchSize: 100, BufferSize: 100},
				Database: DatabaseConfig{
					Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
				},
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "valid config without recorder",
			cfg: Config{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
			},
			wantErr: "",
		},
		{
			name: "valid config with recorder",
			cfg: Config{
				Instance:  InstanceConfig{ID: "test"},
				Endpoints: []EndpointConfig{validEndpoint},
				Recorder:  RecorderConfig{Enabled: true, BatchSize: 100, BufferSize: 100},
				Database: DatabaseConfig{
					Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
				},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
