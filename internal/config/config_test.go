package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9080"
  read_timeout: 10s

storage:
  path: "/tmp/test.db"

dispatch:
  workers: 3
  process_interval: 2s
  send_concurrency: 8
  max_active_jobs: 10

users:
  - email: "alice@example.com"
    name: "Alice"
    token: "tok-alice"
    default_server_id: "srv-1"
    servers:
      - id: "srv-1"
        name: "Primary"
        base_url: "https://relay1.example.com"
        api_key: "key-1"
      - id: "srv-2"
        name: "Backup"
        base_url: "https://relay2.example.com"
        api_key: "key-2"
        active: false

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9080" {
		t.Errorf("Server.ListenAddr = %v, want :9080", cfg.Server.ListenAddr)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Path != "/tmp/test.db" {
		t.Errorf("Storage.Path = %v, want /tmp/test.db", cfg.Storage.Path)
	}
	if cfg.Dispatch.Workers != 3 {
		t.Errorf("Dispatch.Workers = %v, want 3", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.MaxActiveJobs != 10 {
		t.Errorf("Dispatch.MaxActiveJobs = %v, want 10", cfg.Dispatch.MaxActiveJobs)
	}
	if len(cfg.Users) != 1 {
		t.Fatalf("len(Users) = %v, want 1", len(cfg.Users))
	}
	user := cfg.Users[0]
	if user.Token != "tok-alice" {
		t.Errorf("Users[0].Token = %v, want tok-alice", user.Token)
	}
	if len(user.Servers) != 2 {
		t.Fatalf("len(Users[0].Servers) = %v, want 2", len(user.Servers))
	}
	if !user.Servers[0].IsActive() {
		t.Error("Servers[0].IsActive() = false, want true (unset means active)")
	}
	if user.Servers[1].IsActive() {
		t.Error("Servers[1].IsActive() = true, want false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %v, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Storage.Path != "/var/lib/orca/jobs.db" {
		t.Errorf("Storage.Path = %v, want /var/lib/orca/jobs.db", cfg.Storage.Path)
	}
	if cfg.Dispatch.Workers != 2 {
		t.Errorf("Dispatch.Workers = %v, want 2", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.ProcessInterval != 5*time.Second {
		t.Errorf("Dispatch.ProcessInterval = %v, want 5s", cfg.Dispatch.ProcessInterval)
	}
	if cfg.Dispatch.MaxActiveJobs != 50 {
		t.Errorf("Dispatch.MaxActiveJobs = %v, want 50", cfg.Dispatch.MaxActiveJobs)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	active := true
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Users: []UserConfig{{
					Email: "a@b.com", Token: "t1",
					Servers:         []UserServerConfig{{ID: "s1", BaseURL: "http://x", Active: &active}},
					DefaultServerID: "s1",
				}},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: false,
		},
		{
			name: "missing user token",
			cfg: Config{
				Users:   []UserConfig{{Email: "a@b.com"}},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "duplicate token across users",
			cfg: Config{
				Users: []UserConfig{
					{Email: "a@b.com", Token: "t1"},
					{Email: "c@d.com", Token: "t1"},
				},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "default server not among servers",
			cfg: Config{
				Users: []UserConfig{{
					Email: "a@b.com", Token: "t1",
					Servers:         []UserServerConfig{{ID: "s1", BaseURL: "http://x"}},
					DefaultServerID: "s9",
				}},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "duplicate server id",
			cfg: Config{
				Users: []UserConfig{{
					Email: "a@b.com", Token: "t1",
					Servers: []UserServerConfig{
						{ID: "s1", BaseURL: "http://x"},
						{ID: "s1", BaseURL: "http://y"},
					},
				}},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "server without base_url",
			cfg: Config{
				Users: []UserConfig{{
					Email: "a@b.com", Token: "t1",
					Servers: []UserServerConfig{{ID: "s1"}},
				}},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: Config{
				Logging: LoggingConfig{Level: "invalid", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			cfg: Config{
				Logging: LoggingConfig{Level: "info", Format: "invalid"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
