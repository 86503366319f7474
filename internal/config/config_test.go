package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_FillsEveryField(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.Server.ListenAddr)
	}
	if cfg.Server.HealthAddr != ":7001" {
		t.Errorf("HealthAddr = %q, want :7001", cfg.Server.HealthAddr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Event.SubscriberBufferSize != 128 {
		t.Errorf("SubscriberBufferSize = %d, want 128", cfg.Event.SubscriberBufferSize)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_NeverOverwritesExplicitValues(t *testing.T) {
	cfg := Config{Server: ServerConfig{ListenAddr: ":9999"}, Database: DatabaseConfig{Driver: "mysql"}}
	ApplyDefaults(&cfg)

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("ListenAddr was overwritten: %q", cfg.Server.ListenAddr)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver was overwritten: %q", cfg.Database.Driver)
	}
}

func validConfig() Config {
	var cfg Config
	cfg.Auth.JWTSigningKey = "test-signing-key"
	ApplyDefaults(&cfg)
	return cfg
}

func TestValidate_AcceptsDefaultedConfig(t *testing.T) {
	cfg := validConfig()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsMissingJWTSigningKey(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected Validate to reject an empty Auth.JWTSigningKey")
	}
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "postgres"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected Validate to reject a driver outside {memory, mysql}")
	}
}

func TestValidate_RequiresDSNForMySQL(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "mysql"
	cfg.Database.DSN = ""
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected Validate to require database.dsn when driver is mysql")
	}

	cfg.Database.DSN = "user:pass@tcp(127.0.0.1:3306)/relaychat"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate with DSN set: %v", err)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "server:\n  listen_addr: \":6000\"\nauth:\n  jwt_signing_key: \"from-file\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("RELAYCHAT_SERVER_LISTEN_ADDR", ":6500")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":6500" {
		t.Errorf("ListenAddr = %q, want env override :6500", cfg.Server.ListenAddr)
	}
	if cfg.Auth.JWTSigningKey != "from-file" {
		t.Errorf("JWTSigningKey = %q, want value from file", cfg.Auth.JWTSigningKey)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("RELAYCHAT_AUTH_JWT_SIGNING_KEY", "env-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want default :7000", cfg.Server.ListenAddr)
	}
}
