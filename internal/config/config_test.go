package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:   HTTPConfig{Port: 8080},
		Engine: EngineConfig{Addrs: []string{"http://localhost:9200"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingEngineAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.Addrs = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing engine addrs")
	}
	if err.Error() != "engine.addrs is required" {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestValidate_NegativeRetries(t *testing.T) {
	cfg := validConfig()
	n := -1
	cfg.Retry.MaxAttempts = &n

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative max_attempts")
	}
}

func TestValidate_EventsDriver(t *testing.T) {
	tests := []struct {
		name    string
		events  EventsConfig
		wantErr string
	}{
		{"none", EventsConfig{Driver: "none"}, ""},
		{"redis", EventsConfig{Driver: "redis", Addrs: []string{"localhost:6379"}}, ""},
		{"redis without addrs", EventsConfig{Driver: "redis"}, `events.addrs is required for driver "redis"`},
		{"unknown", EventsConfig{Driver: "kafka"}, `events.driver must be "none" or "redis", got "kafka"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Events = tc.events

			err := cfg.Validate()
			switch {
			case tc.wantErr == "" && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tc.wantErr != "" && err == nil:
				t.Fatalf("expected error %q", tc.wantErr)
			case tc.wantErr != "" && err.Error() != tc.wantErr:
				t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Engine.ReadinessTimeout != 30 {
		t.Errorf("expected ReadinessTimeout=30, got %d", cfg.Engine.ReadinessTimeout)
	}
	if cfg.Retry.MaxAttempts == nil || *cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %v", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.IntervalMS != 1500 {
		t.Errorf("expected IntervalMS=1500, got %d", cfg.Retry.IntervalMS)
	}
	if cfg.Create.MarkerField != "u" {
		t.Errorf("expected MarkerField='u', got %q", cfg.Create.MarkerField)
	}
	if cfg.Events.Driver != "none" {
		t.Errorf("expected Driver='none', got %q", cfg.Events.Driver)
	}
}

func TestApplyDefaults_ZeroRetriesKept(t *testing.T) {
	zero := 0
	cfg := Config{Retry: RetryConfig{MaxAttempts: &zero}}
	cfg.ApplyDefaults()

	if *cfg.Retry.MaxAttempts != 0 {
		t.Errorf("expected explicit MaxAttempts=0 to be kept, got %d", *cfg.Retry.MaxAttempts)
	}
}

func TestIndexSettings(t *testing.T) {
	replicas := 0
	got := IndexConfig{Shards: 5, Replicas: &replicas}.Settings()

	if len(got) != 2 || got["number_of_shards"] != 5 || got["number_of_replicas"] != 0 {
		t.Errorf("unexpected settings: %v", got)
	}
	if len(IndexConfig{}.Settings()) != 0 {
		t.Error("expected no overrides for zero config")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ESCOMPAT_TEST_ADDR", "http://es:9200")

	got := string(expandEnvVars([]byte("a: ${ESCOMPAT_TEST_ADDR}\nb: ${ESCOMPAT_TEST_UNSET:-fallback}\nc: ${ESCOMPAT_TEST_UNSET}")))
	want := "a: http://es:9200\nb: fallback\nc: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	data := []byte(`
http:
  port: 9000
engine:
  addrs: ["${ESCOMPAT_TEST_ES:-http://localhost:9200}"]
alias:
  kinds:
    UserData:
      __id: id
`)
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.HTTP.Port)
	}
	if len(cfg.Engine.Addrs) != 1 || cfg.Engine.Addrs[0] != "http://localhost:9200" {
		t.Errorf("unexpected addrs: %v", cfg.Engine.Addrs)
	}
	if cfg.Alias.Kinds["UserData"]["__id"] != "id" {
		t.Errorf("unexpected alias kinds: %v", cfg.Alias.Kinds)
	}
	if cfg.Create.MarkerField != "u" {
		t.Errorf("expected defaults applied, got marker %q", cfg.Create.MarkerField)
	}
}
