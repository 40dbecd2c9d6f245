package config

import "testing"

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	if v := envInt("TEST_INT_MISSING", 99); v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7 for invalid int, got %d", v)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !envBool("TEST_BOOL", false) {
		t.Fatal("expected true")
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DURATION", "5s")
	if got := envDuration("TEST_DURATION", 0); got.Seconds() != 5 {
		t.Fatalf("expected 5s, got %v", got)
	}
}

func TestLoadMissingAPIKeyIsFatal(t *testing.T) {
	for _, k := range apiKeyEnvVars {
		t.Setenv(k, "")
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected error when no API key env var is set")
	}
}

func TestLoadSucceedsWithAPIKey(t *testing.T) {
	t.Setenv("TAMALEBOT_API_KEY", "sk-test-123")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "sk-test-123" {
		t.Fatalf("expected api key to be loaded, got %q", cfg.APIKey)
	}
	if cfg.MaxIterations != 20 {
		t.Fatalf("expected default max iterations 20, got %d", cfg.MaxIterations)
	}
}

func TestFirstEnvPrefersEarlierKey(t *testing.T) {
	t.Setenv("TEST_FIRST_A", "")
	t.Setenv("TEST_FIRST_B", "b-value")
	if got := firstEnv("TEST_FIRST_A", "TEST_FIRST_B"); got != "b-value" {
		t.Fatalf("expected b-value, got %q", got)
	}

	t.Setenv("TEST_FIRST_A", "a-value")
	if got := firstEnv("TEST_FIRST_A", "TEST_FIRST_B"); got != "a-value" {
		t.Fatalf("expected a-value, got %q", got)
	}
}
