package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_FromEnvironmentVariables(t *testing.T) {
	// Set up environment variables
	os.Setenv("DB_HOST", "testhost")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("DB_USER", "testuser")
	os.Setenv("DB_PASSWORD", "testpass")
	os.Setenv("DB_NAME", "testdb")
	os.Setenv("API_PORT", "9090")
	os.Setenv("REDIS_ADDR", "redis.test:6380")
	os.Setenv("REDIS_DB", "2")
	os.Setenv("WORKER_POLL_INTERVAL", "10s")
	os.Setenv("WORKER_RETRY_DELAY", "45s")
	os.Setenv("VALIDATION_TIMEOUT", "3s")
	os.Setenv("ENABLE_AUTH", "true")
	os.Setenv("SHARED_SECRET", "test_secret")

	defer func() {
		os.Unsetenv("DB_HOST")
		os.Unsetenv("DB_PORT")
		os.Unsetenv("DB_USER")
		os.Unsetenv("DB_PASSWORD")
		os.Unsetenv("DB_NAME")
		os.Unsetenv("API_PORT")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("REDIS_DB")
		os.Unsetenv("WORKER_POLL_INTERVAL")
		os.Unsetenv("WORKER_RETRY_DELAY")
		os.Unsetenv("VALIDATION_TIMEOUT")
		os.Unsetenv("ENABLE_AUTH")
		os.Unsetenv("SHARED_SECRET")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify database config
	if cfg.Database.Host != "testhost" {
		t.Errorf("Expected DB_HOST=testhost, got %s", cfg.Database.Host)
	}
	if cfg.Database.Port != "5433" {
		t.Errorf("Expected DB_PORT=5433, got %s", cfg.Database.Port)
	}
	if cfg.Database.User != "testuser" {
		t.Errorf("Expected DB_USER=testuser, got %s", cfg.Database.User)
	}

	// Verify API config
	if cfg.API.Port != "9090" {
		t.Errorf("Expected API_PORT=9090, got %s", cfg.API.Port)
	}

	// Verify Redis config
	if cfg.Redis.Addr != "redis.test:6380" {
		t.Errorf("Expected REDIS_ADDR=redis.test:6380, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Expected REDIS_DB=2, got %d", cfg.Redis.DB)
	}

	// Verify Worker config
	if cfg.Worker.PollInterval != 10*time.Second {
		t.Errorf("Expected WORKER_POLL_INTERVAL=10s, got %v", cfg.Worker.PollInterval)
	}
	if cfg.Worker.RetryDelay != 45*time.Second {
		t.Errorf("Expected WORKER_RETRY_DELAY=45s, got %v", cfg.Worker.RetryDelay)
	}

	// Verify Validation config
	if cfg.Validation.Timeout != 3*time.Second {
		t.Errorf("Expected VALIDATION_TIMEOUT=3s, got %v", cfg.Validation.Timeout)
	}

	// Verify Auth config
	if !cfg.Auth.Enabled {
		t.Error("Expected ENABLE_AUTH=true")
	}
	if cfg.Auth.SharedSecret != "test_secret" {
		t.Errorf("Expected SHARED_SECRET=test_secret, got %s", cfg.Auth.SharedSecret)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	// Clear relevant environment variables
	os.Unsetenv("DB_HOST")
	os.Unsetenv("API_PORT")
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("WORKER_POLL_INTERVAL")
	os.Unsetenv("ENABLE_AUTH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify default values
	if cfg.Database.Host != "localhost" {
		t.Errorf("Expected default DB_HOST=localhost, got %s", cfg.Database.Host)
	}
	if cfg.API.Port != "8080" {
		t.Errorf("Expected default API_PORT=8080, got %s", cfg.API.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected default REDIS_ADDR=localhost:6379, got %s", cfg.Redis.Addr)
	}
	if cfg.Worker.PollInterval != 5*time.Second {
		t.Errorf("Expected default WORKER_POLL_INTERVAL=5s, got %v", cfg.Worker.PollInterval)
	}
	if cfg.Worker.Concurrency != 5 {
		t.Errorf("Expected default WORKER_CONCURRENCY=5, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Auth.Enabled {
		t.Error("Expected default ENABLE_AUTH=false")
	}
}

func TestValidate_MissingRedisAddr(t *testing.T) {
	cfg := &Config{
		Worker: WorkerConfig{Concurrency: 1},
	}

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for missing REDIS_ADDR")
	}
	if err != nil && err.Error() != "REDIS_ADDR is required" {
		t.Errorf("Expected error message 'REDIS_ADDR is required', got %v", err)
	}
}

func TestValidate_MissingSharedSecretWhenAuthEnabled(t *testing.T) {
	cfg := &Config{
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Worker: WorkerConfig{Concurrency: 1},
		Auth: AuthConfig{
			Enabled:      true,
			SharedSecret: "", // Missing when auth enabled
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for missing SHARED_SECRET when auth enabled")
	}
	if err != nil && err.Error() != "SHARED_SECRET is required when ENABLE_AUTH is true" {
		t.Errorf("Expected error message about SHARED_SECRET, got %v", err)
	}
}

func TestValidate_InvalidConcurrency(t *testing.T) {
	cfg := &Config{
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Worker: WorkerConfig{Concurrency: 0},
	}

	err := cfg.Validate()
	if err == nil {
		t.Error("Expected validation error for WORKER_CONCURRENCY=0")
	}
}

func TestValidate_Success(t *testing.T) {
	cfg := &Config{
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Worker: WorkerConfig{Concurrency: 5},
		Auth: AuthConfig{
			Enabled:      false,
			SharedSecret: "",
		},
	}

	err := cfg.Validate()
	if err != nil {
		t.Errorf("Expected validation to pass, got error: %v", err)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		result := parseBool(tt.input)
		if result != tt.expected {
			t.Errorf("parseBool(%q) = %v, expected %v", tt.input, result, tt.expected)
		}
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input        string
		defaultValue int
		expected     int
	}{
		{"42", 10, 42},
		{"0", 10, 0},
		{"-5", 10, -5},
		{"invalid", 10, 10},
		{"", 10, 10},
		{"3.14", 10, 3}, // fmt.Sscanf parses the integer part
	}

	for _, tt := range tests {
		result := parseInt(tt.input, tt.defaultValue)
		if result != tt.expected {
			t.Errorf("parseInt(%q, %d) = %d, expected %d", tt.input, tt.defaultValue, result, tt.expected)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input        string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{"5s", 10 * time.Second, 5 * time.Second},
		{"1m", 10 * time.Second, 1 * time.Minute},
		{"100ms", 10 * time.Second, 100 * time.Millisecond},
		{"invalid", 10 * time.Second, 10 * time.Second},
		{"", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		result := parseDuration(tt.input, tt.defaultValue)
		if result != tt.expected {
			t.Errorf("parseDuration(%q, %v) = %v, expected %v", tt.input, tt.defaultValue, result, tt.expected)
		}
	}
}
