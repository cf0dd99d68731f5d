package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT", "ALLOWED_ORIGINS",
	"STORAGE_DRIVER", "TABLE_NAME", "STORAGE_OP_TIMEOUT",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "SQLITE_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "WORKER_MAX_RETRIES",
	"TRASH_PURGE_AFTER_DAYS", "TRASH_PURGE_INTERVAL",
	"AUTH_ENABLED", "JWT_SECRET", "JWT_ISSUER",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"BREAKER_MAX_FAILURES", "BREAKER_TIMEOUT", "BREAKER_HALF_OPEN_CALLS",
	"LOG_DEBUG", "LOG_FORMAT",
}

// clearEnv blanks every variable LoadConfig reads; t.Setenv restores them
// when the test ends.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
	}
}

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", config.Server.Port)
	}

	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}

	if len(config.Server.AllowedOrigins) != 1 || config.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Expected default origin http://localhost:3000, got %v", config.Server.AllowedOrigins)
	}

	if config.Storage.Driver != StorageMemory {
		t.Errorf("Expected default storage driver 'memory', got %s", config.Storage.Driver)
	}

	if config.Storage.Table != "mission-control" {
		t.Errorf("Expected default table 'mission-control', got %s", config.Storage.Table)
	}

	if config.Database.SQLitePath != "board.db" {
		t.Errorf("Expected default sqlite path 'board.db', got %s", config.Database.SQLitePath)
	}

	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.PoolSize != 10 {
		t.Errorf("Expected default Redis pool size 10, got %d", config.Redis.PoolSize)
	}

	if config.Trash.PurgeAfterDays != 7 {
		t.Errorf("Expected default purge threshold 7 days, got %d", config.Trash.PurgeAfterDays)
	}

	if config.Trash.PurgeInterval != time.Hour {
		t.Errorf("Expected default purge interval 1h, got %v", config.Trash.PurgeInterval)
	}

	if config.Auth.Enabled {
		t.Error("Expected auth to be disabled by default")
	}

	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}

	if config.Breaker.MaxFailures != 5 {
		t.Errorf("Expected default breaker max failures 5, got %d", config.Breaker.MaxFailures)
	}

	if config.Log.Format != "console" {
		t.Errorf("Expected default log format 'console', got %s", config.Log.Format)
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	clearEnv(t)
	setEnv(t, map[string]string{
		"PORT":                   "9000",
		"ENVIRONMENT":            "production",
		"ALLOWED_ORIGINS":        "https://board.example.com, https://ops.example.com",
		"STORAGE_DRIVER":         "Redis",
		"TABLE_NAME":             "mc-prod",
		"REDIS_HOST":             "redis.example.com",
		"REDIS_DB":               "1",
		"TRASH_PURGE_AFTER_DAYS": "30",
		"TRASH_PURGE_INTERVAL":   "15m",
		"AUTH_ENABLED":           "true",
		"JWT_SECRET":             "super-secret-key",
		"RATE_LIMIT_ENABLED":     "false",
		"BREAKER_TIMEOUT":        "10s",
		"LOG_FORMAT":             "json",
	})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with custom config, got: %v", err)
	}

	if config.Storage.Driver != StorageRedis {
		t.Errorf("Expected storage driver 'redis', got %s", config.Storage.Driver)
	}

	if config.Storage.Table != "mc-prod" {
		t.Errorf("Expected table 'mc-prod', got %s", config.Storage.Table)
	}

	if len(config.Server.AllowedOrigins) != 2 || config.Server.AllowedOrigins[1] != "https://ops.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", config.Server.AllowedOrigins)
	}

	if config.GetRedisAddr() != "redis.example.com:6379" {
		t.Errorf("Expected Redis addr 'redis.example.com:6379', got %s", config.GetRedisAddr())
	}

	if config.Redis.DB != 1 {
		t.Errorf("Expected Redis DB 1, got %d", config.Redis.DB)
	}

	if config.Trash.PurgeAfterDays != 30 {
		t.Errorf("Expected purge threshold 30, got %d", config.Trash.PurgeAfterDays)
	}

	if config.Trash.PurgeInterval != 15*time.Minute {
		t.Errorf("Expected purge interval 15m, got %v", config.Trash.PurgeInterval)
	}

	if !config.Auth.Enabled || config.Auth.JWTSecret != "super-secret-key" {
		t.Errorf("Expected auth enabled with custom secret, got %+v", config.Auth)
	}

	if config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled")
	}

	if config.Breaker.Timeout != 10*time.Second {
		t.Errorf("Expected breaker timeout 10s, got %v", config.Breaker.Timeout)
	}
}

func TestLoadConfig_ProductionValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "auth enabled without secret",
			env:     map[string]string{"ENVIRONMENT": "production", "AUTH_ENABLED": "true"},
			wantErr: true,
		},
		{
			name:    "auth disabled without secret",
			env:     map[string]string{"ENVIRONMENT": "production"},
			wantErr: false,
		},
		{
			name:    "default secret outside production",
			env:     map[string]string{"AUTH_ENABLED": "true"},
			wantErr: false,
		},
		{
			name:    "postgres without password",
			env:     map[string]string{"ENVIRONMENT": "production", "STORAGE_DRIVER": "postgres"},
			wantErr: true,
		},
		{
			name:    "postgres with password",
			env:     map[string]string{"ENVIRONMENT": "production", "STORAGE_DRIVER": "postgres", "DB_PASSWORD": "pw"},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORAGE_DRIVER": "dynamo"},
			wantErr: true,
		},
		{
			name:    "negative purge threshold",
			env:     map[string]string{"TRASH_PURGE_AFTER_DAYS": "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setEnv(t, tt.env)

			_, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := &Config{
		Storage: StorageConfig{Driver: StoragePostgres},
		Database: DatabaseConfig{
			Host:       "localhost",
			Port:       "5432",
			User:       "testuser",
			Password:   "testpass",
			Name:       "testdb",
			SSLMode:    "disable",
			SQLitePath: "/tmp/board.db",
		},
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if dsn := config.GetDatabaseDSN(); dsn != expected {
		t.Errorf("Expected DSN '%s', got '%s'", expected, dsn)
	}

	config.Storage.Driver = StorageSQLite
	if dsn := config.GetDatabaseDSN(); dsn != "/tmp/board.db" {
		t.Errorf("Expected sqlite DSN '/tmp/board.db', got '%s'", dsn)
	}
}

func TestConfig_GetServerAddr(t *testing.T) {
	config := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: "8080"}}

	if addr := config.GetServerAddr(); addr != "0.0.0.0:8080" {
		t.Errorf("Expected server address '0.0.0.0:8080', got '%s'", addr)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		expected    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			config := &Config{Server: ServerConfig{Environment: tt.environment}}
			if result := config.IsProduction(); result != tt.expected {
				t.Errorf("Expected IsProduction() to return %v for environment '%s', got %v",
					tt.expected, tt.environment, result)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_DURATION", "soon")
	t.Setenv("TEST_LIST", "a,, b ,c")
	os.Unsetenv("TEST_MISSING")

	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Errorf("Expected 'value', got '%s'", got)
	}
	if got := getEnv("TEST_MISSING", "default"); got != "default" {
		t.Errorf("Expected 'default', got '%s'", got)
	}
	if got := getEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 1); got != 1 {
		t.Errorf("Expected fallback 1 for invalid int, got %d", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Error("Expected true")
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("Expected 90s, got %v", got)
	}
	if got := getEnvAsDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("Expected fallback 1s for invalid duration, got %v", got)
	}
	if got := getEnvAsList("TEST_LIST", nil); len(got) != 3 || got[1] != "b" {
		t.Errorf("Expected [a b c], got %v", got)
	}
	if got := getEnvAsList("TEST_MISSING", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("Expected default list, got %v", got)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = LoadConfig()
	}
}
