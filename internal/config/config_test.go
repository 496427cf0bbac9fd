package config

import (
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults is not t.Parallel because it mutates process-wide environment variables.
func TestLoadDefaults(t *testing.T) {
	keys := []string{
		"SERVER_NAME", "SERVER_URL", "SERVER_ENV", "TLS_PORT", "TLS_CERT_PATH", "TLS_KEY_PATH",
		"DATABASE_URL", "DATABASE_MAX_CONNS", "DATABASE_MIN_CONNS",
		"VALKEY_URL",
		"ARGON2_MEMORY", "ARGON2_ITERATIONS", "ARGON2_PARALLELISM", "ARGON2_SALT_LENGTH", "ARGON2_KEY_LENGTH",
		"CODE_LIFETIME", "CODE_MAX_FAILS",
		"INVITE_LINK_MIN_LIFETIME", "INVITE_LINK_GRACE_PERIOD",
		"MAX_UPLOAD_SIZE_MB", "UPLOAD_DIR", "MAX_MESSAGES_PER_PAGE",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"AUTH_TOKEN_BYTES",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
	// TLS material has no default and is required in production, the default environment.
	t.Setenv("TLS_CERT_PATH", "/tmp/cert.pem")
	t.Setenv("TLS_KEY_PATH", "/tmp/key.pem")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerName != "Comcore" {
		t.Errorf("ServerName = %q, want %q", cfg.ServerName, "Comcore")
	}
	if cfg.ServerEnv != "production" {
		t.Errorf("ServerEnv = %q, want %q", cfg.ServerEnv, "production")
	}
	if cfg.TLSPort != 4343 {
		t.Errorf("TLSPort = %d, want 4343", cfg.TLSPort)
	}

	if cfg.DatabaseMaxConn != 25 {
		t.Errorf("DatabaseMaxConn = %d, want 25", cfg.DatabaseMaxConn)
	}
	if cfg.DatabaseMinConn != 5 {
		t.Errorf("DatabaseMinConn = %d, want 5", cfg.DatabaseMinConn)
	}

	if cfg.Argon2Memory != 65536 {
		t.Errorf("Argon2Memory = %d, want 65536", cfg.Argon2Memory)
	}
	if cfg.Argon2Iterations != 3 {
		t.Errorf("Argon2Iterations = %d, want 3", cfg.Argon2Iterations)
	}

	if cfg.CodeLifetime != time.Hour {
		t.Errorf("CodeLifetime = %v, want 1h", cfg.CodeLifetime)
	}
	if cfg.CodeMaxFails != 3 {
		t.Errorf("CodeMaxFails = %d, want 3", cfg.CodeMaxFails)
	}

	if cfg.InviteLinkMinLifetime != 2*time.Minute {
		t.Errorf("InviteLinkMinLifetime = %v, want 2m", cfg.InviteLinkMinLifetime)
	}
	if cfg.InviteLinkGracePeriod != 30*time.Second {
		t.Errorf("InviteLinkGracePeriod = %v, want 30s", cfg.InviteLinkGracePeriod)
	}

	if cfg.MaxUploadSizeMB != 10 {
		t.Errorf("MaxUploadSizeMB = %d, want 10", cfg.MaxUploadSizeMB)
	}
	if cfg.MaxMessagesPerPage != 50 {
		t.Errorf("MaxMessagesPerPage = %d, want 50", cfg.MaxMessagesPerPage)
	}

	if cfg.SMTPPort != 587 {
		t.Errorf("SMTPPort = %d, want 587", cfg.SMTPPort)
	}
}

func TestLoadRequiresTLSMaterialInProduction(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for missing TLS material")
	}
	if !strings.Contains(err.Error(), "TLS_CERT_PATH") {
		t.Errorf("error %q does not mention TLS_CERT_PATH", err.Error())
	}
}

func TestLoadDevelopmentSkipsTLSRequirement(t *testing.T) {
	t.Setenv("SERVER_ENV", "development")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")
	t.Setenv("TLS_PORT", "9443")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.ServerURL != "https://localhost:9443" {
		t.Errorf("ServerURL = %q, want %q", cfg.ServerURL, "https://localhost:9443")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_NAME", "Test Server")
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("TLS_CERT_PATH", "/tmp/cert.pem")
	t.Setenv("TLS_KEY_PATH", "/tmp/key.pem")
	t.Setenv("DATABASE_MAX_CONNS", "50")
	t.Setenv("ARGON2_MEMORY", "131072")
	t.Setenv("CODE_LIFETIME", "30m")
	t.Setenv("CODE_MAX_FAILS", "5")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerName != "Test Server" {
		t.Errorf("ServerName = %q, want %q", cfg.ServerName, "Test Server")
	}
	if cfg.DatabaseMaxConn != 50 {
		t.Errorf("DatabaseMaxConn = %d, want 50", cfg.DatabaseMaxConn)
	}
	if cfg.Argon2Memory != 131072 {
		t.Errorf("Argon2Memory = %d, want 131072", cfg.Argon2Memory)
	}
	if cfg.CodeLifetime != 30*time.Minute {
		t.Errorf("CodeLifetime = %v, want 30m", cfg.CodeLifetime)
	}
	if cfg.CodeMaxFails != 5 {
		t.Errorf("CodeMaxFails = %d, want 5", cfg.CodeMaxFails)
	}
	if cfg.MaxUploadSizeMB != 50 {
		t.Errorf("MaxUploadSizeMB = %d, want 50", cfg.MaxUploadSizeMB)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	t.Setenv("TLS_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "TLS_PORT") {
		t.Errorf("error %q does not mention TLS_PORT", err.Error())
	}
	if !strings.Contains(err.Error(), "not-a-number") {
		t.Errorf("error %q does not include the invalid value", err.Error())
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("CODE_LIFETIME", "not-a-duration")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "CODE_LIFETIME") {
		t.Errorf("error %q does not mention CODE_LIFETIME", err.Error())
	}
}

func TestLoadMultipleErrors(t *testing.T) {
	t.Setenv("TLS_PORT", "abc")
	t.Setenv("DATABASE_MAX_CONNS", "xyz")
	t.Setenv("CODE_MAX_FAILS", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want multiple parse errors")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "TLS_PORT") {
		t.Errorf("error missing TLS_PORT, got: %s", errStr)
	}
	if !strings.Contains(errStr, "DATABASE_MAX_CONNS") {
		t.Errorf("error missing DATABASE_MAX_CONNS, got: %s", errStr)
	}
	if !strings.Contains(errStr, "CODE_MAX_FAILS") {
		t.Errorf("error missing CODE_MAX_FAILS, got: %s", errStr)
	}
}

func TestMaxUploadSizeBytes(t *testing.T) {
	cfg := &Config{MaxUploadSizeMB: 10}
	want := int64(10 * 1024 * 1024)
	if got := cfg.MaxUploadSizeBytes(); got != want {
		t.Errorf("MaxUploadSizeBytes() = %d, want %d", got, want)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"production", false},
		{"", false},
		{"staging", false},
	}
	for _, tt := range tests {
		cfg := &Config{ServerEnv: tt.env}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment() with env=%q = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestSMTPConfigured(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"", false},
		{"mail.example.com", true},
	}
	for _, tt := range tests {
		cfg := &Config{SMTPHost: tt.host}
		if got := cfg.SMTPConfigured(); got != tt.want {
			t.Errorf("SMTPConfigured() with host=%q = %v, want %v", tt.host, got, tt.want)
		}
	}
}
