package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_DRIVER", "RECOGNITION_THRESHOLD", "DEDUP_THRESHOLD", "CAMERA_OPEN_RETRIES",
		"STREAM_IDLE_POLL", "SMTP_PORT", "EMAIL_NOTIFICATIONS_ENABLED", "MQTT_TOPIC_PREFIX",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected default driver postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Recognition.RecognitionThreshold != 0.6 {
		t.Errorf("expected recognition threshold 0.6, got %v", cfg.Recognition.RecognitionThreshold)
	}
	if cfg.Recognition.DedupThreshold != 0.6 {
		t.Errorf("expected dedup threshold 0.6, got %v", cfg.Recognition.DedupThreshold)
	}
	if cfg.Camera.OpenRetries != 5 {
		t.Errorf("expected 5 open retries, got %d", cfg.Camera.OpenRetries)
	}
	if cfg.Camera.IdlePoll != 100*time.Millisecond {
		t.Errorf("expected 100ms idle poll, got %v", cfg.Camera.IdlePoll)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("expected SMTP port 587, got %d", cfg.SMTP.Port)
	}
	if cfg.SMTP.Enabled {
		t.Error("expected SMTP disabled by default")
	}
	if cfg.MQTT.TopicPrefix != "attendance" {
		t.Errorf("expected topic prefix attendance, got %q", cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_ThresholdsAreIndependent(t *testing.T) {
	t.Setenv("RECOGNITION_THRESHOLD", "0.55")
	t.Setenv("DEDUP_THRESHOLD", "0.7")

	cfg := Load()

	if cfg.Recognition.RecognitionThreshold != 0.55 {
		t.Errorf("expected 0.55, got %v", cfg.Recognition.RecognitionThreshold)
	}
	if cfg.Recognition.DedupThreshold != 0.7 {
		t.Errorf("expected 0.7, got %v", cfg.Recognition.DedupThreshold)
	}
}

func TestLoad_Web(t *testing.T) {
	t.Setenv("WEB_PORT", "")
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://kiosk.example.com, ,http://10.0.0.5:3000")

	cfg := Load()

	if cfg.Web.Port != 5000 || cfg.Web.Host != "0.0.0.0" {
		t.Errorf("unexpected listen address %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	want := []string{"https://kiosk.example.com", "http://10.0.0.5:3000"}
	if len(cfg.Web.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.Web.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.Web.AllowedOrigins[i] != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.Web.AllowedOrigins[i], want[i])
		}
	}
}

func TestEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected float64
	}{
		{"empty uses default", "", 0.6},
		{"valid", "0.42", 0.42},
		{"above range", "1.5", 0.6},
		{"negative", "-0.1", 0.6},
		{"garbage", "abc", 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.value)
			if got := envFloat("TEST_FLOAT", 0.6); got != tt.expected {
				t.Errorf("envFloat(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		value    string
		expected int
	}{
		{"", 7},
		{"12", 12},
		{"0", 7},
		{"-3", 7},
		{"x", 7},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			if got := envInt("TEST_INT", 7); got != tt.expected {
				t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.expected)
			}
		})
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "250ms")
	if got := envDuration("TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}

	t.Setenv("TEST_DUR", "-1s")
	if got := envDuration("TEST_DUR", time.Second); got != time.Second {
		t.Errorf("expected default for negative duration, got %v", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !envBool("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "nope")
	if envBool("TEST_BOOL", false) {
		t.Error("expected default false for invalid value")
	}
}

func TestEnvLocation_Invalid(t *testing.T) {
	t.Setenv("TEST_TZ", "Not/AZone")
	if loc := envLocation("TEST_TZ"); loc != time.Local {
		t.Errorf("expected local time zone fallback, got %v", loc)
	}
}

func TestSMTPConfigured(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SMTPConfig
		expected bool
	}{
		{"disabled", SMTPConfig{Host: "smtp.example.com", Sender: "kiosk@example.com"}, false},
		{"missing host", SMTPConfig{Enabled: true, Sender: "kiosk@example.com"}, false},
		{"missing sender", SMTPConfig{Enabled: true, Host: "smtp.example.com"}, false},
		{"complete", SMTPConfig{Enabled: true, Host: "smtp.example.com", Sender: "kiosk@example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.expected {
				t.Errorf("Configured() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("camera", "0"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}
