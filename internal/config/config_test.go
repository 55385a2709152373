package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsFromEmbeddedYAML(t *testing.T) {
	cfg := Load()

	if cfg.Matching.Distance != "euclidean" {
		t.Errorf("expected default distance 'euclidean', got '%s'", cfg.Matching.Distance)
	}
	if cfg.Matching.MinTextConfidence != 0.3 {
		t.Errorf("expected min text confidence 0.3, got %v", cfg.Matching.MinTextConfidence)
	}
	euclid, ok := cfg.Matching.Tolerances["euclidean"]
	if !ok {
		t.Fatal("expected euclidean tolerances to be loaded")
	}
	if euclid.Default != 0.6 || euclid.Loose != 0.75 {
		t.Errorf("expected euclidean 0.6/0.75, got %v/%v", euclid.Default, euclid.Loose)
	}
	if cfg.Status.MatchWindow != 50 {
		t.Errorf("expected match window 50, got %d", cfg.Status.MatchWindow)
	}
	if cfg.Status.ErrorWindow != 20 {
		t.Errorf("expected error window 20, got %d", cfg.Status.ErrorWindow)
	}
}

func TestLoad_DefaultBackends(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("TEXT_PROVIDER", "")

	cfg := Load()

	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory cache backend, got '%s'", cfg.Cache.Backend)
	}
	if cfg.Text.Provider != "tesseract" {
		t.Errorf("expected tesseract text provider, got '%s'", cfg.Text.Provider)
	}
	if cfg.Tesseract.Binary != "tesseract" {
		t.Errorf("expected tesseract binary, got '%s'", cfg.Tesseract.Binary)
	}
	if cfg.Tesseract.Lang != "eng" {
		t.Errorf("expected eng language, got '%s'", cfg.Tesseract.Lang)
	}
}

func TestLoad_BackendsAreLowercased(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "SQLite")
	t.Setenv("TEXT_PROVIDER", "OpenAI")

	cfg := Load()

	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("expected 'sqlite', got '%s'", cfg.Cache.Backend)
	}
	if cfg.Text.Provider != "openai" {
		t.Errorf("expected 'openai', got '%s'", cfg.Text.Provider)
	}
}

func TestLoad_DatabaseDefaults(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "")
	t.Setenv("DATABASE_MAX_IDLE_CONNS", "invalid")

	cfg := Load()

	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected 5 max idle conns for invalid value, got %d", cfg.Database.MaxIdleConns)
	}
}

func TestLoad_ProviderCredentials(t *testing.T) {
	t.Setenv("PHOTOPRISM_URL", "https://photos.test.com")
	t.Setenv("PHOTOPRISM_USERNAME", "testuser")
	t.Setenv("PHOTOPRISM_PASSWORD", "testpass")
	t.Setenv("GOOGLE_DRIVE_TOKEN", "drive-token")
	t.Setenv("ONEDRIVE_TOKEN", "graph-token")

	cfg := Load()

	if cfg.PhotoPrism.URL != "https://photos.test.com" {
		t.Errorf("expected URL 'https://photos.test.com', got '%s'", cfg.PhotoPrism.URL)
	}
	if cfg.PhotoPrism.Username != "testuser" {
		t.Errorf("expected Username 'testuser', got '%s'", cfg.PhotoPrism.Username)
	}
	if cfg.PhotoPrism.Password != "testpass" {
		t.Errorf("expected Password 'testpass', got '%s'", cfg.PhotoPrism.Password)
	}
	if cfg.GoogleDrive.Token != "drive-token" {
		t.Errorf("expected drive token, got '%s'", cfg.GoogleDrive.Token)
	}
	if cfg.OneDrive.Token != "graph-token" {
		t.Errorf("expected onedrive token, got '%s'", cfg.OneDrive.Token)
	}
}

func TestLoad_JobRetention(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"72h", 72 * time.Hour},
		{"garbage", 0},
		{"-5m", 0},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("JOB_RETENTION", tt.value)
			cfg := Load()
			if cfg.Jobs.Retention != tt.want {
				t.Errorf("JOB_RETENTION=%q: got %v, want %v", tt.value, cfg.Jobs.Retention, tt.want)
			}
		})
	}
}

func TestMatchingTolerance(t *testing.T) {
	tolerances := map[string]ToleranceSettings{
		"euclidean": {Default: 0.6, Loose: 0.75},
		"cosine":    {Default: 0.5, Loose: 0.6},
	}

	tests := []struct {
		name     string
		distance string
		override float64
		want     float64
	}{
		{"euclidean loose", "euclidean", 0, 0.75},
		{"cosine loose", "cosine", 0, 0.6},
		{"explicit override", "euclidean", 0.9, 0.9},
		{"unknown metric", "manhattan", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MatchingConfig{Distance: tt.distance, Tolerances: tolerances, FaceTolerance: tt.override}
			if got := m.Tolerance(); got != tt.want {
				t.Errorf("Tolerance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad_FaceDistanceOverride(t *testing.T) {
	t.Setenv("FACE_DISTANCE", "Cosine")
	t.Setenv("FACE_TOLERANCE", "")

	cfg := Load()

	if cfg.Matching.Distance != "cosine" {
		t.Errorf("expected 'cosine', got '%s'", cfg.Matching.Distance)
	}
	if got := cfg.Matching.Tolerance(); got != 0.6 {
		t.Errorf("expected loose cosine tolerance 0.6, got %v", got)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
}
