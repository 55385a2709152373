package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	PhotoPrism  PhotoPrismConfig
	GoogleDrive GoogleDriveConfig
	OneDrive    OneDriveConfig
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Ollama      OllamaConfig
	Tesseract   TesseractConfig
	Embedding   EmbeddingConfig
	Text        TextConfig
	Cache       CacheConfig
	Database    DatabaseConfig
	Jobs        JobsConfig
	Log         LogConfig
	Matching    MatchingConfig
	Status      StatusConfig
	Web         WebConfig
}

type PhotoPrismConfig struct {
	URL      string
	Username string
	Password string
}

// GoogleDriveConfig holds a server-side access token used when a request carries none.
type GoogleDriveConfig struct {
	Token string
}

type OneDriveConfig struct {
	Token string
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type TesseractConfig struct {
	Binary string // defaults to tesseract
	Lang   string // defaults to eng
	PSM    int
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

// TextConfig selects the text recognition backend.
type TextConfig struct {
	Provider string // tesseract, openai, gemini or ollama
}

type CacheConfig struct {
	Backend    string // memory, postgres or sqlite
	SQLitePath string
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type JobsConfig struct {
	// Retention is how long finished jobs stay queryable. Zero keeps them forever.
	Retention time.Duration
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

type MatchingConfig struct {
	Distance          string                       `yaml:"distance"`
	Tolerances        map[string]ToleranceSettings `yaml:"tolerances"`
	MinTextConfidence float64                      `yaml:"min_text_confidence"`

	// FaceTolerance overrides the loose tolerance of the selected distance when positive.
	FaceTolerance float64 `yaml:"-"`
}

type ToleranceSettings struct {
	Default float64 `yaml:"default"`
	Loose   float64 `yaml:"loose"`
}

type StatusConfig struct {
	MatchWindow int `yaml:"match_window"`
	ErrorWindow int `yaml:"error_window"`
}

// WebConfig holds browser-facing HTTP settings.
type WebConfig struct {
	AllowedOrigins []string // from WEB_ALLOWED_ORIGINS, comma-separated
}

type defaults struct {
	Matching MatchingConfig `yaml:"matching"`
	Status   StatusConfig   `yaml:"status"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("72h", "30m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	matching := d.Matching
	matching.Distance = strings.ToLower(envString("FACE_DISTANCE", matching.Distance))
	matching.FaceTolerance = envFloat("FACE_TOLERANCE", 0)
	matching.MinTextConfidence = envFloat("OCR_MIN_CONFIDENCE", matching.MinTextConfidence)

	return &Config{
		PhotoPrism: PhotoPrismConfig{
			URL:      os.Getenv("PHOTOPRISM_URL"),
			Username: os.Getenv("PHOTOPRISM_USERNAME"),
			Password: os.Getenv("PHOTOPRISM_PASSWORD"),
		},
		GoogleDrive: GoogleDriveConfig{
			Token: os.Getenv("GOOGLE_DRIVE_TOKEN"),
		},
		OneDrive: OneDriveConfig{
			Token: os.Getenv("ONEDRIVE_TOKEN"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Tesseract: TesseractConfig{
			Binary: envString("TESSERACT_BIN", "tesseract"),
			Lang:   envString("TESSERACT_LANG", "eng"),
			PSM:    envInt("TESSERACT_PSM", 0),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Text: TextConfig{
			Provider: strings.ToLower(envString("TEXT_PROVIDER", "tesseract")),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(envString("CACHE_BACKEND", "memory")),
			SQLitePath: envString("SQLITE_PATH", "photolink-cache.db"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Jobs: JobsConfig{
			Retention: envDuration("JOB_RETENTION", 0),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		Matching: matching,
		Status: StatusConfig{
			MatchWindow: envInt("STATUS_MATCH_WINDOW", d.Status.MatchWindow),
			ErrorWindow: envInt("STATUS_ERROR_WINDOW", d.Status.ErrorWindow),
		},
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}

// Tolerance returns the face tolerance to apply for the configured distance metric.
// An explicit FACE_TOLERANCE wins; otherwise the loose tolerance of the metric is used.
func (m MatchingConfig) Tolerance() float64 {
	if m.FaceTolerance > 0 {
		return m.FaceTolerance
	}
	if t, ok := m.Tolerances[m.Distance]; ok {
		return t.Loose
	}
	return 0
}
