// Package constants provides shared constants used across the codebase.
package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Submission constants
const (
	// MaxSourcesPerBatch is the maximum number of album links in one batch submission
	MaxSourcesPerBatch = 5

	// MaxUploadSize is the maximum reference image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// Provider names
const (
	ProviderGoogleDrive = "google_drive"
	ProviderOneDrive    = "onedrive"
	ProviderPhotoPrism  = "photoprism"
	ProviderLocal       = "local"
	ProviderUnknown     = "unknown"
)

// Text extractor names
const (
	TextTesseract = "tesseract"
	TextOpenAI    = "openai"
	TextGemini    = "gemini"
	TextOllama    = "ollama"
)

// Cache backends
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheSQLite   = "sqlite"
)
