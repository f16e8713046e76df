// Package config provides the configuration schema and loader for the
// VoxAlign transcription service.
package config

// LogLevel controls log verbosity for the VoxAlign server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ASRBackend selects the speech recognition implementation.
type ASRBackend string

const (
	// ASRWhisperHTTP talks to a whisper.cpp server over HTTP.
	ASRWhisperHTTP ASRBackend = "whisper-http"

	// ASRWhisperNative loads a whisper.cpp model in-process via CGO bindings.
	ASRWhisperNative ASRBackend = "whisper-native"
)

// IsValid reports whether b is a recognised ASR backend.
func (b ASRBackend) IsValid() bool {
	return b == ASRWhisperHTTP || b == ASRWhisperNative
}

// Strategy selects how diarized requests are transcribed.
type Strategy string

const (
	// StrategyPerTurn transcribes each speaker turn separately.
	StrategyPerTurn Strategy = "per_turn"

	// StrategyAlign transcribes the whole file once and aligns segments
	// against the speaker timeline.
	StrategyAlign Strategy = "align"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyPerTurn || s == StrategyAlign
}

// Config is the root configuration structure for VoxAlign.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	ASR         ASRConfig         `yaml:"asr"`
	Diarization DiarizationConfig `yaml:"diarization"`
	Polish      PolishConfig      `yaml:"polish"`
	Emotion     EmotionConfig     `yaml:"emotion"`
	Storage     StorageConfig     `yaml:"storage"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Limits      LimitsConfig      `yaml:"limits"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// ASRConfig selects and configures the recognition backend.
type ASRConfig struct {
	// Backend selects the implementation. Default "whisper-http".
	Backend ASRBackend `yaml:"backend"`

	// ServerURL is the whisper.cpp server address (whisper-http backend).
	ServerURL string `yaml:"server_url"`

	// ModelPath is the GGML model file (whisper-native backend).
	ModelPath string `yaml:"model_path"`

	// Model names the model on multi-model servers; passed through on every
	// request (whisper-http backend).
	Model string `yaml:"model"`

	// Language is the default language hint ("" = auto-detect). Requests may
	// override it.
	Language string `yaml:"language"`

	// TimeoutSeconds bounds one recognition HTTP call. Default 300.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DiarizationConfig configures speaker attribution.
type DiarizationConfig struct {
	// Enabled is the default for requests that do not specify diarization.
	Enabled bool `yaml:"enabled"`

	// ServerURL is the pyannote sidecar address. Required when Enabled.
	ServerURL string `yaml:"server_url"`

	// Strategy selects the diarized transcription strategy. Default
	// "per_turn".
	Strategy Strategy `yaml:"strategy"`

	// MinTurnLength drops shorter turns during normalization, in seconds.
	// Default 0.5.
	MinTurnLength float64 `yaml:"min_turn_length"`

	// MergeGap merges same-speaker turns closer than this, in seconds.
	// Default 0.2.
	MergeGap float64 `yaml:"merge_gap"`

	// Resolution is the speaker-timeline cell width in seconds. Default 0.01.
	Resolution float64 `yaml:"resolution"`

	// SearchRadius is the widening-search radius in timeline cells.
	// Default 50.
	SearchRadius int `yaml:"search_radius"`

	// TimeoutSeconds bounds one diarization call. Default 300.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LLMEntry configures one chat-completion backend.
type LLMEntry struct {
	// Provider is "openai" or an any-llm provider name ("anthropic",
	// "ollama", "groq", ...).
	Provider string `yaml:"provider"`

	// Model is the model identifier (e.g. "gpt-4o").
	Model string `yaml:"model"`

	// APIKey authenticates against the provider, when required.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`
}

// PolishConfig configures the LLM refinement stage.
type PolishConfig struct {
	// Enabled is the default for requests that do not specify polishing.
	Enabled bool `yaml:"enabled"`

	// Primary is the first-choice LLM backend. Required when Enabled.
	Primary LLMEntry `yaml:"primary"`

	// Fallbacks are tried in order when the primary fails or its breaker is
	// open.
	Fallbacks []LLMEntry `yaml:"fallbacks"`

	// Temperature for polish requests. Default 0.3.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps polish completions. Default 2048.
	MaxTokens int `yaml:"max_tokens"`

	// MinSimilarity is the divergence-guard floor in [0, 1]. Default 0.55.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// EmotionConfig configures the emotion annotation stage.
type EmotionConfig struct {
	// Enabled is the default for requests that do not specify emotion
	// annotation.
	Enabled bool `yaml:"enabled"`

	// ServerURL is the emotion sidecar address. Required when Enabled.
	ServerURL string `yaml:"server_url"`
}

// StorageConfig configures result persistence.
type StorageConfig struct {
	// PostgresDSN enables persistence when non-empty. The service runs
	// without it; results are then only returned inline.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions sizes the exemplar vector column. Default 1536.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// RetrievalConfig configures few-shot exemplar retrieval for polishing.
type RetrievalConfig struct {
	// Enabled turns on exemplar lookup. Requires storage.postgres_dsn.
	Enabled bool `yaml:"enabled"`

	// APIKey authenticates the embeddings provider.
	APIKey string `yaml:"api_key"`

	// Model is the embeddings model. Default "text-embedding-3-small".
	Model string `yaml:"model"`

	// TopK is how many exemplars to attach per polish request. Default 3.
	TopK int `yaml:"top_k"`
}

// LimitsConfig bounds resource usage.
type LimitsConfig struct {
	// MaxConcurrent bounds simultaneous pipeline runs. Default 4.
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxUploadMB caps the accepted audio upload size. Default 512.
	MaxUploadMB int `yaml:"max_upload_mb"`

	// PipelineTimeoutSeconds is the wall-clock budget for one run.
	// Default 900. Zero disables the budget.
	PipelineTimeoutSeconds int `yaml:"pipeline_timeout_seconds"`
}

// applyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.ASR.Backend == "" {
		c.ASR.Backend = ASRWhisperHTTP
	}
	if c.ASR.TimeoutSeconds == 0 {
		c.ASR.TimeoutSeconds = 300
	}
	if c.Diarization.Strategy == "" {
		c.Diarization.Strategy = StrategyPerTurn
	}
	if c.Diarization.MinTurnLength == 0 {
		c.Diarization.MinTurnLength = 0.5
	}
	if c.Diarization.MergeGap == 0 {
		c.Diarization.MergeGap = 0.2
	}
	if c.Diarization.Resolution == 0 {
		c.Diarization.Resolution = 0.01
	}
	if c.Diarization.SearchRadius == 0 {
		c.Diarization.SearchRadius = 50
	}
	if c.Diarization.TimeoutSeconds == 0 {
		c.Diarization.TimeoutSeconds = 300
	}
	if c.Polish.Temperature == 0 {
		c.Polish.Temperature = 0.3
	}
	if c.Polish.MaxTokens == 0 {
		c.Polish.MaxTokens = 2048
	}
	if c.Polish.MinSimilarity == 0 {
		c.Polish.MinSimilarity = 0.55
	}
	if c.Storage.EmbeddingDimensions == 0 {
		c.Storage.EmbeddingDimensions = 1536
	}
	if c.Retrieval.Model == "" {
		c.Retrieval.Model = "text-embedding-3-small"
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 3
	}
	if c.Limits.MaxConcurrent == 0 {
		c.Limits.MaxConcurrent = 4
	}
	if c.Limits.MaxUploadMB == 0 {
		c.Limits.MaxUploadMB = 512
	}
	if c.Limits.PipelineTimeoutSeconds == 0 {
		c.Limits.PipelineTimeoutSeconds = 900
	}
}
