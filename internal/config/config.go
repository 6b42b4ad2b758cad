package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all interview-server environment variables.
const EnvPrefix = "INTERVIEW_"

const defaultSystemPrompt = "You are a friendly, professional job interviewer. Ask one concise question at a time, " +
	"follow up on what the candidate just said, and move to a new topic when an answer is complete. " +
	"Never answer for the candidate and never use lists or markdown."

// Conversation configures the external chat capability behind the
// Conversational Responder.
type Conversation struct {
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

type Transcription struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type Speech struct {
	Model     string `yaml:"model"`
	Voice     string `yaml:"voice"`
	CacheSize int    `yaml:"cache_size"`
}

type Summary struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	Prompt  string `yaml:"prompt"`
}

type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	StaticDir             string `yaml:"static_dir"`
	RecordingsDir         string `yaml:"recordings_dir"`
	DBPath                string `yaml:"db_path"`
	MaxUploadMB           int    `yaml:"max_upload_mb"`
	MaxVideoMB            int    `yaml:"max_video_mb"`
	AudioFormat           string `yaml:"audio_format"`
	CombinedAudioFilename string `yaml:"combined_audio_filename"`
	CombinedVideoFilename string `yaml:"combined_video_filename"`
	SessionIdleTimeout    string `yaml:"session_idle_timeout"`
	ExternalTimeout       string `yaml:"external_timeout"`
	CombineTimeout        string `yaml:"combine_timeout"`
	CleanupAfterDays      int    `yaml:"cleanup_after_days"`
	FFmpegPath            string `yaml:"ffmpeg_path"`

	Logging       Logging       `yaml:"logging"`
	Conversation  Conversation  `yaml:"conversation"`
	Transcription Transcription `yaml:"transcription"`
	Speech        Speech        `yaml:"speech"`
	Summary       Summary       `yaml:"summary"`

	// Secrets, env vars only.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8000",
		StaticDir:             "static",
		RecordingsDir:         "recordings",
		DBPath:                "data/interview.db",
		MaxUploadMB:           50,
		MaxVideoMB:            500,
		AudioFormat:           "mp3",
		CombinedAudioFilename: "combined_interview.mp3",
		CombinedVideoFilename: "combined_interview.webm",
		SessionIdleTimeout:    "60m",
		ExternalTimeout:       "30s",
		CombineTimeout:        "5m",
		CleanupAfterDays:      30,
		FFmpegPath:            "ffmpeg",
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Conversation: Conversation{
			Model:        "openai/gpt-3.5-turbo",
			MaxTokens:    150,
			Temperature:  0.7,
			SystemPrompt: defaultSystemPrompt,
		},
		Transcription: Transcription{
			Provider: "openai",
			Model:    "whisper-1",
			Language: "en",
		},
		Speech: Speech{
			Model:     "tts-1",
			Voice:     "alloy",
			CacheSize: 50,
		},
		Summary: Summary{
			Enabled: true,
			Model:   "openai/gpt-4o-mini",
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func (c *Config) ParsedIdleTimeout() time.Duration {
	return parseDuration(c.SessionIdleTimeout, 60*time.Minute)
}

func (c *Config) ParsedExternalTimeout() time.Duration {
	return parseDuration(c.ExternalTimeout, 30*time.Second)
}

func (c *Config) ParsedCombineTimeout() time.Duration {
	return parseDuration(c.CombineTimeout, 5*time.Minute)
}

// MaxUploadBytes is the audio upload ceiling. Non-positive values fall back
// to the 50 MB default.
func (c *Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 50 << 20
	}
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) MaxVideoBytes() int64 {
	if c.MaxVideoMB <= 0 {
		return 500 << 20
	}
	return int64(c.MaxVideoMB) << 20
}

// CleanupAge returns the age after which session directories are pruned,
// or zero when cleanup is disabled.
func (c *Config) CleanupAge() time.Duration {
	if c.CleanupAfterDays <= 0 {
		return 0
	}
	return time.Duration(c.CleanupAfterDays) * 24 * time.Hour
}

// APIKey returns the secret for an llm or transcription provider name.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	case "deepgram":
		return c.DeepgramAPIKey
	default:
		return ""
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	strVars := map[string]*string{
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"STATIC_DIR":              &cfg.StaticDir,
		"RECORDINGS_DIR":          &cfg.RecordingsDir,
		"DB_PATH":                 &cfg.DBPath,
		"AUDIO_FORMAT":            &cfg.AudioFormat,
		"COMBINED_AUDIO_FILENAME": &cfg.CombinedAudioFilename,
		"COMBINED_VIDEO_FILENAME": &cfg.CombinedVideoFilename,
		"SESSION_IDLE_TIMEOUT":    &cfg.SessionIdleTimeout,
		"EXTERNAL_TIMEOUT":        &cfg.ExternalTimeout,
		"COMBINE_TIMEOUT":         &cfg.CombineTimeout,
		"FFMPEG_PATH":             &cfg.FFmpegPath,
		"LOG_LEVEL":               &cfg.Logging.Level,
		"LOG_FORMAT":              &cfg.Logging.Format,
		"LOG_FILE":                &cfg.Logging.File,
		"CONVERSATION_MODEL":      &cfg.Conversation.Model,
		"TRANSCRIPTION_PROVIDER":  &cfg.Transcription.Provider,
		"TRANSCRIPTION_MODEL":     &cfg.Transcription.Model,
		"TRANSCRIPTION_LANGUAGE":  &cfg.Transcription.Language,
		"TTS_MODEL":               &cfg.Speech.Model,
		"TTS_VOICE":               &cfg.Speech.Voice,
		"SUMMARY_MODEL":           &cfg.Summary.Model,
	}
	for key, dst := range strVars {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"MAX_UPLOAD_MB":           &cfg.MaxUploadMB,
		"MAX_VIDEO_MB":            &cfg.MaxVideoMB,
		"CLEANUP_AFTER_DAYS":      &cfg.CleanupAfterDays,
		"CONVERSATION_MAX_TOKENS": &cfg.Conversation.MaxTokens,
		"TTS_CACHE_SIZE":          &cfg.Speech.CacheSize,
	}
	for key, dst := range intVars {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	if v := os.Getenv(EnvPrefix + "CONVERSATION_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			cfg.Conversation.Temperature = float32(t)
		}
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Summary.Enabled = b
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if provider, _, ok := strings.Cut(cfg.Conversation.Model, "/"); !ok {
		warnings = append(warnings, fmt.Sprintf("Invalid conversation model %q, expected provider/model. Using the scripted interviewer.", cfg.Conversation.Model))
	} else if cfg.APIKey(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for conversation provider %q. Using the scripted interviewer. Set %s%s_API_KEY.", provider, EnvPrefix, strings.ToUpper(provider)))
	}

	switch cfg.Transcription.Provider {
	case "openai", "deepgram":
		if cfg.APIKey(cfg.Transcription.Provider) == "" {
			warnings = append(warnings, fmt.Sprintf("No API key for transcription provider %q. Uploads will return empty transcripts. Set %s%s_API_KEY.", cfg.Transcription.Provider, EnvPrefix, strings.ToUpper(cfg.Transcription.Provider)))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcription provider %q. Uploads will return empty transcripts.", cfg.Transcription.Provider))
	}

	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured. Speech synthesis is disabled. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}

	for name, raw := range map[string]string{
		"session_idle_timeout": cfg.SessionIdleTimeout,
		"external_timeout":     cfg.ExternalTimeout,
		"combine_timeout":      cfg.CombineTimeout,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q. Using the default.", name, raw))
		}
	}

	if cfg.CombinedAudioFilename == cfg.CombinedVideoFilename {
		warnings = append(warnings, "combined_audio_filename and combined_video_filename are identical. Video will overwrite audio.")
	}

	return warnings
}
