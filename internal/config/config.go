package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Whisper       WhisperConfig       `yaml:"whisper"`
	Hallucination HallucinationConfig `yaml:"hallucination"`
	Structuring   StructuringConfig   `yaml:"structuring"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
	App           AppConfig           `yaml:"app"`
}

// AudioConfig contains capture and chunking parameters
type AudioConfig struct {
	SampleRate   int    `yaml:"sample_rate"`   // 16000 Hz (Whisper/VAD native rate)
	ChunkMS      int    `yaml:"chunk_ms"`      // VAD inference chunk (32 ms)
	FFmpegBinary string `yaml:"ffmpeg_binary"` // microphone capture command
	InputFormat  string `yaml:"input_format"`  // ffmpeg input format (alsa, avfoundation, ...)
	Device       string `yaml:"device"`        // ffmpeg input device
}

// VADConfig contains the hysteresis segmentation parameters
type VADConfig struct {
	StartThreshold  float64 `yaml:"start_threshold"`   // recording start (high, noise rejection)
	EndThreshold    float64 `yaml:"end_threshold"`     // recording end (low, protects trailing syllables)
	MinSpeechChunks int     `yaml:"min_speech_chunks"` // consecutive chunks before speech confirmed
	MaxTailChunks   int     `yaml:"max_tail_chunks"`   // silent chunks before an utterance ends
	IdleResetChunks int     `yaml:"idle_reset_chunks"` // idle silence before detector state reset
	PrerollSec      float64 `yaml:"preroll_sec"`       // ring buffer depth kept ahead of speech onset
}

// PhaseConfig is a single step of the transcription retry cascade.
// The cascade is data: adding or removing phases requires no logic change.
type PhaseConfig struct {
	Name                string  `yaml:"name"`
	Temperature         float32 `yaml:"temperature"`
	MaxCompressionRatio float64 `yaml:"max_compression_ratio"`
	MinAvgLogProb       float64 `yaml:"min_avg_logprob"`
	NoSpeechThreshold   float64 `yaml:"no_speech_threshold"`
	UseInitialPrompt    bool    `yaml:"use_initial_prompt"`
}

// WhisperConfig contains speech-to-text parameters
type WhisperConfig struct {
	Model         string        `yaml:"model"`
	Language      string        `yaml:"language"`
	InitialPrompt string        `yaml:"initial_prompt"`
	TimeoutSec    int           `yaml:"timeout"` // per-decode timeout, seconds
	Phases        []PhaseConfig `yaml:"phases"`
}

// HallucinationConfig contains the filter tunables
type HallucinationConfig struct {
	BannedPhrases        []string `yaml:"banned_phrases"`
	ContextlessGreetings []string `yaml:"contextless_greetings"`

	MinCharRepetition         int     `yaml:"min_char_repetition"`
	MinShortPatternRepetition int     `yaml:"min_short_pattern_repetition"`
	MinLongPatternRepetition  int     `yaml:"min_long_pattern_repetition"`
	MinTokenRepetition        int     `yaml:"min_token_repetition"`
	ShortPatternMaxLength     int     `yaml:"short_pattern_max_length"`
	LongPatternMinLength      int     `yaml:"long_pattern_min_length"`
	LongPatternMaxLength      int     `yaml:"long_pattern_max_length"`
	PatternSearchPositions    int     `yaml:"pattern_search_positions"`
	RepetitionRatioThreshold  float64 `yaml:"repetition_ratio_threshold"`

	ExtremeLowLogProb    float64 `yaml:"extreme_low_logprob"`
	GreetingLowLogProb   float64 `yaml:"greeting_low_logprob"`
	GreetingLongAudioSec float64 `yaml:"greeting_long_audio_sec"`
	GreetingShortText    int     `yaml:"greeting_short_text"`
}

// StructuringConfig contains the incremental summarization parameters
type StructuringConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	TriggerThreshold  int     `yaml:"trigger_threshold"`  // pending characters before a call
	SilenceTimeoutSec float64 `yaml:"silence_timeout"`    // seconds of quiet before a forced call
	TimeoutSec        int     `yaml:"timeout"`            // per-call timeout, seconds
	MaxRetries        int     `yaml:"max_retries"`
	RetryDelaySec     float64 `yaml:"retry_delay"`
}

// HTTPConfig contains the status API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AppConfig contains application-level behavior
type AppConfig struct {
	SaveJSON           bool    `yaml:"save_json"`
	OutputDir          string  `yaml:"output_dir"`
	UtteranceQueueSize int     `yaml:"utterance_queue_size"`
	SilenceCheckSec    float64 `yaml:"silence_check_interval"`
}

// whisperInitialPrompt biases the decoder toward punctuated Japanese output.
const whisperInitialPrompt = "句読点を含む正確な日本語で書き起こします。"

// Default returns the built-in configuration. Every field mirrors the tuned
// Japanese dictation defaults.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:   16000,
			ChunkMS:      32,
			FFmpegBinary: "ffmpeg",
			InputFormat:  defaultInputFormat(),
			Device:       "default",
		},
		VAD: VADConfig{
			StartThreshold:  0.5,
			EndThreshold:    0.3,
			MinSpeechChunks: 3,
			MaxTailChunks:   25,
			IdleResetChunks: 1000, // ~32 s at 32 ms chunks
			PrerollSec:      3.0,
		},
		Whisper: WhisperConfig{
			Model:         "whisper-1",
			Language:      "ja",
			InitialPrompt: whisperInitialPrompt,
			TimeoutSec:    60,
			// Escalation: standard -> anti-loop -> prompt removal -> strict -> final gate.
			// Temperature rises for decoding diversity while the repetition and
			// confidence gates tighten toward the end.
			Phases: []PhaseConfig{
				{Name: "standard", Temperature: 0.0, MaxCompressionRatio: 2.4, MinAvgLogProb: -1.0, NoSpeechThreshold: 0.6, UseInitialPrompt: true},
				{Name: "anti-loop", Temperature: 0.2, MaxCompressionRatio: 2.0, MinAvgLogProb: -1.0, NoSpeechThreshold: 0.6, UseInitialPrompt: true},
				{Name: "no-prompt", Temperature: 0.4, MaxCompressionRatio: 2.2, MinAvgLogProb: -1.0, NoSpeechThreshold: 0.6, UseInitialPrompt: false},
				{Name: "strict", Temperature: 0.6, MaxCompressionRatio: 1.8, MinAvgLogProb: -0.6, NoSpeechThreshold: 0.5, UseInitialPrompt: false},
				{Name: "final-gate", Temperature: 0.8, MaxCompressionRatio: 1.4, MinAvgLogProb: -0.4, NoSpeechThreshold: 0.4, UseInitialPrompt: false},
			},
		},
		Hallucination: HallucinationConfig{
			BannedPhrases: []string{
				whisperInitialPrompt,
				"書き起こします",
				"ご視聴ありがとうございました",
				"チャンネル登録",
				"高評価",
				"Thank you for watching",
				"次回予告",
				"MBC News",
				"Subtitles by",
				"字幕",
				"ブーブー",
				"ブーバー",
				"BGM",
				"♪",
			},
			ContextlessGreetings: []string{
				"おやすみなさい", "おやすみ",
				"おはようございます", "おはよう",
				"こんにちは", "こんばんは", "さようなら",
				"ありがとうございました", "ありがとうございます", "ありがとう",
				"お疲れ様でした", "お疲れ様です", "お疲れさまでした", "お疲れさまです",
				"いただきます", "ごちそうさまでした", "ごちそうさま",
				"行ってきます", "行ってらっしゃい",
				"ただいま", "おかえりなさい", "おかえり",
			},
			MinCharRepetition:         10,
			MinShortPatternRepetition: 5,
			MinLongPatternRepetition:  3,
			MinTokenRepetition:        5,
			ShortPatternMaxLength:     10,
			LongPatternMinLength:      11,
			LongPatternMaxLength:      50,
			PatternSearchPositions:    50,
			RepetitionRatioThreshold:  0.5,
			ExtremeLowLogProb:         -1.7,
			GreetingLowLogProb:        -0.8,
			GreetingLongAudioSec:      5.0,
			GreetingShortText:         15,
		},
		Structuring: StructuringConfig{
			Enabled:           true,
			Model:             "gpt-4o-mini",
			MaxTokens:         4096,
			TriggerThreshold:  600,
			SilenceTimeoutSec: 60.0,
			TimeoutSec:        60,
			MaxRetries:        3,
			RetryDelaySec:     2.0,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		App: AppConfig{
			SaveJSON:           true,
			OutputDir:          ".",
			UtteranceQueueSize: 16,
			SilenceCheckSec:    1.0,
		},
	}
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

// Load reads the configuration file at path, layered over the defaults.
// An empty path or a missing file yields the defaults unchanged.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}

	if err := c.Structuring.Validate(); err != nil {
		return fmt.Errorf("structuring config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz (Whisper/VAD native rate), got %d", a.SampleRate)
	}

	if a.ChunkMS <= 0 {
		return fmt.Errorf("chunk_ms must be positive, got %d", a.ChunkMS)
	}

	if a.FFmpegBinary == "" {
		return fmt.Errorf("ffmpeg_binary cannot be empty")
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.StartThreshold < 0 || v.StartThreshold > 1 {
		return fmt.Errorf("start_threshold must be between 0 and 1, got %f", v.StartThreshold)
	}

	if v.EndThreshold < 0 || v.EndThreshold > 1 {
		return fmt.Errorf("end_threshold must be between 0 and 1, got %f", v.EndThreshold)
	}

	if v.EndThreshold > v.StartThreshold {
		return fmt.Errorf("end_threshold (%f) must not exceed start_threshold (%f)",
			v.EndThreshold, v.StartThreshold)
	}

	if v.MinSpeechChunks < 1 {
		return fmt.Errorf("min_speech_chunks must be at least 1, got %d", v.MinSpeechChunks)
	}

	if v.MaxTailChunks < 1 {
		return fmt.Errorf("max_tail_chunks must be at least 1, got %d", v.MaxTailChunks)
	}

	if v.IdleResetChunks < 1 {
		return fmt.Errorf("idle_reset_chunks must be at least 1, got %d", v.IdleResetChunks)
	}

	if v.PrerollSec < 0 {
		return fmt.Errorf("preroll_sec cannot be negative, got %f", v.PrerollSec)
	}

	return nil
}

// Validate validates whisper configuration
func (w *WhisperConfig) Validate() error {
	if w.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if w.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if w.TimeoutSec < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", w.TimeoutSec)
	}

	if len(w.Phases) == 0 {
		return fmt.Errorf("at least one cascade phase is required")
	}

	for i, p := range w.Phases {
		if p.Name == "" {
			return fmt.Errorf("phase %d: name cannot be empty", i+1)
		}
		if p.Temperature < 0 || p.Temperature > 1 {
			return fmt.Errorf("phase %d: temperature must be between 0 and 1, got %f", i+1, p.Temperature)
		}
		if p.MaxCompressionRatio <= 0 {
			return fmt.Errorf("phase %d: max_compression_ratio must be positive, got %f", i+1, p.MaxCompressionRatio)
		}
	}

	return nil
}

// Validate validates structuring configuration
func (s *StructuringConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Model == "" {
		return fmt.Errorf("model cannot be empty when structuring is enabled")
	}

	if s.TriggerThreshold < 1 {
		return fmt.Errorf("trigger_threshold must be at least 1, got %d", s.TriggerThreshold)
	}

	if s.SilenceTimeoutSec <= 0 {
		return fmt.Errorf("silence_timeout must be positive, got %f", s.SilenceTimeoutSec)
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", s.MaxRetries)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Validate validates application configuration
func (a *AppConfig) Validate() error {
	if a.UtteranceQueueSize < 1 {
		return fmt.Errorf("utterance_queue_size must be at least 1, got %d", a.UtteranceQueueSize)
	}

	if a.SilenceCheckSec <= 0 {
		return fmt.Errorf("silence_check_interval must be positive, got %f", a.SilenceCheckSec)
	}

	return nil
}

// ChunkSize returns the VAD inference chunk size in samples
func (a *AudioConfig) ChunkSize() int {
	return a.SampleRate * a.ChunkMS / 1000
}

// ChunkDuration returns the duration of one chunk
func (a *AudioConfig) ChunkDuration() time.Duration {
	return time.Duration(a.ChunkMS) * time.Millisecond
}

// PrerollChunks returns the ring buffer capacity in chunks for the given
// sample rate and chunk size in samples
func (v *VADConfig) PrerollChunks(sampleRate, chunkSize int) int {
	return int(v.PrerollSec * float64(sampleRate) / float64(chunkSize))
}

// GetTimeoutDuration returns the per-decode timeout as a time.Duration
func (w *WhisperConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(w.TimeoutSec) * time.Second
}

// GetSilenceTimeout returns the silence trigger timeout as a time.Duration
func (s *StructuringConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutSec * float64(time.Second))
}

// GetTimeoutDuration returns the per-call timeout as a time.Duration
func (s *StructuringConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// GetRetryDelay returns the base retry delay as a time.Duration
func (s *StructuringConfig) GetRetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySec * float64(time.Second))
}

// GetSilenceCheckInterval returns the trigger evaluation period as a time.Duration
func (a *AppConfig) GetSilenceCheckInterval() time.Duration {
	return time.Duration(a.SilenceCheckSec * float64(time.Second))
}
