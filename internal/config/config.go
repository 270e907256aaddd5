package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/obiente/translate/whisperstream/internal/stream"
)

type Config struct {
	Addr                  string `yaml:"addr"`
	ModelPath             string `yaml:"model_path"`
	LogLevel              string `yaml:"log_level"`
	ServiceName           string `yaml:"service_name"`
	TranslationBaseURL    string `yaml:"translation_base_url"`
	TranslationEnabled    bool   `yaml:"translation_enabled"`
	TranslationTimeoutSec int    `yaml:"translation_timeout_sec"`

	// Whisper holds the default settings of every new session. Clients may
	// override them per connection.
	Whisper stream.Settings `yaml:"whisper"`
	Stream  stream.Timing   `yaml:"stream"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat32(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                  ":8080",
		ModelPath:             "./models/ggml-base.en.bin",
		LogLevel:              "info",
		ServiceName:           "whisperstream",
		TranslationBaseURL:    "https://libretranslate.obiente.cloud",
		TranslationEnabled:    true,
		TranslationTimeoutSec: 8,
		Whisper:               stream.DefaultSettings(),
		Stream:                stream.DefaultTiming(),
	}
}

// Load builds the configuration from defaults, the YAML file named by
// WHISPER_CONFIG (if set) and the environment, in that order.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("WHISPER_CONFIG"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: open %q: %w", path, err)
		}
		err = decode(f, &cfg)
		f.Close()
		if err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromReader overlays the YAML in r onto the defaults and validates the
// result. The environment is not consulted.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("WHISPER_GO_ADDR", cfg.Addr)
	cfg.ModelPath = getenv("WHISPER_MODEL_PATH", cfg.ModelPath)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.ServiceName = getenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	cfg.TranslationBaseURL = getenv("TRANSLATION_BASE_URL", cfg.TranslationBaseURL)
	cfg.TranslationEnabled = getenvBool("WHISPER_SERVER_TRANSLATIONS", cfg.TranslationEnabled)
	cfg.TranslationTimeoutSec = getenvInt("TRANSLATION_TIMEOUT", cfg.TranslationTimeoutSec)

	w := &cfg.Whisper
	w.Language = getenv("WHISPER_LANGUAGE", w.Language)
	w.Translate = getenvBool("WHISPER_TRANSLATE", w.Translate)
	w.UseGPU = getenvBool("WHISPER_USE_GPU", w.UseGPU)
	w.SpeedUp = getenvBool("WHISPER_SPEED_UP", w.SpeedUp)
	w.Threads = getenvInt("WHISPER_THREADS", w.Threads)
	w.MaxTokens = getenvInt("WHISPER_MAX_TOKENS", w.MaxTokens)
	w.VADThreshold = getenvFloat32("WHISPER_VAD_THRESHOLD", w.VADThreshold)
	w.FreqThreshold = getenvFloat32("WHISPER_FREQ_THRESHOLD", w.FreqThreshold)
	w.EntropyThreshold = getenvFloat32("WHISPER_ENTROPY_THRESHOLD", w.EntropyThreshold)
}

// Validate returns a joined error listing every problem in cfg.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q is invalid", cfg.LogLevel))
	}
	if cfg.TranslationTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("translation_timeout_sec must be >= 0, got %d", cfg.TranslationTimeoutSec))
	}
	if err := cfg.Whisper.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("whisper: %w", err))
	}
	if err := cfg.Stream.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stream: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
