// Package config loads ntropiq settings from defaults, an optional YAML file, .env files
// and the environment, then validates them.
//
// Precedence, lowest first: defaults, config file, .env files (config dir, then working
// dir), process environment, command-line flags. Every key can be set as NTROPIQ_<SECTION>_<KEY>; API keys
// and ElevenLabs settings also accept their conventional unprefixed names.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ntropiq/internal/logger"
)

// EnvPrefix prefixes every ntropiq environment variable.
const EnvPrefix = "NTROPIQ"

// Config is the validated ntropiq configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	TTS     TTSConfig     `mapstructure:"tts" yaml:"tts"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Voice   VoiceConfig   `mapstructure:"voice" yaml:"voice"`
}

// LLMConfig selects the text generation provider.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider" validate:"oneof=gemini openai anthropic"`
	Model           string        `mapstructure:"model" yaml:"model" validate:"required"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key" yaml:"-"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key" yaml:"-"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key" yaml:"-"`
}

// APIKey returns the key for the selected provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}

// TTSConfig configures ElevenLabs speech synthesis.
type TTSConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"-"`
	VoiceID string `mapstructure:"voice_id" yaml:"voice_id" validate:"required"`
	ModelID string `mapstructure:"model_id" yaml:"model_id" validate:"required"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=memory badger sqlite"`
	Path   string `mapstructure:"path" yaml:"path" validate:"required_unless=Driver memory"`
	// GCInterval is how often `serve` reclaims badger value log space. Zero disables it.
	GCInterval time.Duration `mapstructure:"gc_interval" yaml:"gc_interval" validate:"min=0"`
}

// ServerConfig configures `ntropiq serve`.
type ServerConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr" validate:"required"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"min=0"`
	Burst     int     `mapstructure:"burst" yaml:"burst" validate:"min=0"`
}

// ClientConfig points the CLI at a running ntropiq server instead of calling providers directly.
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// VoiceConfig tunes voice capture timing.
type VoiceConfig struct {
	SilenceTimeout time.Duration `mapstructure:"silence_timeout" yaml:"silence_timeout" validate:"gt=0"`
	ResumeDelay    time.Duration `mapstructure:"resume_delay" yaml:"resume_delay" validate:"gt=0"`
}

// Options controls where Load looks.
type Options struct {
	// Path is an explicit config file. A missing explicit file is an error.
	Path string
	// ConfigDir defaults to $XDG_CONFIG_HOME/ntropiq.
	ConfigDir string
	// WorkDir defaults to the current directory.
	WorkDir string
	// TestMode skips .env files and the default config file.
	TestMode bool
	// Flags maps configuration keys to command-line flags. A flag that was set on the
	// command line outranks every other source.
	Flags map[string]*pflag.Flag
}

// envAliases lists unprefixed variable names accepted for a key.
var envAliases = map[string][]string{
	"llm.gemini_api_key":    {"GEMINI_API_KEY"},
	"llm.openai_api_key":    {"OPENAI_API_KEY"},
	"llm.anthropic_api_key": {"ANTHROPIC_API_KEY"},
	"tts.api_key":           {"ELEVENLABS_API_KEY"},
	"tts.voice_id":          {"ELEVENLABS_VOICE_ID"},
	"tts.model_id":          {"ELEVENLABS_MODEL_ID"},
}

var validate = validator.New()

// DefaultConfigDir returns $XDG_CONFIG_HOME/ntropiq, or ./.ntropiq when no config home exists.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".ntropiq"
	}
	return filepath.Join(dir, "ntropiq")
}

// Load builds a Config from opts.
func Load(opts Options) (*Config, error) {
	if opts.ConfigDir == "" {
		opts.ConfigDir = DefaultConfigDir()
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		opts.WorkDir = wd
	}

	v := viper.New()
	setDefaults(v, opts.ConfigDir)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag for %s: %w", key, err)
		}
	}
	if err := readConfigFile(v, opts); err != nil {
		return nil, err
	}
	if !opts.TestMode {
		if err := applyDotEnv(v, opts.Flags, filepath.Join(opts.ConfigDir, ".env"), filepath.Join(opts.WorkDir, ".env")); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("Configuration loaded", "provider", cfg.LLM.Provider, "storage", cfg.Storage.Driver,
		"config_file", v.ConfigFileUsed())
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("tts.model_id", "eleven_multilingual_v2")
	v.SetDefault("tts.base_url", "")
	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.path", filepath.Join(configDir, "data"))
	v.SetDefault("storage.gc_interval", 5*time.Minute)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.burst", 0)
	v.SetDefault("client.base_url", "")
	v.SetDefault("client.timeout", 60*time.Second)
	v.SetDefault("voice.silence_timeout", 3*time.Second)
	v.SetDefault("voice.resume_delay", 600*time.Millisecond)
}

// envNames returns the variables consulted for key, prefixed name first.
func envNames(key string) []string {
	prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return append([]string{prefixed}, envAliases[key]...)
}

func bindEnv(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(append([]string{key}, envNames(key)...)...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, opts Options) error {
	path := opts.Path
	if path == "" {
		if opts.TestMode {
			return nil
		}
		path = filepath.Join(opts.ConfigDir, "config.yaml")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// applyDotEnv sets keys from .env files unless the process environment or an explicitly
// set flag already provides them. Later files win over earlier ones. Missing files are skipped.
func applyDotEnv(v *viper.Viper, flags map[string]*pflag.Flag, paths ...string) error {
	merged := make(map[string]string)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read .env file %s: %w", path, err)
		}
		envMap, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return fmt.Errorf("failed to parse .env file %s: %w", path, err)
		}
		for name, value := range envMap {
			merged[name] = value
		}
		logger.Debug("Loaded .env file", "path", path, "entries", len(envMap))
	}

	for _, key := range v.AllKeys() {
		if flag := flags[key]; flag != nil && flag.Changed {
			continue
		}
		names := envNames(key)
		if inEnvironment(names) {
			continue
		}
		for _, name := range names {
			if value, ok := merged[name]; ok {
				v.Set(key, value)
				break
			}
		}
	}
	return nil
}

func inEnvironment(names []string) bool {
	for _, name := range names {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}
