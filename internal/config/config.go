package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
	BackendGrok   = "grok"
	BackendOllama = "ollama"
)

const (
	DefaultPushoverURL       = "https://api.pushover.net/1/messages.json"
	DefaultMaxToolIterations = 10
	DefaultListenAddr        = ":7860"
	DefaultLogDir            = "logs"
	DefaultLogLevel          = "info"
)

var (
	ErrMissingAPIKey        = errors.New("model API key is required")
	ErrMissingPushoverToken = errors.New("PUSHOVER_TOKEN is required")
	ErrMissingPushoverUser  = errors.New("PUSHOVER_USER is required")
)

// Preset describes how to reach one OpenAI-compatible backend.
type Preset struct {
	BaseURL   string
	Model     string
	APIKeyEnv string // empty when the backend needs no key
}

var presets = map[string]Preset{
	BackendGemini: {
		BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai/",
		Model:     "gemini-2.5-flash-preview-05-20",
		APIKeyEnv: "GEMINI_API_KEY",
	},
	BackendOpenAI: {
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "OPENAI_API_KEY",
	},
	BackendGrok: {
		BaseURL:   "https://api.x.ai/v1",
		Model:     "grok-2-latest",
		APIKeyEnv: "GROK_API_KEY",
	},
	BackendOllama: {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3:latest",
	},
}

// PresetFor returns the preset registered for backend.
func PresetFor(backend string) (Preset, bool) {
	p, ok := presets[backend]
	return p, ok
}

// Config holds application configuration
type Config struct {
	Backend string `toml:"backend"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"-"` // only ever read from the environment

	PushoverToken string `toml:"-"`
	PushoverUser  string `toml:"-"`
	PushoverURL   string `toml:"pushover_url"`

	MaxToolIterations int    `toml:"max_tool_iterations"`
	ListenAddr        string `toml:"listen_addr"`
	SystemPromptFile  string `toml:"system_prompt_file"`

	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"`
	Debug    bool   `toml:"debug"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		Backend:           BackendGemini,
		PushoverURL:       DefaultPushoverURL,
		MaxToolIterations: DefaultMaxToolIterations,
		ListenAddr:        DefaultListenAddr,
		LogDir:            DefaultLogDir,
		LogLevel:          DefaultLogLevel,
	}
}

// LoadDotEnv loads a .env file into the process environment, overriding
// values that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFile decodes a TOML configuration file on top of cfg.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the non-secret settings found in the environment.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("QUIZ_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("QUIZ_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("QUIZ_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("QUIZ_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("QUIZ_MAX_TOOL_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid QUIZ_MAX_TOOL_ITERATIONS %q: %w", v, err)
		}
		cfg.MaxToolIterations = n
	}
	return nil
}

// Resolve fills model and base URL from the backend preset when unset and
// reads the credentials from the environment.
func Resolve(cfg *Config) error {
	preset, ok := PresetFor(cfg.Backend)
	if !ok {
		return fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
	if cfg.Model == "" {
		cfg.Model = preset.Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = preset.BaseURL
	}
	if preset.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(preset.APIKeyEnv)
	}
	cfg.PushoverToken = os.Getenv("PUSHOVER_TOKEN")
	cfg.PushoverUser = os.Getenv("PUSHOVER_USER")
	return nil
}

// Validate reports the first missing credential or invalid setting.
func (c Config) Validate() error {
	preset, ok := PresetFor(c.Backend)
	if !ok {
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if preset.APIKeyEnv != "" && c.APIKey == "" {
		return fmt.Errorf("%w: set %s", ErrMissingAPIKey, preset.APIKeyEnv)
	}
	if c.PushoverToken == "" {
		return ErrMissingPushoverToken
	}
	if c.PushoverUser == "" {
		return ErrMissingPushoverUser
	}
	if c.MaxToolIterations < 1 {
		return fmt.Errorf("max tool iterations must be at least 1, got %d", c.MaxToolIterations)
	}
	return nil
}

// Load builds a Config from defaults, the optional TOML file, the .env file
// and the environment, in that order. Callers overlay flags afterwards and
// then call Resolve and Validate.
func Load(configFile, envFile string) (Config, error) {
	cfg := Default()
	if err := LoadFile(&cfg, configFile); err != nil {
		return cfg, err
	}
	if err := LoadDotEnv(envFile); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
