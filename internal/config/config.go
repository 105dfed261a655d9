package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"talkbot/internal"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	SchemaNested = "nested"
	SchemaFlat   = "flat"
)

type AIConfig struct {
	Provider          string  `toml:"provider"`
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	ManagerModel      string  `toml:"manager_model"`
	WorkerModel       string  `toml:"worker_model"`
	Temperature       float32 `toml:"temperature"`
	MaxResponseTokens int     `toml:"max_response_tokens"`
	APITimeout        int     `toml:"api_timeout"`
}

type DialogueConfig struct {
	// Schema selects which talk_to_ai shape is advertised to the manager.
	// Both shapes are always accepted.
	Schema        string `toml:"schema"`
	MaxTurns      int    `toml:"max_turns"`
	MaxViolations int    `toml:"max_violations"`
	Summarize     bool   `toml:"summarize"`
	SystemPrompt  string `toml:"system_prompt"`
}

type IRCConfig struct {
	Server        string   `toml:"server"`
	Nick          string   `toml:"nick"`
	User          string   `toml:"user"`
	RealName      string   `toml:"real_name"`
	Password      string   `toml:"password"`
	Channels      []string `toml:"channels"`
	CommandPrefix string   `toml:"command_prefix"`
}

type TelegramConfig struct {
	Token     string   `toml:"token"`
	AllowFrom []string `toml:"allow_from"`
	Proxy     string   `toml:"proxy"`
}

type WebSocketConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Config struct {
	DataDir   string          `toml:"data_dir"`
	Debug     bool            `toml:"debug"`
	AI        AIConfig        `toml:"ai"`
	Dialogue  DialogueConfig  `toml:"dialogue"`
	IRC       IRCConfig       `toml:"irc"`
	Telegram  TelegramConfig  `toml:"telegram"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Archive   ArchiveConfig   `toml:"archive"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: internal.DEFAULT_DATA_DIR,
		Debug:   false,
		AI: AIConfig{
			Provider:          ProviderOpenAI,
			ManagerModel:      "gpt-4o",
			WorkerModel:       "gpt-4o",
			Temperature:       0.7,
			MaxResponseTokens: 4096,
			APITimeout:        120,
		},
		Dialogue: DialogueConfig{
			Schema:        SchemaNested,
			MaxTurns:      20,
			MaxViolations: 3,
			Summarize:     true,
		},
		IRC: IRCConfig{
			CommandPrefix: "!",
		},
		WebSocket: WebSocketConfig{
			ListenAddr: ":8090",
			Path:       "/ws",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    internal.DEFAULT_ARCHIVE_DB,
		},
	}
}

// ValidateConfig checks the settings every command needs.
func ValidateConfig(cfg *Config) error {
	var problems []string

	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		problems = append(problems, fmt.Sprintf("ai.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderAnthropic, cfg.AI.Provider))
	}
	if cfg.AI.ManagerModel == "" {
		problems = append(problems, "ai.manager_model is required")
	}
	if cfg.AI.WorkerModel == "" {
		problems = append(problems, "ai.worker_model is required")
	}
	if cfg.AI.MaxResponseTokens <= 0 {
		problems = append(problems, "ai.max_response_tokens must be positive")
	}
	if cfg.AI.APITimeout <= 0 {
		problems = append(problems, "ai.api_timeout must be positive")
	}

	switch cfg.Dialogue.Schema {
	case SchemaNested, SchemaFlat:
	default:
		problems = append(problems, fmt.Sprintf("dialogue.schema must be %q or %q, got %q",
			SchemaNested, SchemaFlat, cfg.Dialogue.Schema))
	}
	if cfg.Dialogue.MaxTurns <= 0 {
		problems = append(problems, "dialogue.max_turns must be positive")
	}
	if cfg.Dialogue.MaxViolations <= 0 {
		problems = append(problems, "dialogue.max_violations must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateIRC checks the fields the IRC transport requires.
func ValidateIRC(cfg *IRCConfig) error {
	var missingFields []string

	if cfg.Server == "" {
		missingFields = append(missingFields, "irc.server")
	}
	if cfg.Nick == "" {
		missingFields = append(missingFields, "irc.nick")
	}
	if cfg.User == "" {
		missingFields = append(missingFields, "irc.user")
	}
	if cfg.RealName == "" {
		missingFields = append(missingFields, "irc.real_name")
	}
	if len(cfg.Channels) == 0 {
		missingFields = append(missingFields, "irc.channels")
	}

	if cfg.Server != "" && !strings.Contains(cfg.Server, ":") {
		return fmt.Errorf("server address does not contain a port (format should be host:port)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}

func ValidateTelegram(cfg *TelegramConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("missing required configuration fields: telegram.token (or TELEGRAM_TOKEN)")
	}
	return nil
}

// LoadConfig reads a TOML file on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv fills secrets and paths from the environment.
func ApplyEnv(cfg *Config) {
	if dir := os.Getenv("TALKBOT_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if provider := os.Getenv("TALKBOT_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}

	if cfg.AI.APIKey == "" {
		switch cfg.AI.Provider {
		case ProviderOpenAI:
			cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			cfg.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	}
}

// ArchivePath resolves the archive database path against the data directory.
func (c *Config) ArchivePath() string {
	if filepath.IsAbs(c.Archive.Path) {
		return c.Archive.Path
	}
	return filepath.Join(c.DataDir, c.Archive.Path)
}

// GetConfigPath returns the config file location, honoring CONFIG_PATH.
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = internal.DEFAULT_CONFIG_PATH
	}
	return configPath
}

// SaveConfig writes cfg as TOML, creating the parent directory.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for config file: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			fmt.Printf("failed to close config file: %v\n", err)
		}
	}(file)

	// Never write the API key back to disk.
	copied := *cfg
	copied.AI.APIKey = ""
	copied.Telegram.Token = ""

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(copied); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
