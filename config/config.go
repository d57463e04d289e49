package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/m4xw311/codexgram/errors"
)

// TelegramConfig holds the bot transport settings.
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	AllowedUserID int64  `yaml:"allowed_user_id"`
}

// CodexConfig holds the turn engine settings.
type CodexConfig struct {
	// Command overrides the codex executable path. Empty means PATH lookup.
	Command string `yaml:"command"`
	// LogDir is where per-turn transcript files are written.
	LogDir string `yaml:"log_dir"`
	// ApprovalPolicy is "accept" or "decline", sent for every approval
	// request the agent raises.
	ApprovalPolicy string `yaml:"approval_policy"`
}

// StoreConfig holds the persistence settings.
type StoreConfig struct {
	DataPath    string   `yaml:"data_path"`
	IgnoreGlobs []string `yaml:"ignore_globs"`
	// WatchRoots enables automatic project rescans when root directories
	// change.
	WatchRoots bool `yaml:"watch_roots"`
}

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Codex    CodexConfig    `yaml:"codex"`
	Store    StoreConfig    `yaml:"store"`
}

// LoadConfig layers configuration: the user's home directory first, then a
// .codexgram directory under the working directory, then the explicit path if
// one is given, with later layers taking precedence. Environment variables
// override all of them.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if home, err := os.UserHomeDir(); err == nil {
		userConfigPath := filepath.Join(home, ".codexgram", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	localConfigPath := filepath.Join(".", ".codexgram", "config.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		if err := loadFromFile(localConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading local config")
		}
	}

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", path)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func defaultConfig() *Config {
	base := ".codexgram"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".codexgram")
	}
	return &Config{
		Codex: CodexConfig{
			LogDir:         filepath.Join(base, "logs"),
			ApprovalPolicy: "accept",
		},
		Store: StoreConfig{
			DataPath: filepath.Join(base, "projects.json"),
		},
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, giving a simple merge
	// where the later file replaces the earlier one.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_ALLOWED_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.AllowedUserID = id
		}
	}
	if v := os.Getenv("CODEX_COMMAND"); v != "" {
		c.Codex.Command = v
	}
}

// ValidateForBot checks the settings the Telegram bot cannot run without.
func (c *Config) ValidateForBot() error {
	if c.Telegram.BotToken == "" {
		return errors.New("missing telegram bot_token (set telegram.bot_token or TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.AllowedUserID == 0 {
		return errors.New("missing telegram allowed_user_id (set telegram.allowed_user_id or TELEGRAM_ALLOWED_USER_ID)")
	}
	return nil
}
