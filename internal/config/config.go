package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const appName = "fyydbot"

type Config struct {
	Mastodon MastodonConfig
	Oracle   OracleConfig
	Fyyd     FyydConfig
	Bot      BotConfig
	Retry    RetryConfig
	Server   ServerConfig
	Log      LogConfig
}

type MastodonConfig struct {
	Instance    string
	AccessToken string
}

type OracleConfig struct {
	Provider  string
	BaseURL   string
	Model     string
	APIKey    string
	Timeout   time.Duration
	MaxTokens int
}

type FyydConfig struct {
	BaseURL   string
	Blacklist []string
}

type BotConfig struct {
	PollInterval  time.Duration
	FetchCooldown time.Duration
	Acknowledge   bool
}

type RetryConfig struct {
	MaxAttempts int
	Unit        time.Duration
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	return Config{
		Oracle: OracleConfig{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "llama3.1:8b",
			Timeout:   2 * time.Minute,
			MaxTokens: 256,
		},
		Fyyd: FyydConfig{
			BaseURL:   "https://api.fyyd.de/0.2/",
			Blacklist: []string{"Podcast"},
		},
		Bot: BotConfig{
			PollInterval:  10 * time.Second,
			FetchCooldown: 60 * time.Second,
			Acknowledge:   true,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			Unit:        10 * time.Second,
		},
		Server: ServerConfig{
			Port: 4000,
		},
		Log: LogConfig{
			Level: "info",
			File:  "fyydbot.log",
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// YAML file at $XDG_CONFIG_HOME/fyydbot/config.yaml, FYYDBOT_* environment
// variables and the secrets file, in increasing order of precedence except
// that secrets only fill values still empty.
//
// The .env file never overrides variables already set in the environment.
func Load() (Config, error) {
	loadDotEnv()
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

// Inspect returns the effective configuration without checking required
// keys, for display.
func Inspect() Config {
	loadDotEnv()
	cfg := defaults()
	if err := applyBackend(&cfg, newFileBackend(configFilePath())); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v\n", err)
	}
	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secretsFile{path: secretsFilePath()})
	return cfg
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Mastodon.Instance == "" {
		missing = append(missing, "mastodon.instance (FYYDBOT_MASTODON_INSTANCE)")
	}
	if c.Mastodon.AccessToken == "" {
		missing = append(missing, "mastodon.access_token (FYYDBOT_MASTODON_ACCESS_TOKEN or "+secretsFilePath()+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.Oracle.Provider {
	case "ollama", "langchain-ollama":
	case "openai", "anthropic":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("missing required config: oracle.api_key for provider %s", c.Oracle.Provider)
		}
	default:
		return fmt.Errorf("invalid oracle.provider %q", c.Oracle.Provider)
	}
	return nil
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, appName, "config.yaml")
}
