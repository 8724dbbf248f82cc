package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "mastodon.instance", typ: kString, env: "FYYDBOT_MASTODON_INSTANCE",
		apply:   func(cfg *Config, v any) { cfg.Mastodon.Instance = v.(string) },
		extract: func(cfg Config) any { return cfg.Mastodon.Instance },
	},
	{
		key: "mastodon.access_token", typ: kString, env: "FYYDBOT_MASTODON_ACCESS_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mastodon.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Mastodon.AccessToken },
	},
	{
		key: "oracle.provider", typ: kString, env: "FYYDBOT_ORACLE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.Provider },
	},
	{
		key: "oracle.base_url", typ: kString, env: "FYYDBOT_ORACLE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.BaseURL },
	},
	{
		key: "oracle.model", typ: kString, env: "FYYDBOT_ORACLE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.Model },
	},
	{
		key: "oracle.api_key", typ: kString, env: "FYYDBOT_ORACLE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Oracle.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.APIKey },
	},
	{
		key: "oracle.timeout", typ: kDuration, env: "FYYDBOT_ORACLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Oracle.Timeout },
	},
	{
		key: "oracle.max_tokens", typ: kInt, env: "FYYDBOT_ORACLE_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Oracle.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Oracle.MaxTokens },
	},
	{
		key: "fyyd.base_url", typ: kString, env: "FYYDBOT_FYYD_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Fyyd.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Fyyd.BaseURL },
	},
	{
		key: "fyyd.blacklist", typ: kList, env: "FYYDBOT_FYYD_BLACKLIST",
		apply:   func(cfg *Config, v any) { cfg.Fyyd.Blacklist = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Fyyd.Blacklist, ",") },
	},
	{
		key: "bot.poll_interval", typ: kDuration, env: "FYYDBOT_BOT_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Bot.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Bot.PollInterval },
	},
	{
		key: "bot.fetch_cooldown", typ: kDuration, env: "FYYDBOT_BOT_FETCH_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Bot.FetchCooldown = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Bot.FetchCooldown },
	},
	{
		key: "bot.acknowledge", typ: kBool, env: "FYYDBOT_BOT_ACKNOWLEDGE",
		apply:   func(cfg *Config, v any) { cfg.Bot.Acknowledge = v.(bool) },
		extract: func(cfg Config) any { return cfg.Bot.Acknowledge },
	},
	{
		key: "retry.max_attempts", typ: kInt, env: "FYYDBOT_RETRY_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxAttempts },
	},
	{
		key: "retry.unit", typ: kDuration, env: "FYYDBOT_RETRY_UNIT",
		apply:   func(cfg *Config, v any) { cfg.Retry.Unit = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retry.Unit },
	},
	{
		key: "server.port", typ: kInt, env: "FYYDBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "FYYDBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "FYYDBOT_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts a raw string for every type but kInt, which backends
// read natively.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	case kList:
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown key type %d", typ)
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secret keys still empty after the environment from
// the secrets store, under service "fyydbot" and the key as account.
func applySecrets(cfg *Config, store secretStore) {
	if store == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := store.Get(appName, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
