package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns all config key/value pairs from the current config.
// Secret values are masked.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		value := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			value = mask(value)
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  value,
			Secret: s.secret,
		})
	}
	return result
}

func mask(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "********"
}

// SetKey validates value and writes a non-secret key to the config file.
func SetKey(key, value string) error {
	return setKey(newFileBackend(configFilePath()), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return fmt.Errorf("%q is a secret; use --secret or environment variable %s", key, s.env)
	}

	v, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	switch s.typ {
	case kInt:
		return b.SetInt(key, v.(int))
	case kBool:
		return b.SetString(key, strconv.FormatBool(v.(bool)))
	case kDuration:
		return b.SetString(key, v.(time.Duration).String())
	default:
		return b.SetString(key, value)
	}
}

// SetSecret stores a secret key in the secrets file.
func SetSecret(key, value string) error {
	return setSecret(secretsFile{path: secretsFilePath()}, key, value)
}

type secretWriter interface {
	Set(service, account, value string) error
}

func setSecret(w secretWriter, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if !s.secret {
		return fmt.Errorf("%q is not a secret; set it without --secret", key)
	}
	return w.Set(appName, key, value)
}

// ValidKeys returns the list of config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
