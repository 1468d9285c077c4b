package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	HashAlgorithmPBKDF2   = "pbkdf2_sha256"
	HashAlgorithmArgon2id = "argon2id"
)

// SecurityConfig is the login and credential policy. It is reloaded from
// security.yml without a restart.
type SecurityConfig struct {
	MaxFailedAttempts int    `mapstructure:"maxFailedAttempts"`
	LockoutSeconds    int    `mapstructure:"lockoutSeconds"`
	MinPinLength      int    `mapstructure:"minPinLength"`
	HashIterations    int    `mapstructure:"hashIterations"`
	HashAlgorithm     string `mapstructure:"hashAlgorithm"`
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFailedAttempts: 5,
		LockoutSeconds:    60,
		MinPinLength:      8,
		HashIterations:    200_000,
		HashAlgorithm:     HashAlgorithmPBKDF2,
	}
}

type SecurityConfigHolder struct {
	current atomic.Value // holds SecurityConfig
}

func NewSecurityConfigHolder(cfg Config) (*SecurityConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("security")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(cfg.SecurityConfigDir); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/stockbook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOCKBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSecurityConfig()
	v.SetDefault("security.maxFailedAttempts", defaults.MaxFailedAttempts)
	v.SetDefault("security.lockoutSeconds", defaults.LockoutSeconds)
	v.SetDefault("security.minPinLength", defaults.MinPinLength)
	v.SetDefault("security.hashIterations", defaults.HashIterations)
	v.SetDefault("security.hashAlgorithm", defaults.HashAlgorithm)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	var sc SecurityConfig
	if err := v.UnmarshalKey("security", &sc); err != nil {
		return nil, err
	}
	if err := validateSecurityConfig(sc); err != nil {
		return nil, err
	}

	holder := NewStaticSecurityConfigHolder(sc)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SecurityConfig
		if err := v.UnmarshalKey("security", &updated); err != nil {
			log.Printf("[security-config] reload failed: %v", err)
			return
		}
		if err := validateSecurityConfig(updated); err != nil {
			log.Printf("[security-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[security-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticSecurityConfigHolder returns a holder that never reloads.
func NewStaticSecurityConfigHolder(sc SecurityConfig) *SecurityConfigHolder {
	holder := &SecurityConfigHolder{}
	holder.current.Store(sc)
	return holder
}

func (h *SecurityConfigHolder) Get() SecurityConfig {
	return h.current.Load().(SecurityConfig)
}

func validateSecurityConfig(cfg SecurityConfig) error {
	if cfg.MaxFailedAttempts < 1 {
		return errors.New("security.maxFailedAttempts must be at least 1")
	}
	if cfg.LockoutSeconds < 1 {
		return errors.New("security.lockoutSeconds must be at least 1")
	}
	if cfg.MinPinLength < 4 {
		return errors.New("security.minPinLength must be at least 4")
	}
	switch cfg.HashAlgorithm {
	case HashAlgorithmPBKDF2, HashAlgorithmArgon2id:
	default:
		return errors.New("security.hashAlgorithm must be pbkdf2_sha256 or argon2id")
	}
	return nil
}
