package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	DictionaryPath string
	LetterTreePath string

	RedisURL    string
	DatabaseURL string

	UserServiceURL string

	ReconnectGrace  time.Duration
	LobbyIdleLimit  time.Duration
	LobbySweepEvery time.Duration
	StartDelay      time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":8080",
		ReconnectGrace:  10 * time.Second,
		LobbyIdleLimit:  30 * time.Minute,
		LobbySweepEvery: time.Minute,
		StartDelay:      500 * time.Millisecond,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.DictionaryPath = strings.TrimSpace(os.Getenv("DICTIONARY_PATH"))
	cfg.LetterTreePath = strings.TrimSpace(os.Getenv("LETTER_TREE_PATH"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.UserServiceURL = strings.TrimSpace(os.Getenv("USER_SERVICE_URL"))

	if v := strings.TrimSpace(os.Getenv("RECONNECT_GRACE_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReconnectGrace = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOBBY_IDLE_LIMIT_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LobbyIdleLimit = time.Duration(n) * time.Minute
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOBBY_SWEEP_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LobbySweepEvery = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("START_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StartDelay = time.Duration(n) * time.Millisecond
		}
	}

	// The dictionary and letter tree are hard requirements: the core must never
	// run half-initialized.
	if cfg.DictionaryPath == "" {
		return nil, errors.New("DICTIONARY_PATH is required")
	}
	if cfg.LetterTreePath == "" {
		return nil, errors.New("LETTER_TREE_PATH is required")
	}

	return cfg, nil
}
