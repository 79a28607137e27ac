package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL  string
	APIKey      string
	UserID      string
	DealRows    int
	StaffRows   int
	HTTPTimeout time.Duration
	Seed        int64
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:  "http://localhost:8080",
		APIKey:      "",
		UserID:      "demo-user",
		DealRows:    4821,
		StaffRows:   250,
		HTTPTimeout: 30 * time.Second,
		Seed:        time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	appliers := []func() error{
		func() error { return applyString(lookup, "TABLETALK_DEMO_API_URL", &cfg.APIBaseURL) },
		func() error { return applyString(lookup, "TABLETALK_DEMO_API_KEY", &cfg.APIKey) },
		func() error { return applyString(lookup, "TABLETALK_DEMO_USER_ID", &cfg.UserID) },
		func() error { return applyInt(lookup, "TABLETALK_DEMO_DEAL_ROWS", &cfg.DealRows) },
		func() error { return applyInt(lookup, "TABLETALK_DEMO_STAFF_ROWS", &cfg.StaffRows) },
		func() error { return applyDuration(lookup, "TABLETALK_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout) },
		func() error { return applyInt64(lookup, "TABLETALK_DEMO_SEED", &cfg.Seed) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("TABLETALK_DEMO_API_URL is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" && strings.TrimSpace(cfg.APIKey) == "" {
		return Config{}, fmt.Errorf("TABLETALK_DEMO_USER_ID or TABLETALK_DEMO_API_KEY is required")
	}
	if cfg.DealRows <= 0 {
		return Config{}, fmt.Errorf("TABLETALK_DEMO_DEAL_ROWS must be > 0")
	}
	if cfg.StaffRows <= 0 {
		return Config{}, fmt.Errorf("TABLETALK_DEMO_STAFF_ROWS must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLETALK_DEMO_HTTP_TIMEOUT must be > 0")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.UserID = strings.TrimSpace(cfg.UserID)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
