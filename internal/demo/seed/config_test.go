package seed

import (
	"testing"
	"time"
)

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080" || cfg.UserID != "demo-user" {
		t.Fatalf("cfg = %#v", cfg)
	}
	if cfg.DealRows != 4821 || cfg.StaffRows != 250 {
		t.Fatalf("rows = %d/%d", cfg.DealRows, cfg.StaffRows)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"TABLETALK_DEMO_API_URL":      " http://api:8080/ ",
		"TABLETALK_DEMO_API_KEY":      "k1",
		"TABLETALK_DEMO_USER_ID":      "",
		"TABLETALK_DEMO_DEAL_ROWS":    "10",
		"TABLETALK_DEMO_STAFF_ROWS":   "5",
		"TABLETALK_DEMO_HTTP_TIMEOUT": "3s",
		"TABLETALK_DEMO_SEED":         "42",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.APIBaseURL != "http://api:8080" || cfg.APIKey != "k1" || cfg.UserID != "" {
		t.Fatalf("cfg = %#v", cfg)
	}
	if cfg.DealRows != 10 || cfg.StaffRows != 5 || cfg.HTTPTimeout != 3*time.Second || cfg.Seed != 42 {
		t.Fatalf("cfg = %#v", cfg)
	}
}

func TestLoadConfigFromEnvRejectsInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"TABLETALK_DEMO_API_URL": " "},
		{"TABLETALK_DEMO_USER_ID": ""},
		{"TABLETALK_DEMO_DEAL_ROWS": "0"},
		{"TABLETALK_DEMO_STAFF_ROWS": "many"},
		{"TABLETALK_DEMO_HTTP_TIMEOUT": "soon"},
		{"TABLETALK_DEMO_SEED": "x"},
	}
	for _, values := range cases {
		if _, err := LoadConfigFromEnv(mapLookup(values)); err == nil {
			t.Fatalf("LoadConfigFromEnv(%v) expected error", values)
		}
	}
}
