package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/duckmesh/tabletalk/internal/cli/tabletalkctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("TABLETALK_CLI_TIMEOUT")), 30*time.Second)
	options := tabletalkctl.Options{
		BaseURL:        envOr("TABLETALK_API_URL", "http://localhost:8080"),
		APIKey:         strings.TrimSpace(os.Getenv("TABLETALK_API_KEY")),
		UserID:         strings.TrimSpace(os.Getenv("TABLETALK_USER_ID")),
		ConversationID: strings.TrimSpace(os.Getenv("TABLETALK_CONVERSATION_ID")),
		Timeout:        timeout,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := tabletalkctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid TABLETALK_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
