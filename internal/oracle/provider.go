package oracle

import (
	"context"
	"fmt"

	"github.com/duckmesh/tabletalk/internal/config"
)

// FromConfig builds the completion oracle named by cfg.Provider.
func FromConfig(ctx context.Context, cfg config.AIConfig) (Oracle, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("completion oracle is disabled")
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}
