package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
)

// Validate checks configuration values. Returns sentinel errors that
// can be checked with errors.Is. Called by Load; configuration
// problems fail fast, before any network or database work.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	validProviders := []string{ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q (expected one of %v)", ErrInvalidProvider, c.Provider, validProviders)
	}

	// Provider credentials are read directly by the genkit plugins;
	// check presence here so the failure is a config error, not a
	// mid-conversation transport error.
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxHistoryTurns < 1 || c.MaxHistoryTurns > 200 {
		return fmt.Errorf("%w: must be between 1 and 200, got %d", ErrInvalidHistory, c.MaxHistoryTurns)
	}

	// Gateway URL is optional (external tools disabled without it),
	// but when present it must be http(s).
	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: %q", ErrInvalidGatewayURL, c.Gateway.BaseURL)
		}
	}
	if c.Gateway.TimeoutMs < 1000 || c.Gateway.TimeoutMs > 120000 {
		return fmt.Errorf("%w: gateway timeout_ms must be between 1000 and 120000, got %d", ErrInvalidTimeout, c.Gateway.TimeoutMs)
	}

	if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("%w: must start with postgres:// or postgresql://", ErrInvalidDatabaseURL)
	}

	return nil
}
