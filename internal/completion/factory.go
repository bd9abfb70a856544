package completion

import (
	"fmt"

	"github.com/Newrona-pi/textgame-chatapp/internal/config"
)

// NewClient selects the backend named by COMPLETION_MODE.
func NewClient(cfg config.Config) (Client, error) {
	switch normalizeMode(cfg.CompletionMode) {
	case config.CompletionModeOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.OpenAITimeout,
		}), nil
	case config.CompletionModeMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.CompletionMode)
	}
}
