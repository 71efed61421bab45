package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// Provider names accepted by NewClient.
const (
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderStub    = "stub"
)

// ProviderConfig selects and configures text generation providers.
type ProviderConfig struct {
	Provider string
	Fallback string

	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string
	OpenAIAPIKey   string
	OpenAIModel    string

	// AWS is only read for the bedrock provider.
	AWS aws.Config
}

// NewClient builds the configured provider, wrapped in a FallbackClient when
// a distinct fallback provider is set.
func NewClient(ctx context.Context, cfg ProviderConfig, logger *logging.Logger) (Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	primary, err := newProvider(ctx, cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}

	fallbackName := normalizeProvider(cfg.Fallback)
	if fallbackName == "" || fallbackName == normalizeProvider(cfg.Provider) {
		return primary, nil
	}
	fallback, err := newProvider(ctx, cfg, fallbackName)
	if err != nil {
		logger.Warn("llm fallback provider unavailable", "provider", fallbackName, "error", err)
		return primary, nil
	}
	return NewFallbackClient(primary, fallback, logger), nil
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newProvider(ctx context.Context, cfg ProviderConfig, name string) (Client, error) {
	switch normalizeProvider(name) {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("llm: GEMINI_API_KEY is required for gemini")
		}
		client, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderBedrock:
		if cfg.BedrockModelID == "" {
			return nil, fmt.Errorf("llm: BEDROCK_MODEL_ID is required for bedrock")
		}
		return NewBedrockClient(bedrockruntime.NewFromConfig(cfg.AWS), cfg.BedrockModelID), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("llm: OPENAI_API_KEY is required for openai")
		}
		client, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderStub, "":
		return &StubClient{Reply: Apology}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}
