package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/llm"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// BuildGenerator wires the configured text generation provider behind a
// Generator that always yields displayable text.
func BuildGenerator(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, recorder llm.FallbackRecorder, logger *logging.Logger) (*llm.Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := llm.NewClient(ctx, llm.ProviderConfig{
		Provider:       cfg.AIProvider,
		Fallback:       cfg.AIFallbackProvider,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		GeminiModel:    cfg.GeminiModel,
		BedrockModelID: cfg.BedrockModelID,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		OpenAIModel:    cfg.OpenAIModel,
		AWS:            awsCfg,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: llm client: %w", err)
	}

	logger.Info("text generation configured", "provider", cfg.AIProvider, "fallback", cfg.AIFallbackProvider)
	return llm.NewGenerator(client,
		llm.WithTemperature(float32(cfg.AITemperature)),
		llm.WithMaxTokens(int32(cfg.AIMaxTokens)),
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithFallbackRecorder(recorder),
		llm.WithLogger(logger),
	), nil
}
