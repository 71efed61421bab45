package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientSelectsProvider(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, ProviderConfig{Provider: "stub"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StubClient{}, client)

	client, err = NewClient(ctx, ProviderConfig{Provider: " OpenAI ", OpenAIAPIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	client, err = NewClient(ctx, ProviderConfig{Provider: "bedrock", BedrockModelID: "anthropic.claude"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BedrockClient{}, client)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []ProviderConfig{
		{Provider: "gemini"},
		{Provider: "bedrock"},
		{Provider: "openai"},
		{Provider: "cohere"},
	} {
		_, err := NewClient(ctx, cfg, nil)
		assert.Error(t, err, cfg.Provider)
	}
}

func TestNewClientWrapsFallback(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, ProviderConfig{Provider: "openai", OpenAIAPIKey: "sk-test", Fallback: "stub"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FallbackClient{}, client)

	client, err = NewClient(ctx, ProviderConfig{Provider: "openai", OpenAIAPIKey: "sk-test", Fallback: "gemini"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client, "unusable fallback is skipped")

	client, err = NewClient(ctx, ProviderConfig{Provider: "stub", Fallback: "stub"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StubClient{}, client)
}
