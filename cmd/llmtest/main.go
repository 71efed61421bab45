package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/odonto-agent/cmd/mainconfig"
	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/internal/llm"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// llmtest sends the greeting prompt through the configured provider and
// prints the raw reply. Usage: llmtest [message]
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout+5*time.Second)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aws config: %v\n", err)
		os.Exit(1)
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
		fmt.Fprintf(os.Stderr, "llm client: %v\n", err)
		os.Exit(1)
	}

	message := "Olá, boa tarde!"
	if len(os.Args) > 1 {
		message = strings.Join(os.Args[1:], " ")
	}
	prompt := conversation.DefaultStagePrompt(conversation.StageGreeting)
	user := conversation.RenderTemplate(prompt.UserTemplate, map[string]string{
		"message": message,
		"context": "Cliente novo",
	})

	start := time.Now()
	resp, err := client.Complete(ctx, llm.Request{
		System:      []string{prompt.SystemPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: user}},
		MaxTokens:   int32(cfg.AIMaxTokens),
		Temperature: float32(cfg.AITemperature),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed after %s: %v\n", cfg.AIProvider, time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}

	fmt.Printf("provider: %s (%s)\n", cfg.AIProvider, time.Since(start).Round(time.Millisecond))
	fmt.Printf("tokens:   in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	fmt.Printf("reply:    %s\n", resp.Text)
}
