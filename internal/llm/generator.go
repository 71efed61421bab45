package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

// Apology is returned whenever generation fails.
const Apology = "Desculpe, não entendi. Pode repetir?"

const (
	defaultTemperature = 0.4
	defaultMaxTokens   = 200
	defaultTimeout     = 30 * time.Second
)

// Prompt is one generation call. Zero Temperature or MaxTokens use the
// generator defaults.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
}

// FallbackRecorder counts generations that ended in the apology.
type FallbackRecorder interface {
	ObserveGenerationFallback(reason string)
}

// Generator turns a Client into a call that always yields displayable text.
type Generator struct {
	client      Client
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	recorder    FallbackRecorder
	logger      *logging.Logger
	tracer      trace.Tracer
}

type GeneratorOption func(*Generator)

func WithTemperature(t float32) GeneratorOption {
	return func(g *Generator) {
		if t > 0 {
			g.temperature = t
		}
	}
}

func WithMaxTokens(n int32) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithFallbackRecorder(r FallbackRecorder) GeneratorOption {
	return func(g *Generator) { g.recorder = r }
}

func WithLogger(logger *logging.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator wraps client with defaults of temperature 0.4, 200 tokens and
// a 30 second timeout.
func NewGenerator(client Client, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:      client,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		timeout:     defaultTimeout,
		logger:      logging.Default(),
		tracer:      otel.Tracer("odonto.internal.llm"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the model's reply, or Apology on any failure.
func (g *Generator) Generate(ctx context.Context, p Prompt) string {
	ctx, span := g.tracer.Start(ctx, "llm.generate")
	defer span.End()

	if g.client == nil {
		g.fallback("no_client")
		return Apology
	}
	temperature, maxTokens := p.Temperature, p.MaxTokens
	if temperature <= 0 {
		temperature = g.temperature
	}
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := Request{
		Messages:    []Message{{Role: RoleUser, Content: p.User}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if strings.TrimSpace(p.System) != "" {
		req.System = []string{p.System}
	}

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		g.logger.Warn("text generation failed", "error", err, "reason", reason)
		g.fallback(reason)
		return Apology
	}
	if strings.TrimSpace(resp.Text) == "" {
		g.fallback("empty")
		return Apology
	}
	return resp.Text
}

func (g *Generator) fallback(reason string) {
	if g.recorder != nil {
		g.recorder.ObserveGenerationFallback(reason)
	}
}
