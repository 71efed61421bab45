package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockClientComplete(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " Olá! "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(13)},
	}}
	client := NewBedrockClient(api, "anthropic.claude")

	resp, err := client.Complete(context.Background(), Request{
		System:      []string{"seja cordial"},
		Messages:    []Message{{Role: RoleUser, Content: "oi"}, {Role: RoleSystem, Content: "extra"}},
		MaxTokens:   200,
		Temperature: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", resp.Text)
	assert.Equal(t, int32(13), resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic.claude", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	assert.Len(t, api.input.Messages, 1)
	assert.Equal(t, int32(200), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockClientRejectsUnknownRole(t *testing.T) {
	client := NewBedrockClient(&fakeConverse{}, "m")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.Error(t, err)
}

type fakeChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIClientComplete(t *testing.T) {
	api := &fakeChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "Bom dia!"}, FinishReason: openai.FinishReasonStop}},
		Usage:   openai.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
	}}
	client := newOpenAIClient(api, "")

	resp, err := client.Complete(context.Background(), Request{
		System:      []string{"sys"},
		Messages:    []Message{{Role: RoleAssistant, Content: "antes"}, {Role: RoleUser, Content: "oi"}},
		MaxTokens:   50,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bom dia!", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(7), resp.Usage.TotalTokens)
	assert.Equal(t, openai.GPT4oMini, api.req.Model)
	require.Len(t, api.req.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, api.req.Messages[1].Role)
	assert.Equal(t, 50, api.req.MaxTokens)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	client := newOpenAIClient(&fakeChat{}, "gpt-4o-mini")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	assert.Error(t, err)
}

func TestFallbackClient(t *testing.T) {
	primary := &StubClient{Err: errors.New("primary down")}
	secondary := &StubClient{Reply: "do reserva"}

	resp, err := NewFallbackClient(primary, secondary, nil).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "do reserva", resp.Text)

	_, err = NewFallbackClient(primary, nil, nil).Complete(context.Background(), Request{})
	assert.EqualError(t, err, "primary down")
}

type countingRecorder struct{ reasons []string }

func (c *countingRecorder) ObserveGenerationFallback(reason string) {
	c.reasons = append(c.reasons, reason)
}

type slowClient struct{}

func (slowClient) Complete(ctx context.Context, _ Request) (Response, error) {
	<-ctx.Done()
	return Response{}, ctx.Err()
}

func TestGeneratorAppliesDefaults(t *testing.T) {
	stub := &StubClient{Reply: "Olá, tudo bem?"}
	gen := NewGenerator(stub)

	text := gen.Generate(context.Background(), Prompt{System: "sys", User: "oi"})
	assert.Equal(t, "Olá, tudo bem?", text)

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	assert.InDelta(t, 0.4, reqs[0].Temperature, 1e-6)
	assert.Equal(t, int32(200), reqs[0].MaxTokens)
	assert.Equal(t, []string{"sys"}, reqs[0].System)
}

func TestGeneratorReturnsApologyOnFailure(t *testing.T) {
	rec := &countingRecorder{}

	gen := NewGenerator(&StubClient{Err: errors.New("boom")}, WithFallbackRecorder(rec))
	assert.Equal(t, Apology, gen.Generate(context.Background(), Prompt{User: "oi"}))

	gen = NewGenerator(slowClient{}, WithTimeout(20*time.Millisecond), WithFallbackRecorder(rec))
	assert.Equal(t, Apology, gen.Generate(context.Background(), Prompt{User: "oi"}))

	gen = NewGenerator(&StubClient{Reply: "  "}, WithFallbackRecorder(rec))
	assert.Equal(t, Apology, gen.Generate(context.Background(), Prompt{User: "oi"}))

	assert.Equal(t, []string{"error", "timeout", "empty"}, rec.reasons)
}
