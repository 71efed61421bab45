package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	conversationTTL = 24 * time.Hour
	maxHistoryTurns = 20
)

// Direction tells whether a turn came from the client or the assistant.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

// Turn is one message exchanged in a conversation.
type Turn struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// History keeps recent turns for prompt context.
type History interface {
	Append(ctx context.Context, conversationID string, turns ...Turn) error
	Recent(ctx context.Context, conversationID string, n int) ([]Turn, error)
}

// RedisHistory stores turns in a capped Redis list that expires a day after
// the last write.
type RedisHistory struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisHistory(client *redis.Client) *RedisHistory {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisHistory{
		redis:  client,
		tracer: otel.Tracer("odonto.internal.conversation.history"),
	}
}

func (s *RedisHistory) Append(ctx context.Context, conversationID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	values := make([]any, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := historyKey(conversationID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -maxHistoryTurns, -1)
	pipe.Expire(ctx, key, conversationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisHistory) Recent(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	if n <= 0 {
		n = maxHistoryTurns
	}
	raw, err := s.redis.LRange(ctx, historyKey(conversationID), int64(-n), -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func historyKey(id string) string {
	return fmt.Sprintf("conversation:%s:history", id)
}
