package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/odonto-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

func TestSetupDispatcherInline(t *testing.T) {
	cfg := &appconfig.Config{
		UseMemoryQueue:       true,
		ClinicTimezone:       "America/Sao_Paulo",
		ProposalLimit:        3,
		CalendarProvider:     "memory",
		AIProvider:           "stub",
		ConversationLockWait: time.Second,
	}

	d, err := setupDispatcher(context.Background(), cfg, bootstrap.EngineDeps{}, logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, &conversation.InlineDispatcher{}, d)
}

func TestSetupDispatcherSQS(t *testing.T) {
	logger := logging.New("error")

	_, err := setupDispatcher(context.Background(), &appconfig.Config{}, bootstrap.EngineDeps{}, logger)
	assert.Error(t, err, "queue url required")

	cfg := &appconfig.Config{ConversationQueueURL: "http://localhost:4566/000000000000/conversations.fifo"}
	d, err := setupDispatcher(context.Background(), cfg, bootstrap.EngineDeps{AWS: aws.Config{Region: "sa-east-1"}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &conversation.Publisher{}, d)
}

func TestHealthChecks(t *testing.T) {
	assert.Empty(t, healthChecks(nil, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checks := healthChecks(client, nil)
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
}
