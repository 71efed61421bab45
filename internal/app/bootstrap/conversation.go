package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/odonto-agent/internal/availability"
	"github.com/wolfman30/odonto-agent/internal/calendar"
	"github.com/wolfman30/odonto-agent/internal/clinic"
	appconfig "github.com/wolfman30/odonto-agent/internal/config"
	"github.com/wolfman30/odonto-agent/internal/conversation"
	"github.com/wolfman30/odonto-agent/internal/observability/metrics"
	"github.com/wolfman30/odonto-agent/internal/store"
	"github.com/wolfman30/odonto-agent/internal/timeutil"
	"github.com/wolfman30/odonto-agent/pkg/logging"
)

const catalogCacheTTL = 5 * time.Minute

// EngineDeps are the long-lived clients an engine is built from. Nil Redis
// and Pool select in-process fallbacks.
type EngineDeps struct {
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	AWS     aws.Config
	Metrics *metrics.ConversationMetrics
	Gateway calendar.Gateway
}

// BuildEngine wires the scheduling engine from config.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) (*conversation.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loc := timeutil.LoadLocation(cfg.ClinicTimezone)

	var (
		st      conversation.Store
		prompts conversation.PromptSource
		catalog clinic.Source
	)
	if deps.Pool != nil {
		pg := store.NewPostgres(deps.Pool)
		st, prompts, catalog = pg, pg, pg
	} else {
		logger.Warn("no database configured; conversation state is kept in memory")
		mem := conversation.NewMemoryStore()
		st, prompts, catalog = mem, mem, clinic.NewDefaultSource()
	}

	opts := []conversation.EngineOption{
		conversation.WithPromptSource(prompts),
		conversation.WithLocation(loc),
		conversation.WithProposalLimit(cfg.ProposalLimit),
		conversation.WithEngineLogger(logger),
	}
	if deps.Metrics != nil {
		opts = append(opts, conversation.WithRecorder(deps.Metrics))
	}
	if deps.Redis != nil {
		catalog = clinic.NewCachedSource(catalog, deps.Redis, catalogCacheTTL, logger)
		opts = append(opts,
			conversation.WithHistory(conversation.NewRedisHistory(deps.Redis)),
			conversation.WithLocker(conversation.NewRedisLocker(deps.Redis, cfg.ConversationLockTTL, cfg.ConversationLockWait)),
		)
	} else {
		opts = append(opts, conversation.WithLocker(conversation.NewMemoryLocker()))
	}

	gateway := deps.Gateway
	if gateway == nil {
		var err error
		if gateway, err = BuildGateway(ctx, cfg, loc, deps.Metrics, logger); err != nil {
			return nil, err
		}
	}

	windows, err := timeutil.NewWindows(cfg.WindowMorning, cfg.WindowAfternoon, cfg.WindowEvening)
	if err != nil {
		logger.Warn("invalid time window, keeping default range", "error", err)
	}
	calc := availability.NewCalculator(catalog, gateway,
		availability.WithStride(cfg.SlotMinutes),
		availability.WithLookahead(cfg.LookaheadDays),
		availability.WithDefaultLimit(cfg.ProposalLimit),
		availability.WithWindows(windows),
		availability.WithLocation(loc),
		availability.WithLogger(logger),
	)

	generator, err := BuildGenerator(ctx, cfg, deps.AWS, deps.Metrics, logger)
	if err != nil {
		logger.Warn("text generation disabled; greeting uses the fixed text", "error", err)
	} else {
		opts = append(opts, conversation.WithGenerator(generator))
	}
	if notifier := BuildNotifier(cfg, deps.AWS, logger); notifier != nil {
		opts = append(opts, conversation.WithNotifier(notifier))
	}

	return conversation.NewEngine(st, catalog, calc, gateway, opts...), nil
}

// BuildGateway selects the calendar backend and applies the timeout and
// metrics decorators.
func BuildGateway(ctx context.Context, cfg *appconfig.Config, loc *time.Location, rec *metrics.ConversationMetrics, logger *logging.Logger) (calendar.Gateway, error) {
	var gw calendar.Gateway
	switch cfg.CalendarProvider {
	case "memory":
		logger.Warn("using in-memory calendar; events are not persisted")
		gw = calendar.NewMemoryGateway(loc)
	case "", "google":
		svc, err := calendar.NewGoogleService(ctx, cfg.GoogleAuthMode, cfg.GoogleCredentialsJSON, cfg.GoogleTokenJSON)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
		}
		gw = calendar.NewGoogleGateway(svc, cfg.GoogleCalendarID, loc, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown calendar provider %q", cfg.CalendarProvider)
	}

	gw = calendar.WithTimeout(gw, cfg.GatewayTimeout)
	if rec != nil {
		gw = calendar.Instrument(gw, rec)
	}
	return gw, nil
}
