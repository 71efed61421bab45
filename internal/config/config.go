package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string
	OutboundQueueURL     string

	// Clinic scheduling
	ClinicName      string
	ClinicTimezone  string
	SlotMinutes     int
	LookaheadDays   int
	ProposalLimit   int
	WindowMorning   string
	WindowAfternoon string
	WindowEvening   string

	ConversationLockTTL  time.Duration
	ConversationLockWait time.Duration

	// External calendar
	CalendarProvider      string
	GoogleCalendarID      string
	GoogleAuthMode        string
	GoogleCredentialsJSON string
	GoogleTokenJSON       string
	GatewayTimeout        time.Duration

	// Text generation
	AIProvider         string
	AIFallbackProvider string
	AITemperature      float64
	AIMaxTokens        int
	LLMTimeout         time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	BedrockModelID     string
	OpenAIAPIKey       string
	OpenAIModel        string

	// Inbound dedup
	DedupSize   int
	DedupWindow time.Duration

	// Email notifications
	EmailProvider     string
	SendGridAPIKey    string
	EmailFrom         string
	EmailFromName     string
	ClinicNotifyEmail string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:            getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		OutboundQueueURL:     getEnv("OUTBOUND_QUEUE_URL", ""),

		ClinicName:           getEnv("CLINIC_NAME", "Clínica Odontológica"),
		ClinicTimezone:       getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),
		SlotMinutes:          getEnvAsInt("DEFAULT_SLOT_MINUTES", 30),
		LookaheadDays:        getEnvAsInt("AVAIL_LOOKAHEAD_DAYS", 14),
		ProposalLimit:        getEnvAsInt("PROPOSAL_LIMIT", 3),
		WindowMorning:        getEnv("WINDOW_MANHA", "08:00-12:00"),
		WindowAfternoon:      getEnv("WINDOW_TARDE", "12:00-18:00"),
		WindowEvening:        getEnv("WINDOW_NOITE", "18:00-21:00"),
		ConversationLockTTL:  getEnvAsDuration("CONVERSATION_LOCK_TTL", 45*time.Second),
		ConversationLockWait: getEnvAsDuration("CONVERSATION_LOCK_WAIT", 10*time.Second),

		CalendarProvider:      strings.ToLower(strings.TrimSpace(getEnv("CALENDAR_PROVIDER", "google"))),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleAuthMode:        strings.ToLower(strings.TrimSpace(getEnv("GOOGLE_AUTH_MODE", "service_account"))),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", "/secrets/google-credentials.json"),
		GoogleTokenJSON:       getEnv("GOOGLE_TOKEN_JSON", "/secrets/token.json"),
		GatewayTimeout:        getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),

		AIProvider:         strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "gemini"))),
		AIFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("AI_FALLBACK_PROVIDER", ""))),
		AITemperature:      getEnvAsFloat("AI_TEMPERATURE", 0.4),
		AIMaxTokens:        getEnvAsInt("AI_MAX_TOKENS", 200),
		LLMTimeout:         getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		DedupSize:   getEnvAsInt("DEDUP_SIZE", 10000),
		DedupWindow: getEnvAsDuration("DEDUP_WINDOW", 10*time.Minute),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:         getEnv("EMAIL_FROM", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Agenda Odonto"),
		ClinicNotifyEmail: getEnv("CLINIC_NOTIFY_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
