package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/grader"
	"github.com/aussiebroadwan/ltirelay/internal/relay/service"
	"github.com/aussiebroadwan/ltirelay/pkg/ltix"
	"github.com/joho/godotenv"
)

// DefaultEnvFile holds secrets outside the web root.
const DefaultEnvFile = "/var/secure/aigrader.env"

// Session backends accepted in LTI_SESSION_BACKEND.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Session sweep interval in server mode (default: 10m)

	SessionBackend string        // file, memory, sqlite or redis (default: file)
	SessionDir     string        // Directory for the file backend (default: /var/secure/lti_sessions)
	SessionTTL     time.Duration // Session lifetime (default: 1h)
	SessionDB      string        // SQLite database file (default: ./ltirelay.db)
	RedisURL       string        // redis:// URL for the redis backend

	AllowedOrigins string // CSV of origins allowed to launch and grade, or "*"
	AllowedDomains string // CSV of domains outcome URLs may point at
	BaseURL        string // Base for outcome URLs given as a bare path
	DefaultPage    string // Activity page a launch lands on (default: /C1-writing-correction-LTI.html)

	ConsumerSecrets map[string]string // oauth_consumer_key -> shared secret
	SendGrade       bool              // Report grades to the LMS (default: true)
	OutcomeTimeout  time.Duration     // Bound on one outcome delivery (default: 15s)

	Grader             grader.Config
	EvaluatorTimeout   time.Duration // Bound on one AI call (default: 120s)
	GradeIdentifier    string        // Marker the evaluator prints before the grade (default: FINAL_GRADE)
	EmptySubmissionMax float64       // Max reported for an empty submission (default: 5)

	// LogOutput is not read from the environment. CGI mode points it at
	// stderr since stdout carries the response.
	LogOutput io.Writer
}

// LoadConfig reads the environment, after merging in LTI_ENV_FILE. Variables
// already set in the process environment win over the file.
func LoadConfig() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", service.DefaultHousekeepingInterval),

		SessionBackend: strings.ToLower(getEnvOrDefault("LTI_SESSION_BACKEND", BackendFile)),
		SessionDir:     getEnvOrDefault("LTI_SESSION_DIR", "/var/secure/lti_sessions"),
		SessionTTL:     getEnvDurationOrDefault("LTI_SESSION_TTL", domain.DefaultSessionTTL),
		SessionDB:      getEnvOrDefault("LTI_SESSION_DB", "ltirelay.db"),
		RedisURL:       os.Getenv("LTI_REDIS_URL"),

		AllowedOrigins: os.Getenv("LTI_ALLOWED_ORIGINS"),
		AllowedDomains: os.Getenv("LTI_ALLOWED_DOMAINS"),
		BaseURL:        os.Getenv("LTI_BASE_URL"),
		DefaultPage:    getEnvOrDefault("LTI_DEFAULT_PAGE", service.DefaultPage),

		SendGrade:      getEnvBoolOrDefault("LTI_SEND_GRADE", true),
		OutcomeTimeout: getEnvDurationOrDefault("LTI_OUTCOME_TIMEOUT", service.DefaultOutcomeTimeout),

		EvaluatorTimeout:   getEnvDurationOrDefault("AI_TIMEOUT", service.DefaultEvaluatorTimeout),
		GradeIdentifier:    getEnvOrDefault("GRADE_IDENTIFIER", ltix.DefaultGradeIdentifier),
		EmptySubmissionMax: getEnvFloatOrDefault("EMPTY_SUBMISSION_MAX", service.DefaultEmptySubmissionMax),
	}

	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", grader.ProviderGoogle))
	cfg.Grader = grader.Config{
		Provider:    provider,
		APIKey:      apiKey(provider),
		APIURL:      os.Getenv("AI_API_URL"),
		Model:       os.Getenv("AI_MODEL"),
		Temperature: float32(getEnvFloatOrDefault("AI_TEMPERATURE", grader.DefaultTemperature)),
	}

	instructions, err := systemInstructions(cfg.GradeIdentifier)
	if err != nil {
		return Config{}, err
	}
	cfg.Grader.SystemInstructions = instructions

	secrets, err := LoadConsumerSecrets(os.Getenv("LTI_CONSUMERS_FILE"), os.Getenv("LTI_CONSUMER_SECRETS"))
	if err != nil {
		return Config{}, err
	}
	cfg.ConsumerSecrets = secrets

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error

	switch c.SessionBackend {
	case BackendFile:
		if c.SessionDir == "" {
			errs = append(errs, errors.New("LTI_SESSION_DIR is required for the file backend"))
		}
	case BackendMemory:
	case BackendSQLite:
		if c.SessionDB == "" {
			errs = append(errs, errors.New("LTI_SESSION_DB is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("LTI_REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.SessionBackend))
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("LTI_SESSION_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// loadEnvFile merges LTI_ENV_FILE into the environment. The default file
// is optional; one named explicitly must exist.
func loadEnvFile() error {
	path, explicit := os.LookupEnv("LTI_ENV_FILE")
	if !explicit || path == "" {
		path = DefaultEnvFile
	}

	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// apiKey prefers AI_API_KEY and falls back to the provider-specific names
// older deployments used.
func apiKey(provider string) string {
	if key := os.Getenv("AI_API_KEY"); key != "" {
		return key
	}
	switch provider {
	case grader.ProviderOpenAI:
		return os.Getenv("AI_GRADER_API_KEY_OPENAI")
	default:
		return os.Getenv("AI_GRADER_API_KEY_GOOGLE")
	}
}

func systemInstructions(identifier string) (string, error) {
	if path := os.Getenv("AI_SYSTEM_INSTRUCTIONS_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read system instructions: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	if s := os.Getenv("AI_SYSTEM_INSTRUCTIONS"); s != "" {
		return s, nil
	}
	return fmt.Sprintf("You are an expert writing examiner. Give the student concise feedback on "+
		"their text, then finish with a single line of the form %s: <score>/<max>.", identifier), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds, matching the original session settings
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
