// Package config provides configuration loading for the RDS cluster scheduler.
package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Port     string
	BasePath string

	// AWS configuration
	AWSRegion  string
	AWSProfile string

	// RDS endpoint override (for demo/testing with mock server)
	RDSEndpoint string

	// Scheduling
	ScheduleTagKey       string
	Regions              []string // empty means AWSRegion only
	MaxConcurrency       int
	MaxAttempts          int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	ActionTimeout        time.Duration
	RunTimeout           time.Duration
	APIRateLimit         float64 // RDS calls per second per region, 0 = unlimited

	// Slack configuration
	SlackEnabled bool
	SlackToken   string
	SlackChannel string

	// Admin configuration
	AdminToken string

	// Debug settings
	DebugEnabled bool

	// Metrics
	MetricsEnabled bool

	// TLS configuration for server
	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	// Storage settings
	DataDir string // directory for the run archive, empty disables it

	// Demo mode settings
	DemoMode     bool
	MockEndpoint string // URL of mock RDS server for demo mode
}

// NewConfig creates a new Config from environment variables.
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("APP_PORT", "3000"),
		BasePath:             getEnv("APP_BASE_PATH", ""),
		AWSRegion:            getEnv("AWS_REGION", constants.DefaultAWSRegion),
		AWSProfile:           getEnv("AWS_PROFILE", ""),
		RDSEndpoint:          getEnv("RDS_ENDPOINT", ""),
		ScheduleTagKey:       getEnv("APP_SCHEDULE_TAG_KEY", constants.DefaultScheduleTagKey),
		Regions:              getEnvList("APP_REGIONS"),
		MaxConcurrency:       getEnvInt("APP_MAX_CONCURRENCY", constants.DefaultMaxConcurrency),
		MaxAttempts:          getEnvInt("APP_MAX_ATTEMPTS", constants.DefaultMaxAttempts),
		RetryInitialInterval: getEnvMillis("APP_RETRY_INITIAL_INTERVAL_MS", constants.DefaultRetryInitialInterval),
		RetryMaxInterval:     getEnvMillis("APP_RETRY_MAX_INTERVAL_MS", constants.DefaultRetryMaxInterval),
		ActionTimeout:        getEnvSeconds("APP_ACTION_TIMEOUT", constants.DefaultActionTimeout),
		RunTimeout:           getEnvSeconds("APP_RUN_TIMEOUT", constants.DefaultRunTimeout),
		APIRateLimit:         getEnvFloat("APP_API_RATE_LIMIT", 0),
		SlackEnabled:         getEnvBool("APP_SLACK_ENABLED", false),
		SlackToken:           getEnv("APP_SLACK_TOKEN", ""),
		SlackChannel:         getEnv("APP_SLACK_CHANNEL", ""),
		AdminToken:           getEnv("APP_ADMIN_TOKEN", ""),
		DebugEnabled:         getEnvBool("APP_DEBUG_ENABLED", false),
		MetricsEnabled:       getEnvBool("APP_METRICS_ENABLED", true),
		TLSEnabled:           getEnvBool("APP_TLS_ENABLED", false),
		TLSCertPath:          getEnv("APP_TLS_CERT_PATH", ""),
		TLSKeyPath:           getEnv("APP_TLS_KEY_PATH", ""),
		DataDir:              getEnv("APP_DATA_DIR", ""),
		DemoMode:             getEnvBool("APP_DEMO_MODE", false),
		MockEndpoint:         getEnv("APP_MOCK_ENDPOINT", ""),
	}

	if cfg.SlackToken != "" {
		cfg.SlackEnabled = true
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return cfg, nil
}

// RunRegions returns the regions a run should cover when the request does
// not name any.
func (c *Config) RunRegions() []string {
	if len(c.Regions) > 0 {
		return c.Regions
	}
	return []string{c.AWSRegion}
}

// LoadAWSConfig loads the AWS SDK configuration.
func (c *Config) LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.AWSRegion),
	}

	if c.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.AWSProfile))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// Redacted returns a copy of the config with sensitive values redacted.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"port":                   c.Port,
		"base_path":              c.BasePath,
		"aws_region":             c.AWSRegion,
		"aws_profile":            c.AWSProfile,
		"rds_endpoint":           c.RDSEndpoint,
		"schedule_tag_key":       c.ScheduleTagKey,
		"regions":                c.Regions,
		"max_concurrency":        c.MaxConcurrency,
		"max_attempts":           c.MaxAttempts,
		"retry_initial_interval": c.RetryInitialInterval.String(),
		"retry_max_interval":     c.RetryMaxInterval.String(),
		"action_timeout":         c.ActionTimeout.String(),
		"run_timeout":            c.RunTimeout.String(),
		"api_rate_limit":         c.APIRateLimit,
		"slack_enabled":          c.SlackEnabled,
		"slack_token":            redact(c.SlackToken),
		"slack_channel":          c.SlackChannel,
		"admin_token":            redact(c.AdminToken),
		"debug_enabled":          c.DebugEnabled,
		"metrics_enabled":        c.MetricsEnabled,
		"tls_enabled":            c.TLSEnabled,
		"data_dir":               c.DataDir,
		"demo_mode":              c.DemoMode,
		"mock_endpoint":          c.MockEndpoint,
	}
}

// NewLogger creates a new structured logger.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	if getEnvBool("APP_DEBUG_ENABLED", false) {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i >= 0 {
			return time.Duration(i) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
