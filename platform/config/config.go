// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis and asynq settings for background jobs.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReconcileInterval() time.Duration
	GetReconcileStaleAfter() time.Duration
	GetRerouteDelay() time.Duration
	GetRerouteMaxAttempts() int
	GetDedupeWindow() time.Duration
}

// ReferenceDataConfig points at the static, versioned reference files.
// Empty paths fall back to the embedded defaults.
type ReferenceDataConfig interface {
	GetTaxonomyPath() string
	GetFieldMappingPath() string
	GetGeoDirectoryPath() string
}

// RoutingConfig provides vendor selection defaults.
type RoutingConfig interface {
	GetDefaultPerformancePercentage() int
	GetAssignmentMaxAttempts() int
}

// CRMConfig provides settings for the external CRM.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMLocationID() string
	GetCRMPipelineID() string
	GetCRMPipelineStageID() string
	GetCRMTimeout() time.Duration
	GetCRMRateLimit() float64
	GetCRMMaxCorrectedAttempts() int
	GetCRMConfidenceThreshold() float64
	IsCRMEnabled() bool
}

// AdvisorConfig provides settings for the model-backed error-correction advisor.
type AdvisorConfig interface {
	GetAdvisorProvider() string
	GetAdvisorAPIKey() string
	GetAdvisorBaseURL() string
	GetAdvisorModel() string
	GetAdvisorTimeout() time.Duration
	IsModelAdvisorEnabled() bool
}

// MinIOConfig provides settings for the raw payload archive.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketRawPayloads() string
	IsMinIOEnabled() bool
}

// EmailConfig provides SMTP settings for operator alerts.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetOperatorEmail() string
	IsEmailEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                          string
	HTTPAddr                     string
	DatabaseURL                  string
	JWTAccessSecret              string
	CORSAllowAll                 bool
	CORSOrigins                  []string
	CORSAllowCreds               bool
	RedisURL                     string
	RedisTLSInsecure             bool
	AsynqQueueName               string
	AsynqConcurrency             int
	ReconcileInterval            time.Duration
	ReconcileStaleAfter          time.Duration
	RerouteDelay                 time.Duration
	RerouteMaxAttempts           int
	DedupeWindow                 time.Duration
	TaxonomyPath                 string
	FieldMappingPath             string
	GeoDirectoryPath             string
	DefaultPerformancePercentage int
	AssignmentMaxAttempts        int
	CRMBaseURL                   string
	CRMAPIKey                    string
	CRMLocationID                string
	CRMPipelineID                string
	CRMPipelineStageID           string
	CRMTimeout                   time.Duration
	CRMRateLimit                 float64
	CRMMaxCorrectedAttempts      int
	CRMConfidenceThreshold       float64
	AdvisorProvider              string
	AdvisorAPIKey                string
	AdvisorBaseURL               string
	AdvisorModel                 string
	AdvisorTimeout               time.Duration
	MinIOEndpoint                string
	MinIOAccessKey               string
	MinIOSecretKey               string
	MinIOUseSSL                  bool
	MinioBucketRawPayloads       string
	SMTPHost                     string
	SMTPPort                     int
	SMTPUsername                 string
	SMTPPassword                 string
	EmailFromName                string
	EmailFromAddress             string
	OperatorEmail                string
	SnowflakeNodeID              int64
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                   { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool             { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string             { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int              { return c.AsynqConcurrency }
func (c *Config) GetReconcileInterval() time.Duration   { return c.ReconcileInterval }
func (c *Config) GetReconcileStaleAfter() time.Duration { return c.ReconcileStaleAfter }
func (c *Config) GetRerouteDelay() time.Duration        { return c.RerouteDelay }
func (c *Config) GetRerouteMaxAttempts() int            { return c.RerouteMaxAttempts }
func (c *Config) GetDedupeWindow() time.Duration        { return c.DedupeWindow }

// ReferenceDataConfig implementation
func (c *Config) GetTaxonomyPath() string     { return c.TaxonomyPath }
func (c *Config) GetFieldMappingPath() string { return c.FieldMappingPath }
func (c *Config) GetGeoDirectoryPath() string { return c.GeoDirectoryPath }

// RoutingConfig implementation
func (c *Config) GetDefaultPerformancePercentage() int { return c.DefaultPerformancePercentage }
func (c *Config) GetAssignmentMaxAttempts() int        { return c.AssignmentMaxAttempts }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string                { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string                 { return c.CRMAPIKey }
func (c *Config) GetCRMLocationID() string             { return c.CRMLocationID }
func (c *Config) GetCRMPipelineID() string             { return c.CRMPipelineID }
func (c *Config) GetCRMPipelineStageID() string        { return c.CRMPipelineStageID }
func (c *Config) GetCRMTimeout() time.Duration         { return c.CRMTimeout }
func (c *Config) GetCRMRateLimit() float64             { return c.CRMRateLimit }
func (c *Config) GetCRMMaxCorrectedAttempts() int      { return c.CRMMaxCorrectedAttempts }
func (c *Config) GetCRMConfidenceThreshold() float64   { return c.CRMConfidenceThreshold }
func (c *Config) IsCRMEnabled() bool                   { return c.CRMBaseURL != "" }

// AdvisorConfig implementation
func (c *Config) GetAdvisorProvider() string       { return c.AdvisorProvider }
func (c *Config) GetAdvisorAPIKey() string         { return c.AdvisorAPIKey }
func (c *Config) GetAdvisorBaseURL() string        { return c.AdvisorBaseURL }
func (c *Config) GetAdvisorModel() string          { return c.AdvisorModel }
func (c *Config) GetAdvisorTimeout() time.Duration { return c.AdvisorTimeout }
func (c *Config) IsModelAdvisorEnabled() bool      { return c.AdvisorAPIKey != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketRawPayloads() string { return c.MinioBucketRawPayloads }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetOperatorEmail() string    { return c.OperatorEmail }
func (c *Config) IsEmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != "" && c.OperatorEmail != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                          getEnv("APP_ENV", "development"),
		HTTPAddr:                     getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                  getEnv("DATABASE_URL", ""),
		JWTAccessSecret:              getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                 corsAllowAll,
		CORSOrigins:                  corsOrigins,
		CORSAllowCreds:               strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		RedisURL:                     getEnv("REDIS_URL", ""),
		RedisTLSInsecure:             strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:               getEnv("ASYNQ_QUEUE", "leads"),
		AsynqConcurrency:             mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		ReconcileInterval:            mustDuration(getEnv("RECONCILE_INTERVAL", "5m")),
		ReconcileStaleAfter:          mustDuration(getEnv("RECONCILE_STALE_AFTER", "10m")),
		RerouteDelay:                 mustDuration(getEnv("REROUTE_DELAY", "30m")),
		RerouteMaxAttempts:           mustInt(getEnv("REROUTE_MAX_ATTEMPTS", "6")),
		DedupeWindow:                 mustDuration(getEnv("DEDUPE_WINDOW", "60s")),
		TaxonomyPath:                 getEnv("TAXONOMY_PATH", ""),
		FieldMappingPath:             getEnv("FIELD_MAPPING_PATH", ""),
		GeoDirectoryPath:             getEnv("GEO_DIRECTORY_PATH", ""),
		DefaultPerformancePercentage: mustInt(getEnv("DEFAULT_PERFORMANCE_PERCENTAGE", "70")),
		AssignmentMaxAttempts:        mustInt(getEnv("ASSIGNMENT_MAX_ATTEMPTS", "5")),
		CRMBaseURL:                   strings.TrimRight(getEnv("CRM_BASE_URL", ""), "/"),
		CRMAPIKey:                    getEnv("CRM_API_KEY", ""),
		CRMLocationID:                getEnv("CRM_LOCATION_ID", ""),
		CRMPipelineID:                getEnv("CRM_PIPELINE_ID", ""),
		CRMPipelineStageID:           getEnv("CRM_PIPELINE_STAGE_ID", ""),
		CRMTimeout:                   mustDuration(getEnv("CRM_TIMEOUT", "10s")),
		CRMRateLimit:                 mustFloat(getEnv("CRM_RATE_LIMIT", "5")),
		CRMMaxCorrectedAttempts:      mustInt(getEnv("CRM_MAX_CORRECTED_ATTEMPTS", "2")),
		CRMConfidenceThreshold:       mustFloat(getEnv("CRM_CONFIDENCE_THRESHOLD", "0.7")),
		AdvisorProvider:              strings.ToLower(getEnv("ADVISOR_PROVIDER", "moonshot")),
		AdvisorAPIKey:                getEnv("ADVISOR_API_KEY", ""),
		AdvisorBaseURL:               getEnv("ADVISOR_BASE_URL", ""),
		AdvisorModel:                 getEnv("ADVISOR_MODEL", ""),
		AdvisorTimeout:               mustDuration(getEnv("ADVISOR_TIMEOUT", "15s")),
		MinIOEndpoint:                getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:               getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:               getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                  strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketRawPayloads:       getEnv("MINIO_BUCKET_RAW_PAYLOADS", "lead-raw-payloads"),
		SMTPHost:                     getEnv("SMTP_HOST", ""),
		SMTPPort:                     mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                 getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                 getEnv("SMTP_PASSWORD", ""),
		EmailFromName:                getEnv("EMAIL_FROM_NAME", "Lead Router"),
		EmailFromAddress:             getEnv("EMAIL_FROM_ADDRESS", ""),
		OperatorEmail:                getEnv("OPERATOR_EMAIL", ""),
		SnowflakeNodeID:              int64(mustInt(getEnv("SNOWFLAKE_NODE_ID", "1"))),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.DefaultPerformancePercentage < 0 || c.DefaultPerformancePercentage > 100 {
		return fmt.Errorf("DEFAULT_PERFORMANCE_PERCENTAGE must be between 0 and 100")
	}
	if c.CRMConfidenceThreshold < 0 || c.CRMConfidenceThreshold > 1 {
		return fmt.Errorf("CRM_CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	if c.CRMMaxCorrectedAttempts < 0 {
		return fmt.Errorf("CRM_MAX_CORRECTED_ATTEMPTS cannot be negative")
	}
	if c.IsCRMEnabled() && c.CRMAPIKey == "" {
		return fmt.Errorf("CRM_API_KEY is required when CRM_BASE_URL is set")
	}
	if c.AdvisorProvider != "moonshot" && c.AdvisorProvider != "gemini" {
		return fmt.Errorf("ADVISOR_PROVIDER must be moonshot or gemini")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
