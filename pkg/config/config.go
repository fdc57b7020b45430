package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/finance/pkg/clients"
	"github.com/platinummonkey/finance/pkg/lease"
	"github.com/platinummonkey/finance/pkg/observability"
	"github.com/platinummonkey/finance/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig

	// Outbound accounting and orchestration clients
	Clients clients.Config

	// Plans, reload and background jobs
	Finance FinanceConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// FinanceConfig holds the engine settings
type FinanceConfig struct {
	// Plan created at boot when the store holds no plan
	DefaultPlanKind        string
	DefaultPlanName        string
	DefaultPlanOptionsFile string
	DefaultPlanOptions     map[string]string

	// File or directory whose changes trigger a reload. Empty disables it.
	WatchPath string

	// Cron schedule of the stats job
	StatsSchedule string

	// Redis sweep lease, shared by replicas
	LeaseEnabled bool
	Lease        lease.Config
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	finance, err := loadFinanceConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Clients:       loadClientsConfig(),
		Finance:       finance,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FS_HOST", "0.0.0.0"),
		Port:            getEnv("FS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FS_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("FS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FS_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("FS_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// Filesystem config
	if fsRoot := getEnv("FS_FILESYSTEM_ROOT", ""); fsRoot != "" {
		cfg.FilesystemRoot = fsRoot
	}

	// PostgreSQL config
	if pgURL := getEnv("FS_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("FS_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("FS_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("FS_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// SQLite config
	if sqlitePath := getEnv("FS_SQLITE_PATH", ""); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	// S3 invoice archive config
	if s3Endpoint := getEnv("FS_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("FS_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("FS_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("FS_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("FS_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("FS_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}
	if s3Prefix := getEnv("FS_S3_PREFIX", ""); s3Prefix != "" {
		cfg.S3Prefix = s3Prefix
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("FS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FS_OTEL_SERVICE_NAME", "finance-service"),
		OTelServiceVersion: getEnv("FS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FS_OTEL_INSECURE", true),
	}
}

// loadClientsConfig loads the outbound client settings from environment
func loadClientsConfig() clients.Config {
	cfg := clients.DefaultConfig()

	cfg.AccountingURL = getEnv("FS_ACCOUNTING_URL", "")
	cfg.OrchestratorURL = getEnv("FS_RAS_URL", "")
	cfg.LocalProvider = getEnv("FS_LOCAL_PROVIDER", cfg.LocalProvider)

	cfg.TokenURL = getEnv("FS_OAUTH_TOKEN_URL", "")
	cfg.ClientID = getEnv("FS_OAUTH_CLIENT_ID", "")
	cfg.ClientSecret = getEnv("FS_OAUTH_CLIENT_SECRET", "")
	if scopes := getEnv("FS_OAUTH_SCOPES", ""); scopes != "" {
		cfg.Scopes = strings.Split(scopes, ",")
	}

	cfg.Timeout = getEnvDuration("FS_CLIENT_TIMEOUT", cfg.Timeout)
	cfg.Retry.MaxAttempts = getEnvInt("FS_CLIENT_RETRY_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.InitialDelay = getEnvDuration("FS_CLIENT_RETRY_DELAY", cfg.Retry.InitialDelay)
	cfg.Retry.MaxDelay = getEnvDuration("FS_CLIENT_RETRY_MAX_DELAY", cfg.Retry.MaxDelay)

	cfg.HibernateCacheSize = getEnvInt("FS_HIBERNATE_CACHE_SIZE", cfg.HibernateCacheSize)
	cfg.HibernateCacheTTL = getEnvDuration("FS_HIBERNATE_CACHE_TTL", cfg.HibernateCacheTTL)

	return cfg
}

// loadFinanceConfig loads the engine settings and the default plan options
func loadFinanceConfig() (FinanceConfig, error) {
	hostname, _ := os.Hostname()

	cfg := FinanceConfig{
		DefaultPlanKind:        getEnv("FS_DEFAULT_PLAN_KIND", "postpaid"),
		DefaultPlanName:        getEnv("FS_DEFAULT_PLAN_NAME", "default"),
		DefaultPlanOptionsFile: getEnv("FS_DEFAULT_PLAN_OPTIONS_FILE", ""),
		WatchPath:              getEnv("FS_WATCH_PATH", ""),
		StatsSchedule:          getEnv("FS_STATS_SCHEDULE", "@every 1m"),
		LeaseEnabled:           getEnvBool("FS_LEASE_ENABLED", false),
		Lease: lease.Config{
			RedisURL:      getEnv("FS_REDIS_URL", "redis://localhost:6379"),
			RedisPassword: getEnv("FS_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("FS_REDIS_DB", 0),
			Owner:         getEnv("FS_LEASE_OWNER", hostname),
			TTL:           getEnvDuration("FS_LEASE_TTL", 5*time.Minute),
			Prefix:        getEnv("FS_LEASE_PREFIX", "finance:lease:"),
		},
	}

	if cfg.DefaultPlanOptionsFile != "" {
		options, err := LoadPlanOptions(cfg.DefaultPlanOptionsFile)
		if err != nil {
			return cfg, err
		}
		cfg.DefaultPlanOptions = options
	}

	return cfg, nil
}

// LoadPlanOptions reads a YAML mapping of plan option names to values
func LoadPlanOptions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan options file: %w", err)
	}

	options := make(map[string]string)
	if err := yaml.Unmarshal(data, &options); err != nil {
		return nil, fmt.Errorf("failed to parse plan options file %s: %w", path, err)
	}
	return options, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem, postgres, sqlite, or memory)", c.Storage.Type)
	}
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("S3 region is required when an invoice archive bucket is set")
	}

	// Validate client config
	if c.Clients.AccountingURL == "" {
		return fmt.Errorf("accounting URL is required")
	}
	if c.Clients.OrchestratorURL == "" {
		return fmt.Errorf("RAS URL is required")
	}
	if c.Clients.TokenURL != "" && c.Clients.ClientID == "" {
		return fmt.Errorf("OAuth client id is required when a token URL is set")
	}

	// Validate finance config
	if c.Finance.DefaultPlanName == "" {
		return fmt.Errorf("default plan name is required")
	}
	if c.Finance.DefaultPlanKind == "" {
		return fmt.Errorf("default plan kind is required")
	}
	if c.Finance.StatsSchedule == "" {
		return fmt.Errorf("stats schedule is required")
	}
	if c.Finance.LeaseEnabled {
		if err := c.Finance.Lease.Validate(); err != nil {
			return err
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
