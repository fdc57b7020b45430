// Package config loads the service configuration from environment variables.
//
// # Overview
//
// LoadConfig reads every setting with a default, reads the default plan
// options file when one is named, and validates the result. A reload builds
// a new Config rather than mutating the running one.
//
// # Configuration Structure
//
// Server settings:
//
//	FS_HOST="0.0.0.0"
//	FS_PORT="8080"
//	FS_HEALTH_PORT="9090"
//	FS_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	FS_STORAGE_TYPE="postgres"  # filesystem, postgres, sqlite, memory
//	FS_FILESYSTEM_ROOT="/var/finance"
//	FS_POSTGRES_URL="postgres://localhost/finance"
//	FS_SQLITE_PATH="/var/finance/finance.db"
//	FS_S3_BUCKET="finance-invoices"  # invoice archive, optional
//	FS_S3_REGION="us-east-1"
//
// Client settings:
//
//	FS_ACCOUNTING_URL="http://accounting:8080"
//	FS_RAS_URL="http://ras:8080"
//	FS_OAUTH_TOKEN_URL="http://auth/token"
//	FS_OAUTH_CLIENT_ID="finance"
//	FS_OAUTH_CLIENT_SECRET="..."
//
// Finance settings:
//
//	FS_DEFAULT_PLAN_KIND="postpaid"
//	FS_DEFAULT_PLAN_NAME="default"
//	FS_DEFAULT_PLAN_OPTIONS_FILE="/etc/finance/default-plan.yaml"
//	FS_WATCH_PATH="/etc/finance"
//	FS_STATS_SCHEDULE="@every 1m"
//	FS_LEASE_ENABLED="true"
//	FS_REDIS_URL="redis://localhost:6379"
//
// Observability settings:
//
//	FS_LOG_LEVEL="info"  # debug, info, warn, error
//	FS_METRICS_ENABLED="true"
//	FS_OTEL_ENABLED="true"
//	FS_OTEL_ENDPOINT="otel-collector:4317"
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/clients: Uses client configuration
//   - pkg/lease: Uses lease configuration
//   - pkg/observability: Uses observability configuration
package config
