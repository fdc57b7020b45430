package clients

import (
	"errors"
	"time"
)

var (
	// ErrInvalidConfig is returned for unusable client settings
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// Config holds the settings of the outbound clients
type Config struct {
	AccountingURL   string
	OrchestratorURL string
	// LocalProvider identifies this deployment to the accounting service
	LocalProvider string

	// OAuth2 client credentials. Requests are unauthenticated when TokenURL
	// is empty.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	Timeout time.Duration
	Retry   RetryConfig

	HibernateCacheSize int
	HibernateCacheTTL  time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		LocalProvider:      "local",
		Timeout:            30 * time.Second,
		Retry:              DefaultRetryConfig(),
		HibernateCacheSize: 1024,
		HibernateCacheTTL:  time.Hour,
	}
}
