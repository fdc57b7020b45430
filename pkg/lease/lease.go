// Package lease coordinates background sweeps between replicas of the
// finance service.
//
// # Overview
//
// Every plan runs its billing and governance workers in every replica. When
// the replicas share a store, a sweep must run in only one of them at a time.
// Before sweeping, a worker acquires the lease named after the plan and
// worker; replicas that fail to acquire it skip the sweep.
//
//	ok, err := l.Acquire(ctx, "gold/billing")
//	if err != nil || !ok {
//		return
//	}
//	defer l.Release(ctx, "gold/billing")
//
// Leases expire on their own so a crashed replica never blocks the others.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	// ErrInvalidConfig is returned for unusable lease settings
	ErrInvalidConfig = errors.New("invalid lease configuration")
)

// Lease grants exclusive, expiring ownership of a named sweep
type Lease interface {
	Acquire(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// Noop grants every lease. It is used by single replica deployments.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (bool, error) { return true, nil }

func (Noop) Release(context.Context, string) error { return nil }

// Config holds Redis lease settings
type Config struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	Owner         string
	TTL           time.Duration
	Prefix        string
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidConfig)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)
	}
	return nil
}

// releaseScript deletes the key only if it is still held by the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements Lease with SET NX PX keys
type RedisLease struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
	prefix string
}

// NewRedisClient connects to Redis using a redis:// URL
func NewRedisClient(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}

	// Set connection timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisLease creates a lease over an existing client
func NewRedisLease(client *redis.Client, config Config) (*RedisLease, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = "finance:lease:"
	}
	return &RedisLease{
		client: client,
		owner:  config.Owner,
		ttl:    config.TTL,
		prefix: prefix,
	}, nil
}

func (l *RedisLease) key(name string) string {
	return l.prefix + name
}

// Acquire takes the lease or renews it if this owner already holds it
func (l *RedisLease) Acquire(ctx context.Context, name string) (bool, error) {
	key := l.key(name)

	ok, err := l.client.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if ok {
		return true, nil
	}

	holder, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// expired between SETNX and GET; try once more
		return l.client.SetNX(ctx, key, l.owner, l.ttl).Result()
	} else if err != nil {
		return false, fmt.Errorf("failed to read lease %s: %w", name, err)
	}
	if holder != l.owner {
		return false, nil
	}

	if err := l.client.PExpire(ctx, key, l.ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	return true, nil
}

// Release gives the lease up if this owner holds it
func (l *RedisLease) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(name)}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
