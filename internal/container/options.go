package container

import (
	"fmt"
	"time"

	"github.com/serroba/admission/internal/middleware"
	"github.com/serroba/admission/internal/ratelimit"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Options configures both binaries. humacli also reads them as SERVICE_* env vars.
type Options struct {
	Port            int    `default:"8888"                                                 help:"Port to listen on"                                       short:"p"`
	Store           string `default:"memory"                                               help:"Record store: memory, redis or postgres"                 short:"s"`
	RedisAddr       string `default:"localhost:6379"                                       help:"Redis server address"                                    short:"r"`
	DatabaseURL     string `default:"postgres://localhost:5432/admission?sslmode=disable" help:"PostgreSQL connection URL"                               short:"d"`
	Algorithm       string `default:"token-bucket"                                         help:"Algorithm: token-bucket, fixed-window or sliding-window" short:"a"`
	Limit           int    `default:"100"                                                  help:"Points allowed per window"                               short:"l"`
	WindowMs        int    `default:"60000"                                                help:"Window length in milliseconds"                           short:"w"`
	Prefix          string `default:"rl"                                                   help:"Key prefix"`
	HTTPLimit       int    `default:"600"                                                  help:"Requests per window allowed for each HTTP client"`
	HTTPReadLimit   int    `default:"600"                                                  help:"Read requests per window allowed for each HTTP client"`
	HTTPWriteLimit  int    `default:"120"                                                  help:"Write requests per window allowed for each HTTP client"`
	TimeoutMs       int    `default:"500"                                                  help:"Deadline for a store call in milliseconds"`
	MaxLogEntries   int    `default:"10000"                                                help:"Cap on sliding window log entries per key"`
	SweepIntervalMs int    `default:"60000"                                                help:"Interval between expiry sweeps in milliseconds"`
	FailOpen        bool   `default:"false"                                                help:"Let HTTP requests through when the store fails"`
	Events          bool   `default:"false"                                                help:"Publish denied decisions to a redis stream"`
	EventAttempts   int    `default:"5"                                                    help:"Deliveries of a failing decision event before it is dropped"`
	LogFormat       string `default:"console"                                              help:"Log format: json or console"`
	LogLevel        string `default:"info"                                                 help:"Log level: debug, info, warn or error"`
}

// LimiterConfig builds the configuration of the decision API limiter.
func (o *Options) LimiterConfig() (ratelimit.Config, error) {
	policy, err := o.policy(int64(o.Limit))
	if err != nil {
		return ratelimit.Config{}, err
	}

	return ratelimit.Config{Prefix: o.Prefix, Policy: policy}, nil
}

// HTTPLimiterConfig builds the configuration of the HTTP limiter of scope. It shares
// algorithm and window with the decision limiter under the prefix {prefix}:http:{scope}.
func (o *Options) HTTPLimiterConfig(scope middleware.Scope) (ratelimit.Config, error) {
	var limit int

	switch scope {
	case middleware.ScopeGlobal:
		limit = o.HTTPLimit
	case middleware.ScopeRead:
		limit = o.HTTPReadLimit
	case middleware.ScopeWrite:
		limit = o.HTTPWriteLimit
	default:
		return ratelimit.Config{}, fmt.Errorf("unknown http scope %q", scope)
	}

	policy, err := o.policy(int64(limit))
	if err != nil {
		return ratelimit.Config{}, err
	}

	return ratelimit.Config{Prefix: o.Prefix + ":http:" + string(scope), Policy: policy}, nil
}

func (o *Options) policy(limit int64) (ratelimit.Policy, error) {
	algorithm, err := ratelimit.ParseAlgorithm(o.Algorithm)
	if err != nil {
		return ratelimit.Policy{}, err
	}

	policy := ratelimit.Policy{
		Algorithm: algorithm,
		Limit:     limit,
		Window:    time.Duration(o.WindowMs) * time.Millisecond,
	}

	if err := policy.Validate(); err != nil {
		return ratelimit.Policy{}, fmt.Errorf("invalid limiter options: %w", err)
	}

	return policy, nil
}

func (o *Options) timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

func (o *Options) sweepInterval() time.Duration {
	return time.Duration(o.SweepIntervalMs) * time.Millisecond
}
