// Package ratelimit coordinates a per-second request budget for public
// Algorand nodes across every organizer sharing one Redis database.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values
const (
	DefaultTotalBudget    = 50
	DefaultReservedBudget = 30
	DefaultWindowSize     = time.Second
	DefaultKeyTTL         = 2 * time.Second
)

// Redis key prefixes for request counters
const (
	KeyPrefixTotal    = "ledger:budget:total:"
	KeyPrefixReserved = "ledger:budget:reserved:"
	KeyPrefixShared   = "ledger:budget:shared:"
)

// Priority selects the pool a request draws from
type Priority int

const (
	// PriorityHigh is for user-initiated calls: payments, bill
	// notifications and on-demand refreshes. Uses the reserved pool.
	PriorityHigh Priority = iota
	// PriorityLow is for background refresh passes. Uses the shared pool.
	PriorityLow
)

// String returns a string representation of the priority level
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

type priorityKey struct{}

// WithPriority tags ctx so ledger calls made with it draw from p's pool
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFromContext returns the priority tagged on ctx, PriorityHigh when untagged
func PriorityFromContext(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return PriorityHigh
}

// consumeScript checks both the total and the pool counter and increments
// them together
var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local n = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + n > totalBudget or poolUsed + n > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, n)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, n)
	redis.call('EXPIRE', poolKey, ttl)
	return {1, totalUsed + n, poolUsed + n}
`)

// RequestBudget is a fixed-window request budget split into a reserved pool
// for interactive calls and a shared pool for background work
type RequestBudget struct {
	redis          redis.Cmdable
	prefix         string
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// RequestBudgetConfig holds configuration for a request budget
type RequestBudgetConfig struct {
	// Redis is required; the budget is only useful when shared
	Redis redis.Cmdable
	// Prefix namespaces the counters, normally the KV key prefix
	Prefix string
	// TotalBudget is the number of requests per window. Default: 50.
	TotalBudget int
	// ReservedBudget is the part of TotalBudget kept for PriorityHigh. Default: 30.
	ReservedBudget int
	// WindowSize is the window duration. Default: 1s.
	WindowSize time.Duration
	// KeyTTL must be at least WindowSize. Default: 2s.
	KeyTTL time.Duration
}

// Usage is the consumption in the current window
type Usage struct {
	TotalUsed      int       `json:"totalUsed"`
	ReservedUsed   int       `json:"reservedUsed"`
	SharedUsed     int       `json:"sharedUsed"`
	TotalBudget    int       `json:"totalBudget"`
	ReservedBudget int       `json:"reservedBudget"`
	SharedBudget   int       `json:"sharedBudget"`
	WindowStart    time.Time `json:"windowStart"`
}

func (c *RequestBudgetConfig) withDefaults() RequestBudgetConfig {
	out := *c
	if out.TotalBudget == 0 {
		out.TotalBudget = DefaultTotalBudget
	}
	if out.ReservedBudget == 0 {
		out.ReservedBudget = DefaultReservedBudget
	}
	if out.WindowSize == 0 {
		out.WindowSize = DefaultWindowSize
	}
	if out.KeyTTL == 0 {
		out.KeyTTL = DefaultKeyTTL
	}
	return out
}

// Validate checks if the configuration is valid
func (c *RequestBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	d := c.withDefaults()
	if d.ReservedBudget > d.TotalBudget {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", d.ReservedBudget, d.TotalBudget)
	}
	return nil
}

// NewRequestBudget creates a budget with the given configuration
func NewRequestBudget(cfg *RequestBudgetConfig) (*RequestBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := cfg.withDefaults()
	return &RequestBudget{
		redis:          d.Redis,
		prefix:         d.Prefix,
		totalBudget:    d.TotalBudget,
		reservedBudget: d.ReservedBudget,
		sharedBudget:   d.TotalBudget - d.ReservedBudget,
		windowSize:     d.WindowSize,
		keyTTL:         d.KeyTTL,
		now:            time.Now,
	}, nil
}

func (b *RequestBudget) windowStart() time.Time {
	return b.now().Truncate(b.windowSize)
}

func (b *RequestBudget) keys(window time.Time) (total, reserved, shared string) {
	ts := strconv.FormatInt(window.UnixMilli(), 10)
	return b.prefix + KeyPrefixTotal + ts, b.prefix + KeyPrefixReserved + ts, b.prefix + KeyPrefixShared + ts
}

// TryAcquire takes one request from priority's pool. When the pool or the
// total is exhausted it returns false and the time until the next window.
// A Redis failure denies the request.
func (b *RequestBudget) TryAcquire(ctx context.Context, priority Priority) (bool, time.Duration) {
	window := b.windowStart()
	totalKey, reservedKey, sharedKey := b.keys(window)

	poolKey, poolBudget := sharedKey, b.sharedBudget
	if priority == PriorityHigh {
		poolKey, poolBudget = reservedKey, b.reservedBudget
	}

	ttl := int(b.keyTTL.Seconds())
	if ttl < 1 {
		ttl = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{totalKey, poolKey},
		1, b.totalBudget, poolBudget, ttl).Int64Slice()
	if err != nil || len(result) == 0 || result[0] != 1 {
		return false, b.untilNextWindow(window)
	}
	return true, 0
}

// Wait blocks until a request from priority's pool is admitted or ctx ends
func (b *RequestBudget) Wait(ctx context.Context, priority Priority) error {
	for {
		ok, wait := b.TryAcquire(ctx, priority)
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *RequestBudget) untilNextWindow(window time.Time) time.Duration {
	wait := window.Add(b.windowSize).Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// Usage returns the consumption of the current window. Missing counters read as zero.
func (b *RequestBudget) Usage(ctx context.Context) (*Usage, error) {
	window := b.windowStart()
	totalKey, reservedKey, sharedKey := b.keys(window)

	pipe := b.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read budget usage: %w", err)
	}

	return &Usage{
		TotalUsed:      intOrZero(totalCmd),
		ReservedUsed:   intOrZero(reservedCmd),
		SharedUsed:     intOrZero(sharedCmd),
		TotalBudget:    b.totalBudget,
		ReservedBudget: b.reservedBudget,
		SharedBudget:   b.sharedBudget,
		WindowStart:    window,
	}, nil
}

func intOrZero(cmd *redis.StringCmd) int {
	v, err := cmd.Int()
	if err != nil {
		return 0
	}
	return v
}
