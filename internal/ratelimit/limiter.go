// Package ratelimit throttles proxy clients with a redis fixed-window counter.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrRedisUnavailable  = errors.New("redis unavailable")
)

type Decision struct {
	Limit      int
	Remaining  int
	Reset      time.Time // When the window resets
	RetryAfter int       // Seconds
	Allowed    bool
}

type LimitConfig struct {
	Rate   int           `yaml:"rate"`
	Window time.Duration `yaml:"window"`
}

// Enabled reports whether c describes a usable limit.
func (c LimitConfig) Enabled() bool {
	return c.Rate > 0 && c.Window > 0
}

// INCR and set the expiry on the first hit of a window; returns count and
// remaining ttl in ms.
var windowScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if tonumber(current) == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return {current, redis.call("PTTL", KEYS[1])}
`)

type Limiter struct {
	client *redis.Client
	salt   string // For IP hashing stability
	now    func() time.Time
}

func NewLimiter(client *redis.Client, salt string) *Limiter {
	if salt == "" {
		salt = "frl-proxy"
	}
	return &Limiter{client: client, salt: salt, now: time.Now}
}

// HashIP creates a privacy-safe hash of the IP
func (l *Limiter) HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip + l.salt))
	return hex.EncodeToString(hash[:])
}

// Check counts one request against key. The window starts with the first
// request and resets when its key expires.
func (l *Limiter) Check(ctx context.Context, key string, config LimitConfig) (*Decision, error) {
	res, err := windowScript.Run(ctx, l.client, []string{key}, config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: unexpected reply %v", ErrRedisUnavailable, res)
	}
	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = config.Window
	}

	remaining := config.Rate - count
	if remaining < 0 {
		remaining = 0
	}
	retry := int((ttl + time.Second - 1) / time.Second)
	return &Decision{
		Limit:      config.Rate,
		Remaining:  remaining,
		Reset:      l.now().Add(ttl),
		RetryAfter: retry,
		Allowed:    count <= config.Rate,
	}, nil
}
