// Package worker holds background send infrastructure: the Redis send
// throttle and the scheduled-campaign poller.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for an atomic fixed-window counter. GET then INCR from the
// client races under concurrent senders; the script checks and increments
// in one round trip.
const sendLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// SendThrottle caps per-campaign outbound sends per minute using an atomic
// Redis counter. It satisfies the campaign service's Throttle interface.
type SendThrottle struct {
	redis  *redis.Client
	limit  int
	script *redis.Script
}

// NewSendThrottle creates a throttle allowing perMinute sends per campaign.
func NewSendThrottle(redisClient *redis.Client, perMinute int) *SendThrottle {
	if perMinute <= 0 {
		perMinute = 600
	}
	return &SendThrottle{
		redis:  redisClient,
		limit:  perMinute,
		script: redis.NewScript(sendLimitLuaScript),
	}
}

// NewSendThrottleFromURL connects to Redis and verifies the connection
// before returning a throttle.
func NewSendThrottleFromURL(redisURL string, perMinute int) (*SendThrottle, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[Throttle] Connected to Redis at %s", redisURL)

	return NewSendThrottle(client, perMinute), nil
}

// Wait blocks until the next send for the campaign fits inside the current
// minute window, or the context is done.
func (t *SendThrottle) Wait(ctx context.Context, campaignID string) error {
	for {
		now := time.Now()
		key := fmt.Sprintf("throttle:campaign:%s:%d", campaignID, now.Unix()/60)

		result, err := t.script.Run(ctx, t.redis, []string{key}, t.limit, 120).Slice()
		if err != nil {
			// A broken throttle must not halt a dispatch mid-batch.
			log.Printf("[Throttle] check failed, allowing send: %v", err)
			return nil
		}

		if result[0].(int64) == 1 {
			return nil
		}

		wait := time.Duration(60-now.Second()) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Close closes the Redis connection.
func (t *SendThrottle) Close() error {
	return t.redis.Close()
}
