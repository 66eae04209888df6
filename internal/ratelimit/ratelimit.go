// Package ratelimit is a fixed-window request limiter backed by Redis counters.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"conftickets/internal/dto"
)

const keyPrefix = "ratelimit"

type Config struct {
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type Limiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	log    *zerolog.Logger
}

func New(rdb redis.Cmdable, cfg Config, log *zerolog.Logger) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Limiter{rdb: rdb, limit: cfg.Limit, window: cfg.Window, log: log}
}

// Allow counts one hit for scope and id and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, scope, id string) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", keyPrefix, scope, id)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= l.limit, nil
}

// Middleware limits requests per client IP. Redis failures let the request through.
func (l *Limiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *ginext.Context) {
		ok, err := l.Allow(c.Request.Context(), scope, c.ClientIP())
		if err != nil {
			l.log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			dto.TooManyRequestsError(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
