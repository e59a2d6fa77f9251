// Package ratelimit throttles per-connection message traffic for
// CREATE_ROOM, PLACE_STONE, and CHAT_MESSAGE, adapted from the teacher's
// internal/v1/ratelimit/limiter.go: same store-selection branch (memory
// store standalone, Redis store when the bus is enabled) and the same
// ulule/limiter/v3 rate objects, but keyed by connection id and remote IP
// instead of gin requests and JWT claims — there is no HTTP request or
// authenticated user on the TCP game connection, only a *session.Conn.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/heejunkim00/gomoku-game/internal/v1/config"
	"github.com/heejunkim00/gomoku-game/internal/v1/logging"
	"github.com/heejunkim00/gomoku-game/internal/v1/metrics"
)

// Scope identifies which traffic class a check is for, used both as the
// limiter.Limiter selector and the rate_limit metrics label.
type Scope string

const (
	ScopeCreateRoom Scope = "create_room"
	ScopePlaceStone Scope = "place_stone"
	ScopeChat       Scope = "chat_message"
	ScopeConnectIP  Scope = "connect_ip"
)

// Limiter enforces per-connection and per-IP limits over the game
// protocol's mutating message types. Unlike the teacher's gin middleware,
// every check here is a plain method call from session.Dispatcher rather
// than an HTTP handler wrapper, since there is no request/response cycle
// to wrap on a persistent TCP connection.
type Limiter struct {
	connectIP  *limiter.Limiter
	createRoom *limiter.Limiter
	placeStone *limiter.Limiter
	chat       *limiter.Limiter
}

// New builds a Limiter. redisClient may be nil, in which case an
// in-process memory store is used — the same fallback branch the teacher
// takes when Redis is disabled or unavailable.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WS_IP: %w", err)
	}
	wsUserRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsUser)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WS_USER: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "gomoku:limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "ratelimit: using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "ratelimit: using in-process memory store")
	}

	return &Limiter{
		connectIP:  limiter.New(store, wsIPRate),
		createRoom: limiter.New(store, wsUserRate),
		placeStone: limiter.New(store, wsUserRate),
		chat:       limiter.New(store, wsUserRate),
	}, nil
}

func (l *Limiter) pick(scope Scope) *limiter.Limiter {
	switch scope {
	case ScopeCreateRoom:
		return l.createRoom
	case ScopePlaceStone:
		return l.placeStone
	case ScopeChat:
		return l.chat
	default:
		return l.connectIP
	}
}

// Allow reports whether key (a connection id for player traffic, a remote
// IP for ScopeConnectIP) is still within scope's rate. A store failure
// fails open, same as the teacher's "fail open for availability" choice
// in GlobalMiddleware. A nil Limiter always allows, so rate limiting can
// be wired in optionally without every caller having to check for it.
func (l *Limiter) Allow(ctx context.Context, scope Scope, key string) bool {
	if l == nil {
		return true
	}
	lim := l.pick(scope)
	// All limiters share one store, so the scope is part of the store key
	// to give each scope its own bucket per connection or IP.
	res, err := lim.Get(ctx, string(scope)+":"+key)
	if err != nil {
		logging.Error(ctx, "ratelimit: store failed, failing open", zap.String("scope", string(scope)), zap.Error(err))
		return true
	}

	metrics.RateLimitRequests.WithLabelValues(string(scope)).Inc()
	if res.Reached {
		metrics.RateLimitExceeded.WithLabelValues(string(scope), "rate_exceeded").Inc()
		return false
	}
	return true
}
