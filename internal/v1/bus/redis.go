// Package bus provides an optional cross-instance pub/sub and
// set-membership mirror over Redis, adapted from the teacher's
// internal/v1/bus/redis.go. Every method is nil-receiver safe: a nil
// *Service (or one with no underlying client) behaves as a no-op, so
// single-instance deployments run with the bus simply absent rather than
// behind an explicit feature flag at every call site.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/heejunkim00/gomoku-game/internal/v1/logging"
	"github.com/heejunkim00/gomoku-game/internal/v1/metrics"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

// RoomEvent is the envelope mirrored between instances for a room-level
// event (e.g. a BOARD_UPDATE or GAME_END also observed by peers watching
// the same room through a different instance).
type RoomEvent struct {
	RoomID  string          `json:"room_id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

var _ types.BusService = (*Service)(nil)

// Client returns the underlying Redis client, or nil in single-instance
// mode.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to Redis and verifies the connection with a ping.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	logging.Info(context.Background(), "connected to redis bus", zap.String("addr", addr))
	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// PublishRoomEvent broadcasts a room event to other instances watching
// the same room, channel schema "gomoku:room:{id}".
func (s *Service) PublishRoomEvent(ctx context.Context, roomID types.RoomID, event string, payload any) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		inner, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal room event payload: %w", err)
		}
		msg, err := json.Marshal(RoomEvent{RoomID: string(roomID), Event: event, Payload: inner})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal room event envelope: %w", err)
		}
		channel := fmt.Sprintf("gomoku:room:%s", roomID)
		return nil, s.client.Publish(ctx, channel, msg).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "redis circuit breaker open: dropping room event publish")
			return nil
		}
		logging.Error(ctx, "redis publish failed")
		return err
	}
	return nil
}

// SetAdd adds a member to a Redis set, used to mirror the registry's
// room-id directory across instances.
func (s *Service) SetAdd(ctx context.Context, key, member string) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SAdd(ctx, key, member).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "redis circuit breaker open: skipping SetAdd")
			return nil
		}
		return fmt.Errorf("failed to add to set: %w", err)
	}
	return nil
}

// SetRem removes a member from a Redis set.
func (s *Service) SetRem(ctx context.Context, key, member string) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SRem(ctx, key, member).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "redis circuit breaker open: skipping SetRem")
			return nil
		}
		return fmt.Errorf("failed to remove from set: %w", err)
	}
	return nil
}

// SetMembers retrieves all members of a Redis set. On breaker-open it
// degrades to an empty list rather than failing the caller, so a local
// registry can keep functioning without the distributed view.
func (s *Service) SetMembers(ctx context.Context, key string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SMembers(ctx, key).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "redis circuit breaker open: returning empty set members")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get set members: %w", err)
	}
	return res.([]string), nil
}

// Ping checks Redis connectivity through the circuit breaker.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil && err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
	}
	return err
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
