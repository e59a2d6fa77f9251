package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)

	return svc, mr
}

func TestNewServicePings(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	assert.NotNil(t, svc.Client())
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestPublishRoomEvent(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	roomID := "room_1"

	sub := svc.Client().Subscribe(ctx, "gomoku:room:"+roomID)
	defer func() { _ = sub.Close() }()

	payload := map[string]int{"x": 3, "y": 4}
	require.NoError(t, svc.PublishRoomEvent(ctx, types.RoomID(roomID), "BOARD_UPDATE", payload))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var envelope RoomEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
	assert.Equal(t, roomID, envelope.RoomID)
	assert.Equal(t, "BOARD_UPDATE", envelope.Event)
}

func TestSetOperations(t *testing.T) {
	svc, mr := newTestService(t)
	defer mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	key := "gomoku:rooms"

	require.NoError(t, svc.SetAdd(ctx, key, "room_1"))
	require.NoError(t, svc.SetAdd(ctx, key, "room_2"))

	members, err := svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"room_1", "room_2"}, members)

	require.NoError(t, svc.SetRem(ctx, key, "room_1"))
	members, err = svc.SetMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"room_2"}, members)
}

func TestNilServiceDegradesGracefully(t *testing.T) {
	var svc *Service
	ctx := context.Background()

	assert.NoError(t, svc.PublishRoomEvent(ctx, "room_1", "BOARD_UPDATE", map[string]int{}))
	assert.NoError(t, svc.SetAdd(ctx, "k", "v"))
	assert.NoError(t, svc.SetRem(ctx, "k", "v"))

	members, err := svc.SetMembers(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, members)

	assert.Nil(t, svc.Client())
	assert.NoError(t, svc.Ping(ctx))
	assert.NoError(t, svc.Close())
}

func TestRedisFailureIsGraceful(t *testing.T) {
	svc, mr := newTestService(t)
	mr.Close()

	ctx := context.Background()
	assert.Error(t, svc.Ping(ctx))
}

func TestSetOperationsErrorPaths(t *testing.T) {
	svc, mr := newTestService(t)
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	key := "gomoku:rooms:err"

	require.NoError(t, svc.SetAdd(ctx, key, "room_1"))

	mr.Close()

	assert.Error(t, svc.SetAdd(ctx, key, "room_2"))
	assert.Error(t, svc.SetRem(ctx, key, "room_1"))
	_, err := svc.SetMembers(ctx, key)
	assert.Error(t, err)
}

func TestPublishRoomEventCircuitBreakerOpen(t *testing.T) {
	svc, mr := newTestService(t)
	mr.Close()
	defer func() { _ = svc.Close() }()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = svc.PublishRoomEvent(ctx, "room_1", "BOARD_UPDATE", map[string]string{})
	}
	// Graceful degradation: must not panic, error or not.
	_ = svc.PublishRoomEvent(ctx, "room_1", "BOARD_UPDATE", map[string]string{})
}
