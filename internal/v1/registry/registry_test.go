package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

type fakeConn struct{ id string }

func (f *fakeConn) SendJSON(v any) {}
func (f *fakeConn) ConnID() string { return f.id }
func (f *fakeConn) Close() error   { return nil }

func TestCreateAllocatesMonotonicIDs(t *testing.T) {
	reg := New(nil)
	r1 := reg.Create()
	r2 := reg.Create()
	assert.Equal(t, types.RoomID("room_1"), r1.ID())
	assert.Equal(t, types.RoomID("room_2"), r2.ID())
}

func TestGetReturnsCreatedRoom(t *testing.T) {
	reg := New(nil)
	r := reg.Create()
	got, ok := reg.Get(r.ID())
	require.True(t, ok)
	assert.Same(t, r, got)
}

func TestGetMissingRoom(t *testing.T) {
	reg := New(nil)
	_, ok := reg.Get("room_404")
	assert.False(t, ok)
}

func TestListReturnsAllRooms(t *testing.T) {
	reg := New(nil)
	reg.Create()
	reg.Create()
	assert.Len(t, reg.List(), 2)
}

func TestFindByConnectionLocatesSeat(t *testing.T) {
	reg := New(nil)
	r := reg.Create()
	conn := &fakeConn{id: "c1"}
	_, _, err := r.AddPlayer("alice", conn)
	require.NoError(t, err)

	found, role, ok := reg.FindByConnection(conn)
	require.True(t, ok)
	assert.Same(t, r, found)
	assert.Equal(t, types.RolePlayer, role)
}

func TestFindByConnectionMiss(t *testing.T) {
	reg := New(nil)
	reg.Create()
	_, _, ok := reg.FindByConnection(&fakeConn{id: "ghost"})
	assert.False(t, ok)
}

func TestPurgeSchedulesAndDeletesEmptyRoom(t *testing.T) {
	reg := New(nil)
	reg.grace = 20 * time.Millisecond
	r := reg.Create()

	reg.Purge()
	_, ok := reg.Get(r.ID())
	assert.True(t, ok, "room should still exist during the grace period")

	time.Sleep(60 * time.Millisecond)
	_, ok = reg.Get(r.ID())
	assert.False(t, ok, "room should be purged after the grace period")
}

func TestPurgeSkipsRoomWithLiveConnection(t *testing.T) {
	reg := New(nil)
	reg.grace = 20 * time.Millisecond
	r := reg.Create()
	_, _, err := r.AddPlayer("alice", &fakeConn{id: "c1"})
	require.NoError(t, err)

	reg.Purge()
	time.Sleep(60 * time.Millisecond)
	_, ok := reg.Get(r.ID())
	assert.True(t, ok)
}

func TestPurgeGraceIsCancelledOnReconnectWithinWindow(t *testing.T) {
	reg := New(nil)
	reg.grace = 60 * time.Millisecond
	r := reg.Create()

	reg.Purge() // schedules cleanup since room is empty

	// A player joins mid-grace-period.
	time.Sleep(10 * time.Millisecond)
	_, _, err := r.AddPlayer("alice", &fakeConn{id: "c1"})
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	_, ok := reg.Get(r.ID())
	assert.True(t, ok, "room with a connection that joined during grace must survive")
}
