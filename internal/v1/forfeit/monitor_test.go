package forfeit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heejunkim00/gomoku-game/internal/v1/registry"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

type fakeConn struct{ id string }

func (f *fakeConn) SendJSON(v any) {}
func (f *fakeConn) ConnID() string { return f.id }
func (f *fakeConn) Close() error   { return nil }

func TestSweepForfeitsExpiredDisconnect(t *testing.T) {
	reg := registry.New(nil)
	r := reg.Create()

	blackConn := &fakeConn{id: "black"}
	whiteConn := &fakeConn{id: "white"}
	_, _, err := r.AddPlayer("alice", blackConn)
	require.NoError(t, err)
	_, _, err = r.AddPlayer("bob", whiteConn)
	require.NoError(t, err)
	_, err = r.SetReady(blackConn)
	require.NoError(t, err)
	_, err = r.SetReady(whiteConn)
	require.NoError(t, err)
	require.Equal(t, types.StatusPlaying, r.Status())

	r.HandleDisconnect(blackConn)

	m := New(reg)
	// Simulate a sweep tick well past the 180s reconnect grace period.
	m.sweep(context.Background(), time.Now().Add(4*time.Minute))

	require.Equal(t, types.StatusFinished, r.Status())
}

func TestSweepIgnoresRoomsWithoutExpiredDisconnects(t *testing.T) {
	reg := registry.New(nil)
	r := reg.Create()
	_, _, err := r.AddPlayer("alice", &fakeConn{id: "a"})
	require.NoError(t, err)

	m := New(reg)
	m.sweep(context.Background(), time.Now())

	require.Equal(t, types.StatusWaiting, r.Status())
}
