package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestTimerGoroutineExitsOnCancellation guards against the exact defect
// spec.md §9 warns about: a stale timer task must notice a generation
// mismatch and exit rather than leaking forever once the game ends.
func TestTimerGoroutineExitsOnCancellation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := New("room_1", nil)
	black, white := newFakeConn("black"), newFakeConn("white")
	_, _, err := r.AddPlayer("alice", black)
	require.NoError(t, err)
	_, _, err = r.AddPlayer("bob", white)
	require.NoError(t, err)
	_, err = r.SetReady(black)
	require.NoError(t, err)
	_, err = r.SetReady(white)
	require.NoError(t, err)

	_, err = r.Surrender(black)
	require.NoError(t, err)

	// The timer goroutine wakes every 100ms; give it a couple of ticks to
	// observe the cancelled generation and exit before we assert no
	// goroutines remain.
	time.Sleep(300 * time.Millisecond)
}
