// Package room implements the per-room Gomoku state machine: seating,
// readiness, turn-based play with a cancellable per-turn timer,
// disconnect/reconnect with a grace period, surrender, and rematch with
// color swap. It is grounded on the teacher's internal/v1/room/room.go
// lock/helper split (exported methods acquire the mutex then delegate to
// lower-case *Locked helpers) generalized from video-conference roles to
// Gomoku seats, and on original_source/server/room_manager.py's GameRoom
// for exact timing and reconnect/rematch semantics.
package room

import (
	"sync"
	"time"

	"github.com/heejunkim00/gomoku-game/internal/v1/board"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

const (
	maxSeats              = 2
	turnTimeLimit         = 60 * time.Second
	reconnectGrace        = 180 * time.Second
	maxReconnectAttempts  = 2
	rematchAdvisoryWindow = 30 * time.Second
	timerTickInterval     = 100 * time.Millisecond
)

// seat is one of the up to two player slots.
type seat struct {
	name              types.PlayerName
	color             types.Color
	ready             bool
	conn              types.Sender // nil while disconnected
	reconnectAttempts int          // successful reconnects used so far, capped at maxReconnectAttempts
}

// spectatorEntry is a non-seated observer.
type spectatorEntry struct {
	name types.PlayerName
	conn types.Sender
}

// disconnectRecord tracks a seat whose connection was lost mid-game.
type disconnectRecord struct {
	at             time.Time
	color          types.Color
	reconnectCount int
}

// Room is a single game's concurrent state machine. All mutating methods
// acquire mu, compute a result plus a snapshot of recipients to notify,
// release mu, and only then let the caller perform I/O via Send. No
// method in this package performs socket I/O while holding mu.
type Room struct {
	mu sync.Mutex

	id     types.RoomID
	status types.RoomStatus

	board       *board.Board
	currentTurn types.Color

	turnDeadline time.Time
	paused       bool
	generation   uint64 // advances on every arm/cancel; stale timer wakes are ignored

	seats        []*seat
	spectators   []*spectatorEntry
	disconnected map[types.PlayerName]*disconnectRecord
	rematchAgreed map[types.PlayerName]bool

	bus types.BusService

	createdAt time.Time
}

// New constructs an empty, Waiting room. bus may be nil (single-instance
// mode); every bus call in this package tolerates a nil BusService.
func New(id types.RoomID, bus types.BusService) *Room {
	return &Room{
		id:            id,
		status:        types.StatusWaiting,
		board:         board.New(),
		currentTurn:   types.ColorNone,
		disconnected:  make(map[types.PlayerName]*disconnectRecord),
		rematchAgreed: make(map[types.PlayerName]bool),
		bus:           bus,
		createdAt:     time.Now(),
	}
}

func (r *Room) ID() types.RoomID { return r.id }

// LiveConnections returns the number of seats and spectators currently
// holding a live (non-nil) connection, used by the Registry's Purge.
func (r *Room) LiveConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveConnectionsLocked()
}

func (r *Room) liveConnectionsLocked() int {
	n := 0
	for _, s := range r.seats {
		if s.conn != nil {
			n++
		}
	}
	for _, sp := range r.spectators {
		if sp.conn != nil {
			n++
		}
	}
	return n
}

// allRecipientsLocked returns every seated player and spectator that
// currently has a live connection, a snapshot safe to use after unlock.
func (r *Room) allRecipientsLocked() []types.Sender {
	out := make([]types.Sender, 0, len(r.seats)+len(r.spectators))
	for _, s := range r.seats {
		if s.conn != nil {
			out = append(out, s.conn)
		}
	}
	for _, sp := range r.spectators {
		if sp.conn != nil {
			out = append(out, sp.conn)
		}
	}
	return out
}

func (r *Room) spectatorRecipientsLocked() []types.Sender {
	out := make([]types.Sender, 0, len(r.spectators))
	for _, sp := range r.spectators {
		if sp.conn != nil {
			out = append(out, sp.conn)
		}
	}
	return out
}

func (r *Room) seatByConnLocked(conn types.Sender) *seat {
	for _, s := range r.seats {
		if s.conn == conn {
			return s
		}
	}
	return nil
}

func (r *Room) seatByNameLocked(name types.PlayerName) *seat {
	for _, s := range r.seats {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (r *Room) spectatorByConnLocked(conn types.Sender) *spectatorEntry {
	for _, sp := range r.spectators {
		if sp.conn == conn {
			return sp
		}
	}
	return nil
}

func (r *Room) otherSeatLocked(s *seat) *seat {
	for _, o := range r.seats {
		if o != s {
			return o
		}
	}
	return nil
}

func (r *Room) readyStatusLocked() map[string]bool {
	out := make(map[string]bool, len(r.seats))
	for _, s := range r.seats {
		out[string(s.name)] = s.ready
	}
	return out
}

func (r *Room) boardSnapshotLocked() [][]string {
	return r.board.Snapshot()
}

func (r *Room) remainingSecondsLocked() int {
	if r.status != types.StatusPlaying || r.paused || r.turnDeadline.IsZero() {
		return 0
	}
	remaining := int(time.Until(r.turnDeadline).Round(time.Second) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Status reports the room's current lifecycle state.
func (r *Room) Status() types.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// HasPendingReconnect reports whether name currently has an open
// disconnection record, used by the Registry to locate the room a
// RECONNECT request (which carries only a player name, not a room id)
// belongs to.
func (r *Room) HasPendingReconnect(name types.PlayerName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.disconnected[name]
	return ok
}

// RoleOf reports whether conn currently holds a seat or spectator slot
// in this room, used by the Registry's FindByConnection.
func (r *Room) RoleOf(conn types.Sender) (types.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seatByConnLocked(conn) != nil {
		return types.RolePlayer, true
	}
	if r.spectatorByConnLocked(conn) != nil {
		return types.RoleSpectator, true
	}
	return "", false
}
