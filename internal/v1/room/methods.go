package room

import (
	"time"

	"github.com/heejunkim00/gomoku-game/internal/v1/board"
	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

// JoinSnapshot is the data a newly seated player needs for its direct
// acknowledgement.
type JoinSnapshot struct {
	Color       types.Color
	Board       [][]string
	CurrentTurn types.Color
	Status      types.RoomStatus
}

// AddPlayer seats name at conn. See spec.md §4.2's operation table.
func (r *Room) AddPlayer(name types.PlayerName, conn types.Sender) (JoinSnapshot, []Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.seats) >= maxSeats {
		return JoinSnapshot{}, nil, ErrRoomFull
	}
	if existing := r.seatByNameLocked(name); existing != nil && existing.conn != nil {
		return JoinSnapshot{}, nil, ErrRoomFull
	}

	color := types.ColorBlack
	if len(r.seats) == 1 {
		color = types.ColorWhite
	}
	r.seats = append(r.seats, &seat{name: name, color: color, ready: false, conn: conn})

	snap := JoinSnapshot{Color: color, Board: r.boardSnapshotLocked(), CurrentTurn: r.currentTurn, Status: r.status}
	notifications := []Notification{
		build(r.allRecipientsLocked(), protocol.TypeUserJoined, protocol.UserJoinedData{PlayerName: string(name), Role: string(types.RolePlayer)}),
	}
	return snap, notifications, nil
}

// SpectateSnapshot is the data a new spectator needs for its direct
// acknowledgement.
type SpectateSnapshot struct {
	Board       [][]string
	CurrentTurn types.Color
	Status      types.RoomStatus
}

// AddSpectator always succeeds; spectator count is unbounded.
func (r *Room) AddSpectator(name types.PlayerName, conn types.Sender) (SpectateSnapshot, []Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spectators = append(r.spectators, &spectatorEntry{name: name, conn: conn})
	snap := SpectateSnapshot{Board: r.boardSnapshotLocked(), CurrentTurn: r.currentTurn, Status: r.status}
	notifications := []Notification{
		build(r.allRecipientsLocked(), protocol.TypeUserJoined, protocol.UserJoinedData{PlayerName: string(name), Role: string(types.RoleSpectator)}),
	}
	return snap, notifications
}

// SetReady toggles the seat's ready flag. If both seats become ready the
// room transitions Waiting -> Playing: board reset, turn = Black, timer
// armed at 60s. Matches spec.md §4.2 "Ready->Start".
func (r *Room) SetReady(conn types.Sender) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seatByConnLocked(conn)
	if s == nil {
		return nil, ErrNotSeated
	}
	if r.status != types.StatusWaiting {
		// Already past the ready phase; READY is a harmless no-op here.
		return nil, nil
	}

	s.ready = !s.ready

	notifications := []Notification{
		build(r.allRecipientsLocked(), protocol.TypeReadyStatus, protocol.ReadyStatusData{ReadyStatus: r.readyStatusLocked()}),
	}

	if len(r.seats) == maxSeats && r.allReadyLocked() {
		r.board.Reset()
		r.currentTurn = types.ColorBlack
		r.status = types.StatusPlaying
		r.armTimerLocked()

		players := make([]protocol.PlayerColor, 0, len(r.seats))
		for _, seat := range r.seats {
			players = append(players, protocol.PlayerColor{Name: string(seat.name), Color: string(seat.color)})
		}
		notifications = append(notifications, build(r.allRecipientsLocked(), protocol.TypeGameStart,
			protocol.GameStartData{CurrentTurn: string(r.currentTurn), Players: players, Board: r.boardSnapshotLocked()}))
	}

	return notifications, nil
}

func (r *Room) allReadyLocked() bool {
	for _, s := range r.seats {
		if !s.ready || s.conn == nil {
			return false
		}
	}
	return len(r.seats) > 0
}

// PlaceStone validates and applies a move, per spec.md §4.2 "Stone
// placement".
func (r *Room) PlaceStone(conn types.Sender, x, y int) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seatByConnLocked(conn)
	if s == nil {
		return nil, ErrNotSeated
	}
	if r.status != types.StatusPlaying || r.paused {
		return nil, ErrNotPlaying
	}
	if s.color != r.currentTurn {
		return nil, ErrNotYourTurn
	}
	if !r.board.IsValidPosition(x, y) {
		return nil, ErrInvalidPosition
	}
	if !r.board.IsEmpty(x, y) {
		return nil, ErrOccupied
	}

	cell := board.Cell(s.color)
	if err := r.board.Place(x, y, cell); err != nil {
		return nil, ErrBadColor
	}

	recipients := r.allRecipientsLocked()
	boardUpdate := build(recipients, protocol.TypeBoardUpdate, protocol.BoardUpdateData{
		X: x, Y: y, Color: string(s.color), Board: r.boardSnapshotLocked(),
	})

	if r.board.CheckWinner(x, y) {
		r.status = types.StatusFinished
		r.cancelTimerLocked()
		winner := string(s.color)
		winnerName := string(s.name)
		return []Notification{
			boardUpdate,
			build(recipients, protocol.TypeGameEnd, protocol.GameEndData{Winner: &winner, WinnerName: &winnerName}),
		}, nil
	}

	if r.board.IsFull() {
		r.status = types.StatusFinished
		r.cancelTimerLocked()
		return []Notification{
			boardUpdate,
			build(recipients, protocol.TypeGameEnd, protocol.GameEndData{Winner: nil, Reason: "draw"}),
		}, nil
	}

	r.currentTurn = s.color.Opponent()
	r.armTimerLocked()

	return []Notification{
		boardUpdate,
		build(recipients, protocol.TypeTurnChange, protocol.TurnChangeData{CurrentTurn: string(r.currentTurn)}),
	}, nil
}

// ChatPlayer broadcasts a chat message from any seated player or
// spectator to everyone in the room. The sender's name is resolved from
// its room membership, not trusted from the caller.
func (r *Room) ChatPlayer(conn types.Sender, text string) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.participantNameLocked(conn)
	if !ok {
		return nil, ErrNotInRoom
	}

	return []Notification{
		build(r.allRecipientsLocked(), protocol.TypeChatMessage, protocol.ChatMessageData{Message: string(name) + ": " + text}),
	}, nil
}

// ChatSpectator broadcasts a chat message restricted to the spectator set.
func (r *Room) ChatSpectator(conn types.Sender, text string) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sp := r.spectatorByConnLocked(conn)
	if sp == nil {
		return nil, ErrNotSpectator
	}

	return []Notification{
		build(r.spectatorRecipientsLocked(), protocol.TypeSpectatorChat, protocol.ChatMessageData{Message: string(sp.name) + ": " + text}),
	}, nil
}

func (r *Room) participantNameLocked(conn types.Sender) (types.PlayerName, bool) {
	if s := r.seatByConnLocked(conn); s != nil {
		return s.name, true
	}
	if sp := r.spectatorByConnLocked(conn); sp != nil {
		return sp.name, true
	}
	return "", false
}

// Leave removes conn's seat or spectator entry and applies the
// "clean leave" reset rules from spec.md §4.2.
func (r *Room) Leave(conn types.Sender) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, role, found := r.removeConnLocked(conn)
	if !found {
		return nil
	}

	notifications := []Notification{
		build(r.allRecipientsLocked(), protocol.TypeUserLeft, protocol.UserLeftData{PlayerName: string(name), Role: string(role)}),
	}
	notifications = append(notifications, r.reconcileAfterDepartureLocked()...)
	return notifications
}

// removeConnLocked removes conn from seats or spectators, returning the
// departed participant's name, role, and whether it was found.
func (r *Room) removeConnLocked(conn types.Sender) (types.PlayerName, types.Role, bool) {
	for i, s := range r.seats {
		if s.conn == conn {
			name := s.name
			r.seats = append(r.seats[:i:i], r.seats[i+1:]...)
			delete(r.disconnected, name)
			delete(r.rematchAgreed, name)
			return name, types.RolePlayer, true
		}
	}
	for i, sp := range r.spectators {
		if sp.conn == conn {
			name := sp.name
			r.spectators = append(r.spectators[:i:i], r.spectators[i+1:]...)
			return name, types.RoleSpectator, true
		}
	}
	return "", "", false
}

// reconcileAfterDepartureLocked applies the post-removal seat-count rules
// shared by Leave and the non-playing branch of HandleDisconnect.
func (r *Room) reconcileAfterDepartureLocked() []Notification {
	switch len(r.seats) {
	case 1:
		r.cancelTimerLocked()
		r.board.Reset()
		r.rematchAgreed = make(map[types.PlayerName]bool)
		r.seats[0].ready = false
		r.status = types.StatusWaiting
		r.paused = false
	case 0:
		r.cancelTimerLocked()
		r.board.Reset()
		r.rematchAgreed = make(map[types.PlayerName]bool)
		r.disconnected = make(map[types.PlayerName]*disconnectRecord)
		r.status = types.StatusWaiting
		r.paused = false
	}
	return nil
}

// HandleDisconnect reacts to an underlying connection closing. A
// mid-game player loss is recorded for reconnect; anything else is
// treated as a clean departure. See spec.md §4.2 "Mid-game disconnect".
func (r *Room) HandleDisconnect(conn types.Sender) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seatByConnLocked(conn)
	if s == nil {
		if r.spectatorByConnLocked(conn) != nil {
			name, role, _ := r.removeConnLocked(conn)
			return []Notification{
				build(r.allRecipientsLocked(), protocol.TypeUserLeft, protocol.UserLeftData{PlayerName: string(name), Role: string(role)}),
			}
		}
		return nil
	}

	if r.status != types.StatusPlaying {
		notifications := []Notification{}
		name, role, _ := r.removeConnLocked(conn)
		notifications = append(notifications, build(r.allRecipientsLocked(), protocol.TypeUserLeft, protocol.UserLeftData{PlayerName: string(name), Role: string(role)}))
		notifications = append(notifications, r.reconcileAfterDepartureLocked()...)
		return notifications
	}

	name := s.name
	color := s.color

	if s.reconnectAttempts >= maxReconnectAttempts {
		return r.forfeitSeatLocked(s, "opponent disconnected too many times")
	}

	r.disconnected[name] = &disconnectRecord{at: time.Now(), color: color, reconnectCount: s.reconnectAttempts}
	s.conn = nil
	r.paused = true
	r.cancelTimerLocked()

	recipients := r.allRecipientsLocked()
	return []Notification{
		build(recipients, protocol.TypePlayerDisconnected, protocol.PlayerDisconnectedData{PlayerName: string(name)}),
		build(recipients, protocol.TypeGamePaused, protocol.GamePausedData{Reason: "player disconnected"}),
	}
}

// forfeitSeatLocked ends the game immediately with s's opponent as
// winner, used both by the reconnect-attempts-exceeded path and by the
// forfeit monitor's grace-period sweep.
func (r *Room) forfeitSeatLocked(s *seat, reason string) []Notification {
	delete(r.disconnected, s.name)
	r.status = types.StatusFinished
	r.paused = false
	r.cancelTimerLocked()

	opponent := r.otherSeatLocked(s)
	var winnerColor, winnerName string
	if opponent != nil {
		winnerColor = string(opponent.color)
		winnerName = string(opponent.name)
	}

	recipients := r.allRecipientsLocked()
	notifications := []Notification{
		build(recipients, protocol.TypeForfeit, protocol.ForfeitData{
			Winner: winnerColor, WinnerName: winnerName, PlayerName: string(s.name), Reason: reason,
		}),
		build(recipients, protocol.TypeGameEnd, protocol.GameEndData{
			Winner: &winnerColor, WinnerName: &winnerName, Reason: reason,
		}),
	}
	return notifications
}

// ReconnectSnapshot is the data a successfully reconnecting player needs
// for its direct acknowledgement.
type ReconnectSnapshot struct {
	Color         types.Color
	Board         [][]string
	CurrentTurn   types.Color
	Status        types.RoomStatus
	RemainingTime int
}

// Reconnect rebinds name's seat to newConn. See spec.md §4.2 "Reconnect".
func (r *Room) Reconnect(name types.PlayerName, newConn types.Sender) (ReconnectSnapshot, []Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.disconnected[name]
	if !ok {
		return ReconnectSnapshot{}, nil, ErrNoReconnectSession
	}
	s := r.seatByNameLocked(name)
	if s == nil {
		delete(r.disconnected, name)
		return ReconnectSnapshot{}, nil, ErrNoReconnectSession
	}
	if s.reconnectAttempts >= maxReconnectAttempts {
		return ReconnectSnapshot{}, nil, ErrReconnectAttemptsExceeded
	}
	if time.Since(rec.at) > reconnectGrace {
		return ReconnectSnapshot{}, nil, ErrReconnectTimedOut
	}

	s.conn = newConn
	s.reconnectAttempts++
	delete(r.disconnected, name)

	notifications := []Notification{}
	if len(r.disconnected) == 0 {
		r.paused = false
		r.armTimerLocked()
		notifications = append(notifications, build(r.allRecipientsLocked(), protocol.TypeGameResumed, struct{}{}))
	}
	notifications = append(notifications, build(r.allRecipientsLocked(), protocol.TypePlayerReconnected,
		protocol.PlayerReconnectedData{PlayerName: string(name)}))

	snap := ReconnectSnapshot{
		Color:         s.color,
		Board:         r.boardSnapshotLocked(),
		CurrentTurn:   r.currentTurn,
		Status:        r.status,
		RemainingTime: r.remainingSecondsLocked(),
	}
	return snap, notifications, nil
}

// Surrender ends the game immediately with conn's opponent as winner.
func (r *Room) Surrender(conn types.Sender) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seatByConnLocked(conn)
	if s == nil {
		return nil, ErrNotSeated
	}
	if r.status != types.StatusPlaying {
		return nil, ErrNotPlaying
	}

	r.status = types.StatusFinished
	r.cancelTimerLocked()
	opponent := r.otherSeatLocked(s)

	var winnerColor, winnerName string
	if opponent != nil {
		winnerColor = string(opponent.color)
		winnerName = string(opponent.name)
	}

	return []Notification{
		build(r.allRecipientsLocked(), protocol.TypeGameEnd, protocol.GameEndData{
			Winner: &winnerColor, WinnerName: &winnerName, Reason: "surrender",
		}),
	}, nil
}

// RequestRematch records conn's seat as agreeing to a rematch, per
// spec.md §4.2 "Rematch".
func (r *Room) RequestRematch(conn types.Sender) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seatByConnLocked(conn)
	if s == nil {
		return nil, ErrNotSeated
	}
	if r.status != types.StatusFinished {
		return nil, ErrNotFinished
	}

	r.rematchAgreed[s.name] = true
	if len(r.seats) == maxSeats && r.rematchAgreed[r.seats[0].name] && r.rematchAgreed[r.seats[1].name] {
		return r.startRematchLocked(), nil
	}

	opponent := r.otherSeatLocked(s)
	var recipients []types.Sender
	if opponent != nil && opponent.conn != nil {
		recipients = []types.Sender{opponent.conn}
	}
	return []Notification{
		build(recipients, protocol.TypeRematchNotice, protocol.RematchNoticeData{
			RequestingPlayer: string(s.name),
			Message:          string(s.name) + " wants a rematch",
			Timeout:          int(rematchAdvisoryWindow / time.Second),
		}),
	}, nil
}

// RespondRematch answers an outstanding rematch request. Accepting
// requires the opponent to have already requested one.
func (r *Room) RespondRematch(conn types.Sender, accepted bool) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.seatByConnLocked(conn)
	if s == nil {
		return nil, ErrNotSeated
	}

	if !accepted {
		r.rematchAgreed = make(map[types.PlayerName]bool)
		return []Notification{
			build(r.allRecipientsLocked(), protocol.TypeRematchDeclined, protocol.RematchDeclinedData{
				Message: string(s.name) + " declined the rematch", DeclinedBy: string(s.name),
			}),
		}, nil
	}

	opponent := r.otherSeatLocked(s)
	if opponent == nil || !r.rematchAgreed[opponent.name] {
		return nil, ErrNoRematchRequest
	}

	r.rematchAgreed[s.name] = true
	if len(r.seats) == maxSeats && r.rematchAgreed[r.seats[0].name] && r.rematchAgreed[r.seats[1].name] {
		return r.startRematchLocked(), nil
	}
	return nil, nil
}

func (r *Room) startRematchLocked() []Notification {
	r.board.Reset()
	for _, s := range r.seats {
		s.color = s.color.Opponent()
		s.ready = true
	}
	r.currentTurn = types.ColorBlack
	r.status = types.StatusPlaying
	r.rematchAgreed = make(map[types.PlayerName]bool)
	r.armTimerLocked()

	recipients := r.allRecipientsLocked()
	players := make([]protocol.PlayerColor, 0, len(r.seats))
	for _, s := range r.seats {
		players = append(players, protocol.PlayerColor{Name: string(s.name), Color: string(s.color)})
	}

	return []Notification{
		build(recipients, protocol.TypeBoardUpdate, protocol.BoardUpdateData{Board: r.boardSnapshotLocked()}),
		build(recipients, protocol.TypeGameStart, protocol.GameStartData{
			CurrentTurn: string(r.currentTurn), Players: players, Board: r.boardSnapshotLocked(),
		}),
	}
}

// ForfeitSweep expires disconnection records older than the reconnect
// grace period, used by the forfeit monitor's periodic sweep (spec.md
// §4.5).
func (r *Room) ForfeitSweep(now time.Time) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expiredNames []types.PlayerName
	for name, rec := range r.disconnected {
		if now.Sub(rec.at) > reconnectGrace {
			expiredNames = append(expiredNames, name)
		}
	}

	var notifications []Notification
	for _, name := range expiredNames {
		if r.status != types.StatusPlaying {
			delete(r.disconnected, name)
			continue
		}
		s := r.seatByNameLocked(name)
		if s == nil {
			delete(r.disconnected, name)
			continue
		}
		notifications = append(notifications, r.forfeitSeatLocked(s, "reconnect grace period expired")...)
	}
	return notifications
}

// Info returns an immutable summary for Registry.List().
type Info struct {
	ID             types.RoomID
	Status         types.RoomStatus
	PlayerCount    int
	SpectatorCount int
	Players        []string
	CurrentTurn    types.Color
	ReadyStatus    map[string]bool
	TurnStartSec   *int64
	TimeLimit      *int
}

func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make([]string, 0, len(r.seats))
	playerCount := 0
	for _, s := range r.seats {
		players = append(players, string(s.name))
		if s.conn != nil {
			playerCount++
		}
	}
	spectatorCount := 0
	for _, sp := range r.spectators {
		if sp.conn != nil {
			spectatorCount++
		}
	}

	info := Info{
		ID:             r.id,
		Status:         r.status,
		PlayerCount:    playerCount,
		SpectatorCount: spectatorCount,
		Players:        players,
		CurrentTurn:    r.currentTurn,
		ReadyStatus:    r.readyStatusLocked(),
	}
	if r.status == types.StatusPlaying && !r.paused && !r.turnDeadline.IsZero() {
		sec := r.turnDeadline.Add(-turnTimeLimit).Unix()
		limit := int(turnTimeLimit / time.Second)
		info.TurnStartSec = &sec
		info.TimeLimit = &limit
	}
	return info
}
