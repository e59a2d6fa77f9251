package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/heejunkim00/gomoku-game/internal/v1/logging"
	"github.com/heejunkim00/gomoku-game/internal/v1/metrics"
	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/ratelimit"
	"github.com/heejunkim00/gomoku-game/internal/v1/registry"
	"github.com/heejunkim00/gomoku-game/internal/v1/room"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

// tracer emits one span per dispatched protocol message. With no tracer
// provider configured (OTEL_COLLECTOR_ADDR unset) this resolves to
// OpenTelemetry's no-op implementation, so tracing is zero-cost when
// disabled rather than gated behind an extra flag at every call site.
var tracer = otel.Tracer("github.com/heejunkim00/gomoku-game/internal/v1/session")

// Dispatcher owns one connection's protocol state machine: which room
// (if any) it currently belongs to and in what role. It translates
// incoming envelopes into Registry/Room calls and turns their results
// back into outgoing envelopes, grounded on the teacher's
// session/client.go readPump dispatch loop generalized from the
// video-conference room router to the Gomoku message set of spec.md §6.
type Dispatcher struct {
	reg  *registry.Registry
	conn *Conn
	rl   *ratelimit.Limiter

	room *room.Room
	role types.Role
	name types.PlayerName
}

// New constructs a Dispatcher for a freshly accepted connection. rl may
// be nil, in which case CREATE_ROOM/PLACE_STONE/CHAT_MESSAGE traffic is
// never throttled.
func New(reg *registry.Registry, conn *Conn, rl *ratelimit.Limiter) *Dispatcher {
	return &Dispatcher{reg: reg, conn: conn, rl: rl}
}

// Run drives the connection until its socket closes or the context is
// canceled. It blocks the calling goroutine; callers should invoke it
// from its own per-connection goroutine, mirroring the teacher's
// per-client readPump goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx = logging.WithConn(ctx, d.conn.ConnID())

	go d.conn.writePump()
	metrics.IncConnection()
	defer metrics.DecConnection()
	defer d.handleClose(ctx)

	lr := protocol.NewLineReader(d.conn.conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := lr.Next(func(raw []byte, parseErr error) {
			logging.Warn(ctx, "session: skipping malformed line", zap.Error(parseErr), zap.ByteString("raw", raw))
		})
		if err != nil {
			return
		}
		d.dispatch(ctx, env)
	}
}

// handleClose runs once when the read loop exits for any reason: it
// tells the current room (if any) the connection is gone and stops the
// write pump so its goroutine can exit.
func (d *Dispatcher) handleClose(ctx context.Context) {
	if d.room != nil {
		notifications := d.room.HandleDisconnect(d.conn)
		room.Send(notifications)
		d.observeGameEnd(notifications)
		logging.Info(ctx, "session: connection closed", zap.String("room_id", string(d.room.ID())))
		d.reg.Purge()
	}
	d.conn.stopWritePump()
}

func (d *Dispatcher) dispatch(ctx context.Context, env protocol.Envelope) {
	ctx, span := tracer.Start(ctx, "session.dispatch", trace.WithAttributes(attribute.String("message.type", env.Type)))
	defer span.End()

	start := time.Now()
	status := "ok"
	defer func() {
		metrics.MessagesTotal.WithLabelValues(env.Type, status).Inc()
		metrics.MessageProcessingDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
	}()

	var err error
	switch env.Type {
	case protocol.TypeCreateRoom:
		if !d.rl.Allow(ctx, ratelimit.ScopeCreateRoom, d.conn.ConnID()) {
			err = errRateLimited
			break
		}
		err = d.handleCreateRoom(env)
	case protocol.TypeJoinRoom:
		err = d.handleJoinRoom(env)
	case protocol.TypeSpectateRoom:
		err = d.handleSpectateRoom(env)
	case protocol.TypeListRooms:
		err = d.handleListRooms()
	case protocol.TypeLeaveRoom:
		err = d.handleLeaveRoom()
	case protocol.TypeReady:
		err = d.inRoom(func() ([]room.Notification, error) { return d.room.SetReady(d.conn) })
	case protocol.TypePlaceStone:
		if !d.rl.Allow(ctx, ratelimit.ScopePlaceStone, d.conn.ConnID()) {
			err = errRateLimited
			break
		}
		err = d.handlePlaceStone(env)
	case protocol.TypeChatMessage:
		if !d.rl.Allow(ctx, ratelimit.ScopeChat, d.conn.ConnID()) {
			err = errRateLimited
			break
		}
		err = d.handleChat(env, false)
	case protocol.TypeSpectatorChat:
		if !d.rl.Allow(ctx, ratelimit.ScopeChat, d.conn.ConnID()) {
			err = errRateLimited
			break
		}
		err = d.handleChat(env, true)
	case protocol.TypeSurrender:
		err = d.inRoom(func() ([]room.Notification, error) { return d.room.Surrender(d.conn) })
	case protocol.TypeRematch:
		err = d.inRoom(func() ([]room.Notification, error) {
			notifications, err := d.room.RequestRematch(d.conn)
			if err == nil {
				d.observeRematchStart(notifications)
			}
			return notifications, err
		})
	case protocol.TypeRematchResponse:
		err = d.handleRematchResponse(env)
	case protocol.TypeReconnect:
		err = d.handleReconnect(env)
	default:
		err = errUnknownType
	}

	if err != nil {
		status = "error"
		span.RecordError(err)
		d.replyError(err)
	}
}

var errUnknownType = errors.New("unknown message type")
var errRateLimited = errors.New("rate limited")

// inRoom is a helper for the several operations that need only "call
// this Room method with the current connection" and have no extra
// success payload beyond the broadcast notifications.
func (d *Dispatcher) inRoom(fn func() ([]room.Notification, error)) error {
	if d.room == nil {
		return errNotInRoom
	}
	notifications, err := fn()
	if err != nil {
		return err
	}
	room.Send(notifications)
	d.observeGameEnd(notifications)
	return nil
}

var errNotInRoom = errors.New("not currently in a room")

// leavePriorRoom removes the connection from whatever room it currently
// belongs to, if any, so a connection is never referenced by more than
// one Room at a time — the precondition Registry.FindByConnection relies
// on. Every handler that seats or spectates a connection in a (possibly
// different) room must call this first.
func (d *Dispatcher) leavePriorRoom() {
	if d.room == nil {
		return
	}
	notifications := d.room.Leave(d.conn)
	room.Send(notifications)
	d.room, d.role, d.name = nil, "", ""
	d.reg.Purge()
}

func (d *Dispatcher) handleCreateRoom(env protocol.Envelope) error {
	var data protocol.CreateRoomData
	if err := unmarshal(env, &data); err != nil {
		return err
	}
	d.leavePriorRoom()

	r := d.reg.Create()
	name := types.PlayerName(data.PlayerName)
	snap, notifications, err := r.AddPlayer(name, d.conn)
	if err != nil {
		return err
	}

	d.room, d.role, d.name = r, types.RolePlayer, name
	d.reply(protocol.TypeSuccess, protocol.SuccessData{
		Message:     "room created",
		RoomID:      string(r.ID()),
		YourColor:   string(snap.Color),
		Role:        string(types.RolePlayer),
		Board:       snap.Board,
		CurrentTurn: string(snap.CurrentTurn),
		Status:      string(snap.Status),
	})
	room.Send(notifications)
	return nil
}

func (d *Dispatcher) handleJoinRoom(env protocol.Envelope) error {
	var data protocol.JoinRoomData
	if err := unmarshal(env, &data); err != nil {
		return err
	}

	r, ok := d.reg.Get(types.RoomID(data.RoomID))
	if !ok {
		return errRoomNotFound
	}
	d.leavePriorRoom()

	name := types.PlayerName(data.PlayerName)
	snap, notifications, err := r.AddPlayer(name, d.conn)
	if err != nil {
		return err
	}

	d.room, d.role, d.name = r, types.RolePlayer, name
	d.reply(protocol.TypeSuccess, protocol.SuccessData{
		Message:     "joined room",
		RoomID:      string(r.ID()),
		YourColor:   string(snap.Color),
		Role:        string(types.RolePlayer),
		Board:       snap.Board,
		CurrentTurn: string(snap.CurrentTurn),
		Status:      string(snap.Status),
	})
	room.Send(notifications)
	return nil
}

var errRoomNotFound = errors.New("room not found")

func (d *Dispatcher) handleSpectateRoom(env protocol.Envelope) error {
	var data protocol.SpectateRoomData
	if err := unmarshal(env, &data); err != nil {
		return err
	}

	r, ok := d.reg.Get(types.RoomID(data.RoomID))
	if !ok {
		return errRoomNotFound
	}
	d.leavePriorRoom()

	name := types.PlayerName(data.SpectatorName)
	snap, notifications := r.AddSpectator(name, d.conn)

	d.room, d.role, d.name = r, types.RoleSpectator, name
	d.reply(protocol.TypeSuccess, protocol.SuccessData{
		Message:     "spectating room",
		RoomID:      string(r.ID()),
		Role:        string(types.RoleSpectator),
		Board:       snap.Board,
		CurrentTurn: string(snap.CurrentTurn),
		Status:      string(snap.Status),
	})
	room.Send(notifications)
	return nil
}

func (d *Dispatcher) handleListRooms() error {
	summaries := make([]protocol.RoomSummary, 0, 8)
	for _, info := range d.reg.List() {
		summaries = append(summaries, protocol.RoomSummary{
			RoomID:         string(info.ID),
			Status:         string(info.Status),
			PlayerCount:    info.PlayerCount,
			SpectatorCount: info.SpectatorCount,
			Players:        info.Players,
			CurrentTurn:    string(info.CurrentTurn),
			ReadyStatus:    info.ReadyStatus,
			TurnStartTime:  info.TurnStartSec,
			TimeLimit:      info.TimeLimit,
		})
	}
	d.reply(protocol.TypeRoomList, protocol.RoomListData{Rooms: summaries})
	return nil
}

func (d *Dispatcher) handleLeaveRoom() error {
	if d.room == nil {
		return errNotInRoom
	}
	d.leavePriorRoom()
	d.reply(protocol.TypeSuccess, protocol.SuccessData{Message: "left room"})
	return nil
}

func (d *Dispatcher) handlePlaceStone(env protocol.Envelope) error {
	if d.room == nil {
		return errNotInRoom
	}
	var data protocol.PlaceStoneData
	if err := unmarshal(env, &data); err != nil {
		return err
	}
	notifications, err := d.room.PlaceStone(d.conn, data.X, data.Y)
	if err != nil {
		return err
	}
	room.Send(notifications)
	d.observeGameEnd(notifications)
	return nil
}

func (d *Dispatcher) handleChat(env protocol.Envelope, spectator bool) error {
	if d.room == nil {
		return errNotInRoom
	}
	var data protocol.ChatMessageData
	if err := unmarshal(env, &data); err != nil {
		return err
	}

	var notifications []room.Notification
	var err error
	if spectator {
		notifications, err = d.room.ChatSpectator(d.conn, data.Message)
	} else {
		notifications, err = d.room.ChatPlayer(d.conn, data.Message)
	}
	if err != nil {
		return err
	}
	room.Send(notifications)
	return nil
}

func (d *Dispatcher) handleRematchResponse(env protocol.Envelope) error {
	if d.room == nil {
		return errNotInRoom
	}
	var data protocol.RematchResponseData
	if err := unmarshal(env, &data); err != nil {
		return err
	}
	notifications, err := d.room.RespondRematch(d.conn, data.Accepted)
	if err != nil {
		return err
	}
	room.Send(notifications)
	if data.Accepted {
		d.observeRematchStart(notifications)
	}
	return nil
}

func (d *Dispatcher) handleReconnect(env protocol.Envelope) error {
	var data protocol.ReconnectData
	if err := unmarshal(env, &data); err != nil {
		return err
	}
	name := types.PlayerName(data.PlayerName)

	r, ok := d.reg.FindRoomForReconnect(name)
	if !ok {
		return room.ErrNoReconnectSession
	}

	snap, notifications, err := r.Reconnect(name, d.conn)
	if err != nil {
		return err
	}

	d.room, d.role, d.name = r, types.RolePlayer, name
	remaining := snap.RemainingTime
	d.reply(protocol.TypeSuccess, protocol.SuccessData{
		Message:       "reconnected",
		RoomID:        string(r.ID()),
		YourColor:     string(snap.Color),
		Role:          string(types.RolePlayer),
		Board:         snap.Board,
		CurrentTurn:   string(snap.CurrentTurn),
		GameStatus:    string(snap.Status),
		RemainingTime: &remaining,
	})
	room.Send(notifications)
	return nil
}

// observeGameEnd inspects a batch of deferred notifications for a
// GAME_END envelope and records the outcome in metrics. Scanning
// results rather than threading a metrics call through methods.go keeps
// the Room package free of observability concerns.
func (d *Dispatcher) observeGameEnd(notifications []room.Notification) {
	for _, n := range notifications {
		switch n.Envelope.Type {
		case protocol.TypeGameEnd:
			var data protocol.GameEndData
			if json.Unmarshal(n.Envelope.Data, &data) == nil {
				reason := data.Reason
				if reason == "" {
					reason = "five_in_a_row"
				}
				metrics.GamesFinished.WithLabelValues(reason).Inc()
			}
		case protocol.TypeBoardUpdate:
			var data protocol.BoardUpdateData
			if json.Unmarshal(n.Envelope.Data, &data) == nil && data.Color != "" {
				metrics.StonesPlaced.WithLabelValues(data.Color).Inc()
			}
		}
	}
}

func (d *Dispatcher) observeRematchStart(notifications []room.Notification) {
	for _, n := range notifications {
		if n.Envelope.Type == protocol.TypeGameStart {
			metrics.RematchesStarted.Inc()
			return
		}
	}
}

func (d *Dispatcher) reply(msgType string, data any) {
	env, err := protocol.NewEnvelope(msgType, data, time.Now())
	if err != nil {
		logging.Error(nil, "session: failed to build reply envelope", zap.Error(err))
		return
	}
	d.conn.SendJSON(env)
}

func (d *Dispatcher) replyError(err error) {
	var re *room.Error
	msg := err.Error()
	if errors.As(err, &re) {
		msg = re.Message()
	}
	d.reply(protocol.TypeError, protocol.ErrorData{Message: msg})
}
