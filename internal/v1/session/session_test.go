package session

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heejunkim00/gomoku-game/internal/v1/config"
	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/ratelimit"
	"github.com/heejunkim00/gomoku-game/internal/v1/registry"
)

// testClient is the test-side end of a net.Pipe connection standing in
// for a remote TCP client. It writes request lines and reads response
// lines independently of the Dispatcher under test, which owns the
// other end.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	scanner *bufio.Scanner
}

func newTestClient(t *testing.T, reg *registry.Registry) *testClient {
	return newTestClientWithLimiter(t, reg, nil)
}

func newTestClientWithLimiter(t *testing.T, reg *registry.Registry, rl *ratelimit.Limiter) *testClient {
	serverSide, clientSide := net.Pipe()
	d := New(reg, NewConn(serverSide), rl)
	go d.Run(context.Background())

	tc := &testClient{t: t, conn: clientSide, scanner: bufio.NewScanner(clientSide)}
	t.Cleanup(func() { _ = clientSide.Close() })
	return tc
}

func (tc *testClient) send(msgType string, data any) {
	env, err := protocol.NewEnvelope(msgType, data, time.Now())
	require.NoError(tc.t, err)
	line, err := marshalLine(env)
	require.NoError(tc.t, err)
	require.NoError(tc.t, tc.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = tc.conn.Write(line)
	require.NoError(tc.t, err)
}

func (tc *testClient) recv() protocol.Envelope {
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.True(tc.t, tc.scanner.Scan(), "expected a line, scan error: %v", tc.scanner.Err())
	var env protocol.Envelope
	require.NoError(tc.t, json.Unmarshal(tc.scanner.Bytes(), &env))
	return env
}

func dataOf[T any](t *testing.T, env protocol.Envelope) T {
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestCreateRoomAndReadySequence(t *testing.T) {
	reg := registry.New(nil)

	black := newTestClient(t, reg)
	black.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	created := black.recv()
	require.Equal(t, protocol.TypeSuccess, created.Type)
	createdData := dataOf[protocol.SuccessData](t, created)
	require.Equal(t, "black", createdData.YourColor)
	require.Equal(t, protocol.TypeUserJoined, black.recv().Type) // alice's own seating notice

	white := newTestClient(t, reg)
	white.send(protocol.TypeJoinRoom, protocol.JoinRoomData{RoomID: createdData.RoomID, PlayerName: "bob"})
	joined := white.recv()
	require.Equal(t, protocol.TypeSuccess, joined.Type)
	joinedData := dataOf[protocol.SuccessData](t, joined)
	require.Equal(t, "white", joinedData.YourColor)

	// the USER_JOINED broadcast for bob reaches both seats, including bob's own.
	require.Equal(t, protocol.TypeUserJoined, white.recv().Type)
	require.Equal(t, protocol.TypeUserJoined, black.recv().Type)

	black.send(protocol.TypeReady, struct{}{})
	white.send(protocol.TypeReady, struct{}{})

	// Each READY is broadcast to both seats, so each client sees two
	// READY_STATUS messages before GAME_START.
	readyA := black.recv()
	require.Equal(t, protocol.TypeReadyStatus, readyA.Type)
	readyB := white.recv()
	require.Equal(t, protocol.TypeReadyStatus, readyB.Type)
	readyA2 := black.recv()
	require.Equal(t, protocol.TypeReadyStatus, readyA2.Type)
	readyB2 := white.recv()
	require.Equal(t, protocol.TypeReadyStatus, readyB2.Type)

	startA := black.recv()
	require.Equal(t, protocol.TypeGameStart, startA.Type)
	startB := white.recv()
	require.Equal(t, protocol.TypeGameStart, startB.Type)
}

func TestCreateRoomLeavesPriorRoomBeforeBindingNew(t *testing.T) {
	reg := registry.New(nil)

	alice := newTestClient(t, reg)
	alice.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	firstCreated := alice.recv()
	require.Equal(t, protocol.TypeSuccess, firstCreated.Type)
	firstRoomID := dataOf[protocol.SuccessData](t, firstCreated).RoomID
	require.Equal(t, protocol.TypeUserJoined, alice.recv().Type) // alice's own seating notice in the first room

	// alice creates a second room without ever sending LEAVE_ROOM for the first.
	alice.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	secondCreated := alice.recv()
	require.Equal(t, protocol.TypeSuccess, secondCreated.Type)
	secondRoomID := dataOf[protocol.SuccessData](t, secondCreated).RoomID
	require.NotEqual(t, firstRoomID, secondRoomID)
	require.Equal(t, protocol.TypeUserJoined, alice.recv().Type) // alice's own seating notice in the second room

	alice.send(protocol.TypeListRooms, struct{}{})
	listEnv := alice.recv()
	require.Equal(t, protocol.TypeRoomList, listEnv.Type)
	rooms := dataOf[protocol.RoomListData](t, listEnv).Rooms

	var firstRoom, secondRoom *protocol.RoomSummary
	for i := range rooms {
		switch rooms[i].RoomID {
		case firstRoomID:
			firstRoom = &rooms[i]
		case secondRoomID:
			secondRoom = &rooms[i]
		}
	}
	require.NotNil(t, firstRoom, "the vacated room should still be listed during its cleanup grace period")
	require.Equal(t, 0, firstRoom.PlayerCount, "alice must not remain seated in the room she left behind")
	require.NotNil(t, secondRoom)
	require.Equal(t, 1, secondRoom.PlayerCount)
	require.Equal(t, []string{"alice"}, secondRoom.Players)
}

func TestJoinRoomLeavesPriorRoomBeforeBindingNew(t *testing.T) {
	reg := registry.New(nil)

	host := newTestClient(t, reg)
	host.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	hosted := host.recv()
	hostedData := dataOf[protocol.SuccessData](t, hosted)
	host.recv() // alice's own seating notice

	bob := newTestClient(t, reg)
	bob.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "bob"})
	bobCreated := bob.recv()
	firstRoomID := dataOf[protocol.SuccessData](t, bobCreated).RoomID
	bob.recv() // bob's own seating notice in his own room

	// bob joins alice's room without ever sending LEAVE_ROOM for his own.
	bob.send(protocol.TypeJoinRoom, protocol.JoinRoomData{RoomID: hostedData.RoomID, PlayerName: "bob"})
	joined := bob.recv()
	require.Equal(t, protocol.TypeSuccess, joined.Type)
	require.Equal(t, hostedData.RoomID, dataOf[protocol.SuccessData](t, joined).RoomID)

	// the USER_JOINED broadcast for bob reaches both seats of alice's room.
	require.Equal(t, protocol.TypeUserJoined, bob.recv().Type)
	require.Equal(t, protocol.TypeUserJoined, host.recv().Type)

	bob.send(protocol.TypeListRooms, struct{}{})
	listEnv := bob.recv()
	rooms := dataOf[protocol.RoomListData](t, listEnv).Rooms

	var firstRoom, joinedRoom *protocol.RoomSummary
	for i := range rooms {
		switch rooms[i].RoomID {
		case firstRoomID:
			firstRoom = &rooms[i]
		case hostedData.RoomID:
			joinedRoom = &rooms[i]
		}
	}
	require.NotNil(t, firstRoom, "bob's vacated room should still be listed during its cleanup grace period")
	require.Equal(t, 0, firstRoom.PlayerCount, "bob must not remain seated in the room he left behind")
	require.NotNil(t, joinedRoom)
	require.Equal(t, 2, joinedRoom.PlayerCount)
	require.ElementsMatch(t, []string{"alice", "bob"}, joinedRoom.Players)
}

func TestPlaceStoneWinBroadcastsGameEnd(t *testing.T) {
	reg := registry.New(nil)

	black := newTestClient(t, reg)
	black.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	createdData := dataOf[protocol.SuccessData](t, black.recv())
	black.recv() // alice's own USER_JOINED notice

	white := newTestClient(t, reg)
	white.send(protocol.TypeJoinRoom, protocol.JoinRoomData{RoomID: createdData.RoomID, PlayerName: "bob"})
	white.recv() // SUCCESS
	white.recv() // bob's own USER_JOINED notice
	black.recv() // USER_JOINED for bob

	black.send(protocol.TypeReady, struct{}{})
	white.send(protocol.TypeReady, struct{}{})
	black.recv() // READY_STATUS
	white.recv() // READY_STATUS
	black.recv() // READY_STATUS
	white.recv() // READY_STATUS
	black.recv() // GAME_START
	white.recv() // GAME_START

	// Black plays a horizontal five at row 0, white plays elsewhere each turn.
	for i := 0; i < 5; i++ {
		black.send(protocol.TypePlaceStone, protocol.PlaceStoneData{X: i, Y: 0})
		black.recv() // BOARD_UPDATE (own broadcast echoed back)
		white.recv() // BOARD_UPDATE

		if i == 4 {
			blackEnd := black.recv()
			require.Equal(t, protocol.TypeGameEnd, blackEnd.Type)
			endData := dataOf[protocol.GameEndData](t, blackEnd)
			require.NotNil(t, endData.Winner)
			require.Equal(t, "black", *endData.Winner)
			break
		}

		turnA := black.recv()
		require.Equal(t, protocol.TypeTurnChange, turnA.Type)
		turnB := white.recv()
		require.Equal(t, protocol.TypeTurnChange, turnB.Type)

		white.send(protocol.TypePlaceStone, protocol.PlaceStoneData{X: i, Y: 5})
		white.recv()
		black.recv()
		turnA2 := black.recv()
		require.Equal(t, protocol.TypeTurnChange, turnA2.Type)
		turnB2 := white.recv()
		require.Equal(t, protocol.TypeTurnChange, turnB2.Type)
	}
}

func TestUnknownMessageTypeRepliesError(t *testing.T) {
	reg := registry.New(nil)
	c := newTestClient(t, reg)

	c.send("NOT_A_REAL_TYPE", struct{}{})
	env := c.recv()
	require.Equal(t, protocol.TypeError, env.Type)
}

func TestPlaceStoneBeforeJoiningRepliesError(t *testing.T) {
	reg := registry.New(nil)
	c := newTestClient(t, reg)

	c.send(protocol.TypePlaceStone, protocol.PlaceStoneData{X: 0, Y: 0})
	env := c.recv()
	require.Equal(t, protocol.TypeError, env.Type)
}

func TestListRoomsReturnsCreatedRoom(t *testing.T) {
	reg := registry.New(nil)

	creator := newTestClient(t, reg)
	creator.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	creator.recv()

	lister := newTestClient(t, reg)
	lister.send(protocol.TypeListRooms, struct{}{})
	env := lister.recv()
	require.Equal(t, protocol.TypeRoomList, env.Type)
	list := dataOf[protocol.RoomListData](t, env)
	require.Len(t, list.Rooms, 1)
}

func TestCreateRoomRepliesErrorWhenRateLimited(t *testing.T) {
	reg := registry.New(nil)
	rl, err := ratelimit.New(&config.Config{RateLimitWsIP: "5-M", RateLimitWsUser: "1-M"}, nil)
	require.NoError(t, err)

	c := newTestClientWithLimiter(t, reg, rl)

	c.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice"})
	ok := c.recv()
	require.Equal(t, protocol.TypeSuccess, ok.Type)
	c.recv() // alice's own USER_JOINED notice

	c.send(protocol.TypeCreateRoom, protocol.CreateRoomData{PlayerName: "alice2"})
	errEnv := c.recv()
	require.Equal(t, protocol.TypeError, errEnv.Type)
}
