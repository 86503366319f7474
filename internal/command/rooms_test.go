package command

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/auth"
	"github.com/relaychat/server/internal/event"
	"github.com/relaychat/server/internal/store/memstore"
	"github.com/relaychat/server/internal/store/txops"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

func newTestHandler() (*Handler, *event.Bus) {
	store := memstore.New()
	bus := event.NewBus(16)
	ops := txops.New(store)
	verifier := auth.NewVerifier([]byte("test-key"))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(ops, bus, verifier, log), bus
}

func createTestUser(tt *testing.T, h *Handler, username string) *t.User {
	tt.Helper()
	user := &t.User{Username: username, PasswordHash: "x"}
	session := &t.Session{Protocol: t.ProtocolTCP}
	created, _, err := h.ops.UserRegistration(context.Background(), user, session)
	require.NoError(tt, err, "UserRegistration(%s)", username)
	return created
}

func createTestRoom(tt *testing.T, h *Handler, name string, owner t.UserId) *t.Room {
	tt.Helper()
	room := &t.Room{Name: name, Type: t.RoomChannel, Privacy: t.PrivacyPublic, CreatedBy: owner}
	membership := &t.Membership{UserId: owner}
	created, _, err := h.ops.CreateRoomWithMembership(context.Background(), room, membership)
	require.NoError(tt, err, "CreateRoomWithMembership(%s)", name)
	return created
}

func TestHandleJoinRoom_PublishesUserJoinedRoom(tt *testing.T) {
	h, bus := newTestHandler()
	owner := createTestUser(tt, h, "owner")
	joiner := createTestUser(tt, h, "joiner")
	room := createTestRoom(tt, h, "general", owner.Id)

	sub := bus.Subscribe()
	defer sub.Close()

	resp := h.Dispatch(context.Background(), Actor{UserID: joiner.Id}, &wire.JoinRoom{RequestId: "r1", RoomId: room.Id})
	joinResp, ok := resp.(*wire.JoinRoomResponse)
	require.True(tt, ok, "expected *wire.JoinRoomResponse, got %#v", resp)
	require.Equal(tt, room.Id, joinResp.Room.Id)

	outcome := sub.Recv()
	require.Equal(tt, event.KindUserJoinedRoom, outcome.Event.Kind)
	require.Equal(tt, joiner.Id, outcome.Event.SubjectUserID)
}

func TestHandleJoinRoom_RejectsPrivateRoomWithoutInvitation(tt *testing.T) {
	h, _ := newTestHandler()
	owner := createTestUser(tt, h, "owner")
	joiner := createTestUser(tt, h, "joiner")
	room := &t.Room{Name: "secret", Type: t.RoomGroup, Privacy: t.PrivacyPrivate, CreatedBy: owner.Id}
	created, _, err := h.ops.CreateRoomWithMembership(context.Background(), room, &t.Membership{UserId: owner.Id})
	require.NoError(tt, err)

	resp := h.Dispatch(context.Background(), Actor{UserID: joiner.Id}, &wire.JoinRoom{RequestId: "r1", RoomId: created.Id})
	errResp, ok := resp.(*wire.Error)
	require.True(tt, ok, "expected *wire.Error, got %#v", resp)
	require.Equal(tt, wire.CodeForbidden, errResp.Code)
}

func TestHandleLeaveRoom_DeactivatesRoomWhenLastMemberLeaves(tt *testing.T) {
	h, bus := newTestHandler()
	owner := createTestUser(tt, h, "solo-owner")
	room := createTestRoom(tt, h, "solo-room", owner.Id)

	sub := bus.Subscribe()
	defer sub.Close()

	resp := h.Dispatch(context.Background(), Actor{UserID: owner.Id}, &wire.LeaveRoom{RequestId: "r1", RoomId: room.Id})
	_, ok := resp.(*wire.LeaveRoomResponse)
	require.True(tt, ok, "expected *wire.LeaveRoomResponse, got %#v", resp)

	outcome := sub.Recv()
	require.Equal(tt, event.KindRoomDeleted, outcome.Event.Kind, "expected KindRoomDeleted when the last member leaves")

	got, err := h.ops.Adapter().Rooms().Get(context.Background(), room.Id)
	require.NoError(tt, err)
	require.False(tt, got.IsActive, "room should be soft-deleted after its last member leaves")
}

func TestPublishPresence_ScopedToSharedRoomsOnly(tt *testing.T) {
	h, bus := newTestHandler()
	alice := createTestUser(tt, h, "alice")
	bob := createTestUser(tt, h, "bob")
	carol := createTestUser(tt, h, "carol")

	roomWithBob := createTestRoom(tt, h, "with-bob", alice.Id)
	h.Dispatch(context.Background(), Actor{UserID: bob.Id}, &wire.JoinRoom{RequestId: "j1", RoomId: roomWithBob.Id})

	// carol shares no room with alice
	createTestRoom(tt, h, "carols-own", carol.Id)

	sub := bus.Subscribe()
	defer sub.Close()

	h.PublishUserOnline(context.Background(), alice.Id)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out := sub.RecvContext(ctx)
	require.False(tt, out.Closed, "timed out waiting for UserOnline event")
	require.Equal(tt, event.KindUserOnline, out.Event.Kind)
	require.Equal(tt, alice.Id, out.Event.SubjectUserID)
	require.NotNil(tt, out.Event.RoomID, "presence event should be scoped to the shared room")
	require.Equal(tt, roomWithBob.Id, *out.Event.RoomID)

	// alice has exactly one active room membership (roomWithBob), so exactly
	// one presence event is published; confirm there is no second one for
	// carol's unrelated room leaking through.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	out2 := sub.RecvContext(ctx2)
	require.False(tt, !out2.Closed && out2.Event.Kind == event.KindUserOnline, "unexpected second UserOnline event")
}
