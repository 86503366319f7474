package command

import (
	"context"

	"github.com/relaychat/server/internal/event"
	"github.com/relaychat/server/internal/store/adapter"
	"github.com/relaychat/server/internal/store/txops"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

func (h *Handler) handleJoinRoom(ctx context.Context, actor Actor, m *wire.JoinRoom) any {
	room, err := h.ops.Adapter().Rooms().Get(ctx, m.RoomId)
	if err != nil || room == nil || !room.IsActive {
		return wire.NewError(m.RequestId, wire.CodeNotFound, "room not found")
	}
	if room.Privacy == t.PrivacyPrivate {
		return wire.NewError(m.RequestId, wire.CodeForbidden, "room is private; an invitation is required")
	}

	err = h.ops.BatchRoomOperations(ctx, []adapter.RoomOp{
		{Kind: adapter.OpAddMember, RoomID: m.RoomId, UserID: actor.UserID, Role: t.MemberRoleMember},
	})
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeAlreadyExists, "already a member")
	}

	h.bus.Publish(event.Event{Kind: event.KindUserJoinedRoom, RoomID: &m.RoomId, SubjectUserID: actor.UserID, EmittedAt: nowFunc().UnixNano()})

	membership := &t.Membership{RoomId: m.RoomId, UserId: actor.UserID, Role: t.MemberRoleMember, Status: t.MembershipActive}
	return &wire.JoinRoomResponse{
		Type: wire.TagJoinRoomResponse, RequestId: m.RequestId,
		Room: wire.NewRoomView(room), Membership: wire.NewMembershipView(membership),
	}
}

func (h *Handler) handleLeaveRoom(ctx context.Context, actor Actor, m *wire.LeaveRoom) any {
	deactivated, err := h.ops.LeaveRoom(ctx, m.RoomId, actor.UserID)
	if err != nil {
		if err == txops.ErrOwnerMustTransferFirst {
			return wire.NewError(m.RequestId, wire.CodeForbidden, "owner must transfer ownership before leaving")
		}
		return wire.NewError(m.RequestId, wire.CodeNotFound, "not a member of this room")
	}

	if deactivated {
		h.bus.Publish(event.Event{Kind: event.KindRoomDeleted, RoomID: &m.RoomId, EmittedAt: nowFunc().UnixNano()})
	} else {
		h.bus.Publish(event.Event{Kind: event.KindUserLeftRoom, RoomID: &m.RoomId, SubjectUserID: actor.UserID, EmittedAt: nowFunc().UnixNano()})
	}

	return &wire.LeaveRoomResponse{Type: wire.TagLeaveRoomResponse, RequestId: m.RequestId}
}

// handleLogout deactivates the session row; it does not itself publish
// UserOffline, since the connection state machine's shutdown path (spec
// section 4.H) emits that once regardless of which terminal condition
// triggered it, and Logout is one such condition.
func (h *Handler) handleLogout(ctx context.Context, actor Actor, m *wire.Logout) any {
	tx, err := h.ops.Adapter().Begin(ctx)
	if err == nil {
		if derr := h.ops.Adapter().Sessions().Deactivate(ctx, tx, actor.SessionID); derr != nil {
			_ = h.ops.Adapter().Rollback(ctx, tx)
		} else {
			_ = h.ops.Adapter().Commit(ctx, tx)
		}
	}
	return &wire.LogoutResponse{Type: wire.TagLogoutResponse, RequestId: m.RequestId, Success: true}
}
