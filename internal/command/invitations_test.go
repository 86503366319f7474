package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaychat/server/internal/event"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

func createTestInvitation(tt *testing.T, h *Handler, roomID t.RoomId, sender, recipient t.UserId) *t.Invitation {
	tt.Helper()
	inv := &t.Invitation{RoomId: roomID, SenderUserId: sender, RecipientUserId: recipient}
	membership := &t.Membership{RoomId: roomID, UserId: recipient, Role: t.MemberRoleMember, Status: t.MembershipPending}
	created, _, err := h.ops.CreateInvitationWithMembership(context.Background(), inv, membership)
	require.NoError(tt, err, "CreateInvitationWithMembership")
	return created
}

func TestHandleAcceptInvitation_ActivatesMembershipAndPublishes(tt *testing.T) {
	h, bus := newTestHandler()
	owner := createTestUser(tt, h, "owner")
	recipient := createTestUser(tt, h, "recipient")
	room := createTestRoom(tt, h, "general", owner.Id)
	inv := createTestInvitation(tt, h, room.Id, owner.Id, recipient.Id)

	sub := bus.Subscribe()
	defer sub.Close()

	resp := h.Dispatch(context.Background(), Actor{UserID: recipient.Id}, &wire.AcceptInvitation{RequestId: "a1", InvitationId: inv.Id})
	acceptResp, ok := resp.(*wire.AcceptInvitationResponse)
	require.True(tt, ok, "expected *wire.AcceptInvitationResponse, got %#v", resp)
	require.Equal(tt, t.InvitationAccepted, acceptResp.Invitation.Status)
	require.Equal(tt, t.MembershipActive, acceptResp.Membership.Status)

	outcome := sub.Recv()
	require.Equal(tt, event.KindUserJoinedRoom, outcome.Event.Kind)
}

func TestHandleAcceptInvitation_RejectsWrongRecipient(tt *testing.T) {
	h, _ := newTestHandler()
	owner := createTestUser(tt, h, "owner")
	recipient := createTestUser(tt, h, "recipient")
	someoneElse := createTestUser(tt, h, "someone-else")
	room := createTestRoom(tt, h, "general", owner.Id)
	inv := createTestInvitation(tt, h, room.Id, owner.Id, recipient.Id)

	resp := h.Dispatch(context.Background(), Actor{UserID: someoneElse.Id}, &wire.AcceptInvitation{RequestId: "a1", InvitationId: inv.Id})
	errResp, ok := resp.(*wire.Error)
	require.True(tt, ok, "expected *wire.Error, got %#v", resp)
	require.Equal(tt, wire.CodeForbidden, errResp.Code)
}

func TestHandleAcceptInvitation_UnknownInvitationNotFound(tt *testing.T) {
	h, _ := newTestHandler()
	user := createTestUser(tt, h, "lonely")

	resp := h.Dispatch(context.Background(), Actor{UserID: user.Id}, &wire.AcceptInvitation{RequestId: "a1", InvitationId: t.NewInvitationId()})
	errResp, ok := resp.(*wire.Error)
	require.True(tt, ok, "expected *wire.Error, got %#v", resp)
	require.Equal(tt, wire.CodeNotFound, errResp.Code)
}

func TestHandleDeclineInvitation_RemovesPendingMembership(tt *testing.T) {
	h, _ := newTestHandler()
	owner := createTestUser(tt, h, "owner")
	recipient := createTestUser(tt, h, "recipient")
	room := createTestRoom(tt, h, "general", owner.Id)
	inv := createTestInvitation(tt, h, room.Id, owner.Id, recipient.Id)

	resp := h.Dispatch(context.Background(), Actor{UserID: recipient.Id}, &wire.DeclineInvitation{RequestId: "d1", InvitationId: inv.Id})
	declineResp, ok := resp.(*wire.DeclineInvitationResponse)
	require.True(tt, ok, "expected *wire.DeclineInvitationResponse, got %#v", resp)
	require.Equal(tt, t.InvitationDeclined, declineResp.Invitation.Status)

	m, err := h.ops.Adapter().Memberships().Get(context.Background(), room.Id, recipient.Id)
	require.NoError(tt, err, "Memberships().Get")
	require.Nil(tt, m, "declining an invitation should remove the pending membership row")
}

func TestPublishInvitationReceived_ScopedToRecipient(tt *testing.T) {
	h, bus := newTestHandler()
	owner := createTestUser(tt, h, "owner")
	recipient := createTestUser(tt, h, "recipient")
	room := createTestRoom(tt, h, "general", owner.Id)
	inv := createTestInvitation(tt, h, room.Id, owner.Id, recipient.Id)

	sub := bus.Subscribe()
	defer sub.Close()

	h.PublishInvitationReceived(inv)

	outcome := sub.Recv()
	require.Equal(tt, event.KindInvitationReceived, outcome.Event.Kind)
	require.Equal(tt, recipient.Id, outcome.Event.InvitationRecipient)
}
