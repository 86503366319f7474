package command

import (
	"context"

	"github.com/relaychat/server/internal/event"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

func (h *Handler) handleAcceptInvitation(ctx context.Context, actor Actor, m *wire.AcceptInvitation) any {
	inv, err := h.ops.Adapter().Invitations().Get(ctx, m.InvitationId)
	if err != nil || inv == nil {
		return wire.NewError(m.RequestId, wire.CodeNotFound, "invitation not found")
	}
	if inv.RecipientUserId != actor.UserID {
		return wire.NewError(m.RequestId, wire.CodeForbidden, "invitation is not addressed to this user")
	}

	membership := &t.Membership{RoomId: inv.RoomId, UserId: actor.UserID}
	updatedInv, updatedMembership, err := h.ops.UpdateInvitationAndMembership(ctx, m.InvitationId, t.InvitationAccepted, membership)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInvalidState, "invitation cannot be accepted")
	}

	h.bus.Publish(event.Event{Kind: event.KindUserJoinedRoom, RoomID: &inv.RoomId, SubjectUserID: actor.UserID, EmittedAt: nowFunc().UnixNano()})

	return &wire.AcceptInvitationResponse{
		Type: wire.TagAcceptInvitationResponse, RequestId: m.RequestId,
		Invitation: wire.NewInvitationView(updatedInv), Membership: wire.NewMembershipView(updatedMembership),
	}
}

func (h *Handler) handleDeclineInvitation(ctx context.Context, actor Actor, m *wire.DeclineInvitation) any {
	inv, err := h.ops.Adapter().Invitations().Get(ctx, m.InvitationId)
	if err != nil || inv == nil {
		return wire.NewError(m.RequestId, wire.CodeNotFound, "invitation not found")
	}
	if inv.RecipientUserId != actor.UserID {
		return wire.NewError(m.RequestId, wire.CodeForbidden, "invitation is not addressed to this user")
	}

	membership := &t.Membership{RoomId: inv.RoomId, UserId: actor.UserID}
	updatedInv, _, err := h.ops.UpdateInvitationAndMembership(ctx, m.InvitationId, t.InvitationDeclined, membership)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInvalidState, "invitation cannot be declined")
	}

	return &wire.DeclineInvitationResponse{Type: wire.TagDeclineInvitationResponse, RequestId: m.RequestId, Invitation: wire.NewInvitationView(updatedInv)}
}

// PublishInvitationReceived is called by the room-invite REST collaborator
// (out of core scope) or by an admin command path once invitation creation
// succeeds; kept here so both surfaces emit identically.
func (h *Handler) PublishInvitationReceived(inv *t.Invitation) {
	h.bus.Publish(event.Event{Kind: event.KindInvitationReceived, InvitationRecipient: inv.RecipientUserId, InvitationID: &inv.Id, EmittedAt: nowFunc().UnixNano()})
}
