package command

import (
	"context"

	"github.com/relaychat/server/internal/event"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

func messageView(m *t.Message) wire.MessageView {
	v := wire.MessageView{Id: m.Id, RoomId: m.RoomId, DMPair: m.DMPair, Author: m.Author, Content: m.Content, CreatedAt: m.CreatedAt.Unix()}
	if m.EditedAt != nil {
		edited := m.EditedAt.Unix()
		v.EditedAt = &edited
	}
	return v
}

func (h *Handler) handleSendMessage(ctx context.Context, actor Actor, m *wire.SendMessage) any {
	if m.Target.RoomId == nil && m.Target.DMUserId == nil {
		return wire.NewError(m.RequestId, wire.CodeInvalidMessage, "target must name a room or a dm recipient")
	}

	msg := &t.Message{Id: t.NewMessageId(), Author: actor.UserID, Content: m.Content, CreatedAt: nowFunc()}
	var dmPair *string
	if m.Target.RoomId != nil {
		membership, err := h.ops.Adapter().Memberships().Get(ctx, *m.Target.RoomId, actor.UserID)
		if err != nil || membership == nil || membership.Status != t.MembershipActive {
			return wire.NewError(m.RequestId, wire.CodeForbidden, "not a member of this room")
		}
		msg.RoomId = m.Target.RoomId
	} else {
		pair := dmPairKey(actor.UserID, *m.Target.DMUserId)
		dmPair = &pair
		msg.DMPair = dmPair
	}

	tx, err := h.ops.Adapter().Begin(ctx)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "storage unavailable")
	}
	if err := h.ops.Adapter().Messages().Create(ctx, tx, msg); err != nil {
		_ = h.ops.Adapter().Rollback(ctx, tx)
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to store message")
	}
	if err := h.ops.Adapter().Commit(ctx, tx); err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to commit message")
	}

	h.bus.Publish(event.Event{
		Kind: event.KindMessageReceived, RoomID: msg.RoomId, DMPair: dmPair,
		MessageID: &msg.Id, Author: msg.Author, Content: msg.Content, EmittedAt: nowFunc().UnixNano(),
	})

	return &wire.SendMessageResponse{Type: wire.TagSendMessageResponse, RequestId: m.RequestId, Message: messageView(msg)}
}

func (h *Handler) handleEditMessage(ctx context.Context, actor Actor, m *wire.EditMessage) any {
	msg, err := h.ops.Adapter().Messages().Get(ctx, m.MessageId)
	if err != nil || msg == nil {
		return wire.NewError(m.RequestId, wire.CodeNotFound, "message not found")
	}
	if msg.Author != actor.UserID {
		return wire.NewError(m.RequestId, wire.CodeForbidden, "cannot edit another user's message")
	}

	tx, err := h.ops.Adapter().Begin(ctx)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "storage unavailable")
	}
	now := nowFunc()
	if err := h.ops.Adapter().Messages().Update(ctx, tx, m.MessageId, map[string]any{"content": m.Content, "edited_at": now}); err != nil {
		_ = h.ops.Adapter().Rollback(ctx, tx)
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to edit message")
	}
	if err := h.ops.Adapter().Commit(ctx, tx); err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to commit edit")
	}
	msg.Content, msg.EditedAt = m.Content, &now

	h.bus.Publish(event.Event{
		Kind: event.KindMessageEdited, RoomID: msg.RoomId, DMPair: msg.DMPair,
		MessageID: &msg.Id, Author: msg.Author, Content: msg.Content, EmittedAt: now.UnixNano(),
	})

	return &wire.EditMessageResponse{Type: wire.TagEditMessageResponse, RequestId: m.RequestId, Message: messageView(msg)}
}

func (h *Handler) handleDeleteMessage(ctx context.Context, actor Actor, m *wire.DeleteMessage) any {
	msg, err := h.ops.Adapter().Messages().Get(ctx, m.MessageId)
	if err != nil || msg == nil {
		return wire.NewError(m.RequestId, wire.CodeNotFound, "message not found")
	}
	if msg.Author != actor.UserID {
		return wire.NewError(m.RequestId, wire.CodeForbidden, "cannot delete another user's message")
	}

	tx, err := h.ops.Adapter().Begin(ctx)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "storage unavailable")
	}
	if err := h.ops.Adapter().Messages().SoftDelete(ctx, tx, m.MessageId); err != nil {
		_ = h.ops.Adapter().Rollback(ctx, tx)
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to delete message")
	}
	if err := h.ops.Adapter().Commit(ctx, tx); err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to commit delete")
	}

	h.bus.Publish(event.Event{Kind: event.KindMessageDeleted, RoomID: msg.RoomId, DMPair: msg.DMPair, MessageID: &msg.Id, Author: msg.Author, EmittedAt: nowFunc().UnixNano()})

	return &wire.DeleteMessageResponse{Type: wire.TagDeleteMessageResponse, RequestId: m.RequestId, MessageId: m.MessageId}
}

func (h *Handler) handleTyping(actor Actor, m *wire.Typing) {
	h.bus.Publish(event.Event{
		Kind: event.KindUserTyping, SubjectUserID: actor.UserID,
		RoomID: m.Target.RoomId, DMPair: dmPairFromTarget(actor.UserID, m.Target), EmittedAt: nowFunc().UnixNano(),
	})
}

func dmPairFromTarget(self t.UserId, target wire.Target) *string {
	if target.DMUserId == nil {
		return nil
	}
	pair := dmPairKey(self, *target.DMUserId)
	return &pair
}

// dmPairKey produces a lexically sorted "uidA:uidB" pair key so both sides
// of a direct message agree on the same key regardless of who sent it.
func dmPairKey(a, b t.UserId) string {
	sa, sb := a.String(), b.String()
	if sa > sb {
		sa, sb = sb, sa
	}
	return sa + ":" + sb
}
