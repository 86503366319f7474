package session

import (
	"context"
	"log/slog"

	"github.com/relaychat/server/internal/event"
	"github.com/relaychat/server/internal/store/adapter"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

// listener is the per-connection event listener sub-task of spec section
// 4.H: it consumes the broadcast bus, re-fetches the viewer's current room
// set per event, applies the event.ShouldReceive filter, and pushes
// surviving events onto the connection's outbound channel.
type listener struct {
	sub    *event.Subscription
	store  adapter.Adapter
	userID t.UserId
	wr     *writer
	log    *slog.Logger
}

func newListener(sub *event.Subscription, store adapter.Adapter, userID t.UserId, wr *writer, log *slog.Logger) *listener {
	return &listener{sub: sub, store: store, userID: userID, wr: wr, log: log}
}

// run loops until the bus closes or ctx is cancelled by the connection's
// shutdown path. Lagged outcomes are logged and never disconnect the
// connection, per the failure semantics table of spec section 4.
func (l *listener) run(ctx context.Context) {
	defer l.sub.Close()
	for {
		outcome := l.sub.RecvContext(ctx)
		if ctx.Err() != nil {
			return
		}

		switch {
		case outcome.Closed:
			return
		case outcome.Lagged > 0:
			l.log.Warn("session listener: dropped events before catching up", "dropped", outcome.Lagged, "user", l.userID.String())
			continue
		default:
			l.deliver(ctx, outcome.Event)
		}
	}
}

func (l *listener) deliver(ctx context.Context, e event.Event) {
	viewer, err := l.viewerFor(ctx)
	if err != nil {
		l.log.Warn("session listener: failed to refresh room set", "error", err, "user", l.userID.String())
		return
	}
	if !event.ShouldReceive(e, viewer) {
		return
	}

	push := l.toPush(ctx, e)
	if push == nil {
		return
	}

	select {
	case l.wr.out <- push:
	case <-ctx.Done():
	}
}

func (l *listener) viewerFor(ctx context.Context) (event.Viewer, error) {
	memberships, err := l.store.Memberships().ListByUser(ctx, l.userID)
	if err != nil {
		return event.Viewer{}, err
	}
	rooms := make(map[t.RoomId]struct{}, len(memberships))
	for _, m := range memberships {
		if m.Status == t.MembershipActive {
			rooms[m.RoomId] = struct{}{}
		}
	}
	return event.Viewer{UserID: l.userID, RoomIDs: rooms}, nil
}

// toPush converts a domain event into its server-push wire variant. For
// MessageReceived it performs the one extra author-username lookup spec
// section 4.H calls for, falling back to the stringified UserId if the
// author has since been deleted.
func (l *listener) toPush(ctx context.Context, e event.Event) any {
	switch e.Kind {
	case event.KindMessageReceived:
		username := e.Author.String()
		if u, err := l.store.Users().Get(ctx, e.Author); err == nil && u != nil {
			username = u.Username
		}
		return &wire.MessageReceivedPush{
			Type: wire.TagMessageReceived,
			Message: wire.MessageView{
				Id: derefMessageID(e.MessageID), RoomId: e.RoomID, DMPair: e.DMPair,
				Author: e.Author, Content: e.Content, CreatedAt: nanosToUnix(e.EmittedAt),
			},
			AuthorUsername: username,
		}
	case event.KindMessageEdited:
		return &wire.MessageEditedPush{
			Type: wire.TagMessageEdited,
			Message: wire.MessageView{
				Id: derefMessageID(e.MessageID), RoomId: e.RoomID, DMPair: e.DMPair,
				Author: e.Author, Content: e.Content, CreatedAt: nanosToUnix(e.EmittedAt),
			},
		}
	case event.KindMessageDeleted:
		return &wire.MessageDeletedPush{Type: wire.TagMessageDeleted, MessageId: derefMessageID(e.MessageID), RoomId: e.RoomID}
	case event.KindUserJoinedRoom:
		return &wire.UserJoinedRoomPush{Type: wire.TagUserJoinedRoom, RoomId: derefRoomID(e.RoomID), UserId: e.SubjectUserID}
	case event.KindUserLeftRoom:
		return &wire.UserLeftRoomPush{Type: wire.TagUserLeftRoom, RoomId: derefRoomID(e.RoomID), UserId: e.SubjectUserID}
	case event.KindMemberRoleChanged:
		return &wire.MemberRoleChangedPush{Type: wire.TagMemberRoleChanged, RoomId: derefRoomID(e.RoomID), UserId: e.SubjectUserID, NewRole: e.NewRole, ActorId: e.ActorUserID}
	case event.KindRoomUpdated:
		if e.RoomID == nil {
			return nil
		}
		room, err := l.store.Rooms().Get(ctx, *e.RoomID)
		if err != nil || room == nil {
			return nil
		}
		return &wire.RoomUpdatedPush{Type: wire.TagRoomUpdated, Room: wire.NewRoomView(room)}
	case event.KindRoomDeleted:
		return &wire.RoomDeletedPush{Type: wire.TagRoomDeleted, RoomId: derefRoomID(e.RoomID)}
	case event.KindUserOnline:
		return &wire.UserOnlinePush{Type: wire.TagUserOnline, UserId: e.SubjectUserID}
	case event.KindUserOffline:
		return &wire.UserOfflinePush{Type: wire.TagUserOffline, UserId: e.SubjectUserID}
	case event.KindUserTyping:
		target := wire.Target{RoomId: e.RoomID}
		if e.DMPair != nil {
			target.DMUserId = &e.SubjectUserID
		}
		return &wire.UserTypingPush{Type: wire.TagUserTyping, UserId: e.SubjectUserID, Target: target}
	case event.KindInvitationReceived:
		if e.InvitationID == nil {
			return nil
		}
		inv, err := l.store.Invitations().Get(ctx, *e.InvitationID)
		if err != nil || inv == nil {
			return nil
		}
		return &wire.InvitationReceivedPush{Type: wire.TagInvitationReceived, Invitation: wire.NewInvitationView(inv)}
	case event.KindServerNotice:
		return &wire.ServerNoticePush{Type: wire.TagServerNotice, Notice: e.Notice}
	default:
		return nil
	}
}

func derefMessageID(id *t.MessageId) t.MessageId {
	if id == nil {
		return t.MessageId{}
	}
	return *id
}

func derefRoomID(id *t.RoomId) t.RoomId {
	if id == nil {
		return t.RoomId{}
	}
	return *id
}

func nanosToUnix(nanos int64) int64 { return nanos / 1e9 }
