// Package command implements component G: the per-request business logic
// shelf above the wire codec. A Handler resolves the acting session,
// performs authorization checks, calls the transaction/storage layer, emits
// domain events, and returns the response variant. It holds no connection
// state of its own — the connection state machine in internal/session owns
// that — so one Handler is shared by every connection, mirroring how the
// teacher's Hub centralizes topic logic behind per-session dispatch calls
// rather than duplicating it per session.
package command

import (
	"context"
	"log/slog"

	"github.com/relaychat/server/internal/auth"
	"github.com/relaychat/server/internal/event"
	"github.com/relaychat/server/internal/store/txops"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

// Actor identifies the authenticated principal behind a dispatched request.
// Handshake/auth messages are handled before an Actor exists.
type Actor struct {
	UserID    t.UserId
	SessionID t.SessionId
}

// Handler is safe for concurrent use by many connections.
type Handler struct {
	ops      *txops.Ops
	bus      *event.Bus
	verifier *auth.Verifier
	log      *slog.Logger
}

func NewHandler(ops *txops.Ops, bus *event.Bus, verifier *auth.Verifier, log *slog.Logger) *Handler {
	return &Handler{ops: ops, bus: bus, verifier: verifier, log: log}
}

// Dispatch runs one accepted, authenticated client message and returns the
// response to queue on the outbound channel. A nil response (only possible
// for Typing) means no frame should be sent.
func (h *Handler) Dispatch(ctx context.Context, actor Actor, msg any) any {
	switch m := msg.(type) {
	case *wire.Ping:
		return &wire.Pong{Type: wire.TagPong}
	case *wire.Logout:
		return h.handleLogout(ctx, actor, m)
	case *wire.SendMessage:
		return h.handleSendMessage(ctx, actor, m)
	case *wire.EditMessage:
		return h.handleEditMessage(ctx, actor, m)
	case *wire.DeleteMessage:
		return h.handleDeleteMessage(ctx, actor, m)
	case *wire.JoinRoom:
		return h.handleJoinRoom(ctx, actor, m)
	case *wire.LeaveRoom:
		return h.handleLeaveRoom(ctx, actor, m)
	case *wire.AcceptInvitation:
		return h.handleAcceptInvitation(ctx, actor, m)
	case *wire.DeclineInvitation:
		return h.handleDeclineInvitation(ctx, actor, m)
	case *wire.Typing:
		h.handleTyping(actor, m)
		return nil
	case *wire.GetMessages:
		h.log.Warn("deprecated command used", "type", wire.TagGetMessages, "user", actor.UserID.String())
		return h.handleGetMessages(ctx, actor, m)
	case *wire.CreateRoom:
		h.log.Warn("deprecated command used", "type", wire.TagCreateRoom, "user", actor.UserID.String())
		return h.handleCreateRoom(ctx, actor, m)
	case *wire.ListRooms:
		h.log.Warn("deprecated command used", "type", wire.TagListRooms, "user", actor.UserID.String())
		return h.handleListRooms(ctx, actor, m)
	default:
		return wire.NewError("", wire.CodeNotImplemented, "unsupported message in authenticated state")
	}
}

// Authenticate resolves the Authenticate{token} message to an attached
// session, per spec section 4.H's primary authentication path.
func (h *Handler) Authenticate(ctx context.Context, msg *wire.Authenticate) (*auth.AttachResult, *wire.AuthenticateResponse) {
	userID, sessionID, err := h.verifier.Verify(msg.Token)
	if err != nil {
		return nil, nil
	}
	user, uerr := h.ops.Adapter().Users().Get(ctx, userID)
	if uerr != nil || user == nil {
		return nil, nil
	}
	sess, serr := h.ops.Adapter().Sessions().Get(ctx, sessionID)
	if serr != nil || sess == nil {
		return nil, nil
	}
	if err := auth.CheckSession(sess, nowFunc()); err != nil {
		return nil, nil
	}

	resp := &wire.AuthenticateResponse{
		Type: wire.TagAuthenticateResponse, RequestId: msg.RequestId, Success: true,
		User:    userViewPtr(user),
		Session: &wire.SessionView{Id: sess.Id, ExpiresAt: sess.ExpiresAt.Unix()},
	}
	return &auth.AttachResult{User: user, Session: sess}, resp
}

func userViewPtr(u *t.User) *wire.UserView {
	v := wire.NewUserView(u)
	return &v
}

// PublishUserOnline/PublishUserOffline are called by the connection state
// machine on attach/teardown, not in response to a client message, so they
// live on Handler rather than in the Dispatch switch. Per spec section 4.F,
// presence is filtered to viewers who share a room with the subject, so one
// event is published per active room membership rather than a single
// room-less event.
func (h *Handler) PublishUserOnline(ctx context.Context, userID t.UserId) {
	h.publishPresence(ctx, event.KindUserOnline, userID)
}

func (h *Handler) PublishUserOffline(ctx context.Context, userID t.UserId) {
	h.publishPresence(ctx, event.KindUserOffline, userID)
}

func (h *Handler) publishPresence(ctx context.Context, kind event.Kind, userID t.UserId) {
	memberships, err := h.ops.Adapter().Memberships().ListByUser(ctx, userID)
	if err != nil {
		h.log.Warn("publishPresence: failed to list memberships", "error", err, "user", userID.String())
		return
	}
	now := nowFunc().UnixNano()
	for _, m := range memberships {
		if m.Status != t.MembershipActive {
			continue
		}
		roomID := m.RoomId
		h.bus.Publish(event.Event{Kind: kind, SubjectUserID: userID, RoomID: &roomID, EmittedAt: now})
	}
}

// Bus exposes the event bus for the per-connection listener subtask
// (component H sub-task) to subscribe against.
func (h *Handler) Bus() *event.Bus { return h.bus }

// Ops exposes the transaction/storage layer for the listener subtask's
// author-username and room-set lookups.
func (h *Handler) Ops() *txops.Ops { return h.ops }
