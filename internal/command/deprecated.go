package command

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/relaychat/server/internal/auth"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

const deprecatedMessageHistoryLimit = 50

func (h *Handler) handleGetMessages(ctx context.Context, actor Actor, m *wire.GetMessages) any {
	membership, err := h.ops.Adapter().Memberships().Get(ctx, m.RoomId, actor.UserID)
	if err != nil || membership == nil || membership.Status != t.MembershipActive {
		return wire.NewError(m.RequestId, wire.CodeForbidden, "not a member of this room")
	}
	limit := m.Limit
	if limit <= 0 || limit > deprecatedMessageHistoryLimit {
		limit = deprecatedMessageHistoryLimit
	}
	before := nowFunc()
	msgs, err := h.ops.Adapter().Messages().ListByRoom(ctx, m.RoomId, limit, before)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to load messages")
	}
	views := make([]wire.MessageView, len(msgs))
	for i := range msgs {
		views[i] = messageView(&msgs[i])
	}
	return &wire.GetMessagesResponse{Type: wire.TagGetMessagesResponse, RequestId: m.RequestId, Messages: views}
}

func (h *Handler) handleCreateRoom(ctx context.Context, actor Actor, m *wire.CreateRoom) any {
	room := &t.Room{Name: m.Name, Type: m.RoomType, Privacy: m.Privacy, CreatedBy: actor.UserID}
	if m.Description != "" {
		room.Description = &m.Description
	}
	creatorMembership := &t.Membership{UserId: actor.UserID}
	createdRoom, _, err := h.ops.CreateRoomWithMembership(ctx, room, creatorMembership)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeAlreadyExists, "room name already taken")
	}
	return &wire.CreateRoomResponse{Type: wire.TagCreateRoomResponse, RequestId: m.RequestId, Room: wire.NewRoomView(createdRoom)}
}

func (h *Handler) handleListRooms(ctx context.Context, actor Actor, m *wire.ListRooms) any {
	memberships, err := h.ops.Adapter().Memberships().ListByUser(ctx, actor.UserID)
	if err != nil {
		return wire.NewError(m.RequestId, wire.CodeInternal, "failed to list rooms")
	}
	views := make([]wire.RoomView, 0, len(memberships))
	for _, ms := range memberships {
		if ms.Status != t.MembershipActive {
			continue
		}
		room, err := h.ops.Adapter().Rooms().Get(ctx, ms.RoomId)
		if err != nil || room == nil || !room.IsActive {
			continue
		}
		views = append(views, wire.NewRoomView(room))
	}
	return &wire.ListRoomsResponse{Type: wire.TagListRoomsResponse, RequestId: m.RequestId, Rooms: views}
}

// Login is the deprecated direct-credential authentication path accepted in
// AwaitingAuth, per spec section 4.H. It performs the storage lookup itself
// rather than delegating to Authenticate, since there is no bearer token
// yet to verify.
func (h *Handler) Login(ctx context.Context, m *wire.Login) (*auth.AttachResult, *wire.LoginResponse) {
	h.log.Warn("deprecated command used", "type", wire.TagLogin)
	user, err := h.ops.Adapter().Users().GetByUsername(ctx, m.Identifier)
	if err != nil || user == nil {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(m.Password)) != nil {
		return nil, nil
	}

	session := &t.Session{Protocol: t.ProtocolTCP, ExpiresAt: nowFunc().Add(24 * time.Hour)}
	tx, terr := h.ops.Adapter().Begin(ctx)
	if terr != nil {
		return nil, nil
	}
	session.Id, session.UserId, session.CreatedAt, session.LastActivity, session.IsActive = t.NewSessionId(), user.Id, nowFunc(), nowFunc(), true
	if cerr := h.ops.Adapter().Sessions().Create(ctx, tx, session); cerr != nil {
		_ = h.ops.Adapter().Rollback(ctx, tx)
		return nil, nil
	}
	if cerr := h.ops.Adapter().Commit(ctx, tx); cerr != nil {
		return nil, nil
	}

	resp := &wire.LoginResponse{Type: wire.TagLoginResponse, RequestId: m.RequestId, Success: true, User: userViewPtr(user), Session: &wire.SessionView{Id: session.Id, ExpiresAt: session.ExpiresAt.Unix()}}
	return &auth.AttachResult{User: user, Session: session}, resp
}

// Register is the deprecated direct account-creation path, running
// user_registration_transaction (spec section 4.D) then attaching exactly
// like a successful Login.
func (h *Handler) Register(ctx context.Context, m *wire.Register) (*auth.AttachResult, *wire.RegisterResponse) {
	h.log.Warn("deprecated command used", "type", wire.TagRegister)
	hash, err := bcrypt.GenerateFromPassword([]byte(m.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil
	}
	user := &t.User{Username: m.Username, Email: m.Email, PasswordHash: string(hash), DisplayName: m.DisplayName}
	session := &t.Session{Protocol: t.ProtocolTCP, ExpiresAt: nowFunc().Add(24 * time.Hour)}

	createdUser, createdSession, err := h.ops.UserRegistration(ctx, user, session)
	if err != nil {
		return nil, nil
	}

	resp := &wire.RegisterResponse{Type: wire.TagRegisterResponse, RequestId: m.RequestId, Success: true, User: userViewPtr(createdUser), Session: &wire.SessionView{Id: createdSession.Id, ExpiresAt: createdSession.ExpiresAt.Unix()}}
	return &auth.AttachResult{User: createdUser, Session: createdSession}, resp
}
