// Package event implements the process-wide domain event bus (component E)
// and the pure visibility filter (component F) of the connection state
// machine's push-event path. The bus design is grounded on the teacher's
// Hub (server/hub.go), which fans a value out to per-subscriber channels
// from a single broadcast goroutine. This bus has no goroutine of its own:
// Publish fans out synchronously under the bus lock, the subscriber set is
// generic rather than tied to topic membership, and every subscriber gets a
// bounded buffer plus an explicit Lagged signal instead of silently blocking
// the publisher.
package event

import (
	t "github.com/relaychat/server/internal/store/types"
)

// Kind identifies the payload variant of an Event, matching the wire tag
// used for the corresponding server push message.
type Kind string

const (
	KindMessageReceived     Kind = "MessageReceived"
	KindMessageEdited       Kind = "MessageEdited"
	KindMessageDeleted      Kind = "MessageDeleted"
	KindUserJoinedRoom      Kind = "UserJoinedRoom"
	KindUserLeftRoom        Kind = "UserLeftRoom"
	KindMemberRoleChanged   Kind = "MemberRoleChanged"
	KindRoomUpdated         Kind = "RoomUpdated"
	KindRoomDeleted         Kind = "RoomDeleted"
	KindUserOnline          Kind = "UserOnline"
	KindUserOffline         Kind = "UserOffline"
	KindUserTyping          Kind = "UserTyping"
	KindInvitationReceived  Kind = "InvitationReceived"
	KindInvitationCancelled Kind = "InvitationCancelled"
	KindSessionExpiring     Kind = "SessionExpiring"
	KindServerNotice        Kind = "ServerNotice"
)

// Event is the immutable value fanned out by the bus. Exactly one of the
// payload fields is meaningful for any given Kind; this mirrors the
// teacher's tagged ServerComMessage shape but flattened into one struct
// since every field here is small and the event bus never serializes this
// type directly (the listener converts it to a wire push message).
type Event struct {
	Kind      Kind
	EmittedAt int64 // unix nanos; stamped by the publisher, not the bus

	RoomID    *t.RoomId
	DMPair    *string // "uidA:uidB", lexically sorted, set for DM-targeted events
	MessageID *t.MessageId
	Author    t.UserId
	Content   string

	SubjectUserID t.UserId // UserOnline/UserOffline/UserTyping/UserJoinedRoom/UserLeftRoom
	ActorUserID   t.UserId // MemberRoleChanged/RoomUpdated actor
	NewRole       t.MembershipRole

	InvitationRecipient t.UserId
	InvitationID        *t.InvitationId

	SessionID *t.SessionId
	Notice    string
}
