// Package adapter declares the interface a storage backend must implement.
// Concrete adapters (internal/store/sqlstore, internal/store/memstore) live
// in their own packages. The six named transaction operations of spec
// section 4.D are implemented once, backend-agnostically, in
// internal/store/txops on top of this interface; a concrete adapter only
// needs to implement repository CRUD plus Begin/Commit/Rollback.
package adapter

import (
	"context"
	"time"

	t "github.com/relaychat/server/internal/store/types"
)

// Tx is an opaque handle to an in-flight transaction. Adapters decide its
// concrete representation (sqlstore wraps *sqlx.Tx, memstore wraps a mutex
// token); callers only ever pass it back into repo methods or
// Commit/Rollback.
type Tx interface{}

// TxManager begins, commits and rolls back transactions. Concrete adapters
// implement only this narrow contract; txops wraps it, in its unexported
// run helper, with retry-on-serialization-conflict (bounded, with jitter)
// before surfacing a TransactionError to the caller.
type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context, tx Tx) error
	Rollback(ctx context.Context, tx Tx) error
	// IsSerializationConflict reports whether err (as returned by any repo
	// method called with this tx) indicates the backend aborted the
	// transaction due to a concurrent conflict and it should be retried.
	IsSerializationConflict(err error) bool
}

// Adapter is the full repository surface plus the transaction manager.
// Single-row reads (the Get*/List* methods) are permitted outside a
// transaction per spec section 4.C; every precondition check that gates a
// write must be performed with the mutation's own tx so it is binding on
// commit.
type Adapter interface {
	Open(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	Name() string

	Users() UserRepo
	Rooms() RoomRepo
	Memberships() MembershipRepo
	Messages() MessageRepo
	Sessions() SessionRepo
	Invitations() InvitationRepo
	Audit() AuditRepo

	TxManager
}

type UserRepo interface {
	Get(ctx context.Context, id t.UserId) (*t.User, error)
	GetByUsername(ctx context.Context, username string) (*t.User, error)

	Create(ctx context.Context, tx Tx, u *t.User) error
	Update(ctx context.Context, tx Tx, id t.UserId, update map[string]any) error
	Delete(ctx context.Context, tx Tx, id t.UserId) error
	ExistsUsername(ctx context.Context, tx Tx, username string) (bool, error)
	Exists(ctx context.Context, tx Tx, id t.UserId) (bool, error)
}

type RoomRepo interface {
	Get(ctx context.Context, id t.RoomId) (*t.Room, error)
	GetByName(ctx context.Context, name string) (*t.Room, error)

	Create(ctx context.Context, tx Tx, r *t.Room) error
	Update(ctx context.Context, tx Tx, id t.RoomId, update map[string]any) error
	Delete(ctx context.Context, tx Tx, id t.RoomId) error
	ExistsActiveName(ctx context.Context, tx Tx, name string) (bool, error)
	SetActive(ctx context.Context, tx Tx, id t.RoomId, active bool) error
	GetForUpdate(ctx context.Context, tx Tx, id t.RoomId) (*t.Room, error)
}

type MembershipRepo interface {
	Get(ctx context.Context, roomID t.RoomId, userID t.UserId) (*t.Membership, error)
	ListByRoom(ctx context.Context, roomID t.RoomId) ([]t.Membership, error)
	ListByUser(ctx context.Context, userID t.UserId) ([]t.Membership, error)

	Create(ctx context.Context, tx Tx, m *t.Membership) error
	Update(ctx context.Context, tx Tx, roomID t.RoomId, userID t.UserId, update map[string]any) error
	Delete(ctx context.Context, tx Tx, roomID t.RoomId, userID t.UserId) error
	GetForUpdate(ctx context.Context, tx Tx, roomID t.RoomId, userID t.UserId) (*t.Membership, error)
	CountActiveByRoom(ctx context.Context, tx Tx, roomID t.RoomId) (int, error)
	DeleteAllForRoom(ctx context.Context, tx Tx, roomID t.RoomId) (int, error)
	DeleteAllForUser(ctx context.Context, tx Tx, userID t.UserId) (int, error)
}

type MessageRepo interface {
	Get(ctx context.Context, id t.MessageId) (*t.Message, error)
	ListByRoom(ctx context.Context, roomID t.RoomId, limit int, before time.Time) ([]t.Message, error)

	Create(ctx context.Context, tx Tx, m *t.Message) error
	Update(ctx context.Context, tx Tx, id t.MessageId, update map[string]any) error
	SoftDelete(ctx context.Context, tx Tx, id t.MessageId) error
	DeleteAllByRoom(ctx context.Context, tx Tx, roomID t.RoomId) (int, error)
	DeleteAllByAuthor(ctx context.Context, tx Tx, author t.UserId) (int, error)
}

type SessionRepo interface {
	Get(ctx context.Context, id t.SessionId) (*t.Session, error)

	Create(ctx context.Context, tx Tx, s *t.Session) error
	Update(ctx context.Context, tx Tx, id t.SessionId, update map[string]any) error
	Deactivate(ctx context.Context, tx Tx, id t.SessionId) error
	DeleteAllByUser(ctx context.Context, tx Tx, userID t.UserId) (int, error)
}

type InvitationRepo interface {
	Get(ctx context.Context, id t.InvitationId) (*t.Invitation, error)
	ListPendingForUser(ctx context.Context, userID t.UserId) ([]t.Invitation, error)

	Create(ctx context.Context, tx Tx, inv *t.Invitation) error
	Update(ctx context.Context, tx Tx, id t.InvitationId, update map[string]any) error
	Delete(ctx context.Context, tx Tx, id t.InvitationId) error
	ExistsPendingFor(ctx context.Context, tx Tx, roomID t.RoomId, recipient t.UserId) (bool, error)
	DeleteAllForUser(ctx context.Context, tx Tx, userID t.UserId) (int, error)
	DeleteAllForRoom(ctx context.Context, tx Tx, roomID t.RoomId) (int, error)
	// GetForUpdate reads the invitation inside the transaction's isolation,
	// so the accept/decline precondition check is binding on commit.
	GetForUpdate(ctx context.Context, tx Tx, id t.InvitationId) (*t.Invitation, error)
}

type AuditRepo interface {
	ListRecent(ctx context.Context, limit int) ([]t.AuditEntry, error)
	Append(ctx context.Context, tx Tx, entry *t.AuditEntry) error
	DeleteAllForUser(ctx context.Context, tx Tx, userID t.UserId) (int, error)
}

// DeletionCounts reports how many rows of each kind the user-deletion
// cascade removed. Counts are captured before each delete, per spec.
type DeletionCounts struct {
	DeletedSessions    int
	DeletedMessages    int
	RemovedFromRooms   int
	DeletedInvitations int
}

// RoomOpKind enumerates the operations accepted by BatchRoomOperations.
type RoomOpKind string

const (
	OpCreateRoom       RoomOpKind = "create_room"
	OpUpdateRoom       RoomOpKind = "update_room"
	OpDeleteRoom       RoomOpKind = "delete_room"
	OpAddMember        RoomOpKind = "add_member"
	OpRemoveMember     RoomOpKind = "remove_member"
	OpUpdateMemberRole RoomOpKind = "update_member_role"
)

// RoomOp is one ordered step of a batch_room_operations call.
type RoomOp struct {
	Kind RoomOpKind

	Room   *t.Room        // CreateRoom
	RoomID t.RoomId       // UpdateRoom, DeleteRoom, AddMember, RemoveMember, UpdateMemberRole
	Update map[string]any // UpdateRoom

	UserID t.UserId         // AddMember, RemoveMember, UpdateMemberRole
	Role   t.MembershipRole // AddMember, UpdateMemberRole
}
