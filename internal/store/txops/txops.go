// Package txops implements the six named multi-entity transaction
// operations of spec section 4.D once, against the adapter.Adapter
// interface, so every concrete storage backend gets identical precondition
// enforcement and cascade semantics for free.
package txops

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/relaychat/server/internal/store/adapter"
	t "github.com/relaychat/server/internal/store/types"
)

const (
	maxRetries       = 3
	invitationTTL    = time.Hour
	baseRetryBackoff = 5 * time.Millisecond
)

// Ops binds the six named transaction operations to one adapter.Adapter.
// The command handler depends on this type (or the narrower interfaces it
// embeds) rather than on any concrete storage backend.
type Ops struct {
	a adapter.Adapter
}

// New binds the shared transaction operations to a concrete adapter.
func New(a adapter.Adapter) *Ops { return &Ops{a: a} }

func (o *Ops) CreateRoomWithMembership(ctx context.Context, room *t.Room, ownerMembership *t.Membership) (*t.Room, *t.Membership, error) {
	return CreateRoomWithMembership(ctx, o.a, room, ownerMembership)
}

func (o *Ops) CreateInvitationWithMembership(ctx context.Context, invitation *t.Invitation, membership *t.Membership) (*t.Invitation, *t.Membership, error) {
	return CreateInvitationWithMembership(ctx, o.a, invitation, membership)
}

func (o *Ops) UpdateInvitationAndMembership(ctx context.Context, invitationID t.InvitationId, newStatus t.InvitationStatus, membership *t.Membership) (*t.Invitation, *t.Membership, error) {
	return UpdateInvitationAndMembership(ctx, o.a, invitationID, newStatus, membership)
}

func (o *Ops) BatchRoomOperations(ctx context.Context, ops []adapter.RoomOp) error {
	return BatchRoomOperations(ctx, o.a, ops)
}

func (o *Ops) UserRegistration(ctx context.Context, user *t.User, session *t.Session) (*t.User, *t.Session, error) {
	return UserRegistration(ctx, o.a, user, session)
}

func (o *Ops) UserDeletion(ctx context.Context, userID t.UserId) (adapter.DeletionCounts, error) {
	return UserDeletion(ctx, o.a, userID)
}

func (o *Ops) LeaveRoom(ctx context.Context, roomID t.RoomId, userID t.UserId) (bool, error) {
	return LeaveRoom(ctx, o.a, roomID, userID)
}

// Adapter exposes the underlying adapter for repository reads.
func (o *Ops) Adapter() adapter.Adapter { return o.a }

// run executes fn inside a transaction, committing on success and rolling
// back on any error. A serialization conflict starts another attempt, up to
// maxRetries attempts in all, with jittered backoff; a conflict on the last
// attempt is surfaced as a TransactionError, per spec section 7.
func run(ctx context.Context, a adapter.Adapter, fn func(tx adapter.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err := a.Begin(ctx)
		if err != nil {
			return err
		}
		err = fn(tx)
		if err == nil {
			if cerr := a.Commit(ctx, tx); cerr != nil {
				if a.IsSerializationConflict(cerr) {
					lastErr = cerr
					backoffSleep(ctx, attempt)
					continue
				}
				return cerr
			}
			return nil
		}

		_ = a.Rollback(ctx, tx)

		if a.IsSerializationConflict(err) {
			lastErr = err
			backoffSleep(ctx, attempt)
			continue
		}
		return err
	}
	return &t.TransactionError{Cause: lastErr, SerializationConflict: true}
}

func backoffSleep(ctx context.Context, attempt int) {
	jitter := time.Duration(rand.Int63n(int64(baseRetryBackoff)))
	delay := baseRetryBackoff*time.Duration(1<<attempt) + jitter
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// CreateRoomWithMembership inserts room and forces the creator's membership
// to role=Owner, status=active, regardless of what the caller supplied.
func CreateRoomWithMembership(ctx context.Context, a adapter.Adapter, room *t.Room, creatorMembership *t.Membership) (*t.Room, *t.Membership, error) {
	if room.Id.IsZero() {
		room.Id = t.NewRoomId()
	}
	var outRoom t.Room
	var outMembership t.Membership

	err := run(ctx, a, func(tx adapter.Tx) error {
		exists, err := a.Users().Exists(ctx, tx, creatorMembership.UserId)
		if err != nil {
			return err
		}
		if !exists {
			return t.NotFound("user", creatorMembership.UserId.String())
		}

		activeExists, err := a.Rooms().ExistsActiveName(ctx, tx, room.Name)
		if err != nil {
			return err
		}
		if activeExists {
			return t.AlreadyExists("room", room.Name)
		}

		now := time.Now()
		room.CreatedAt, room.UpdatedAt, room.IsActive = now, now, true
		if err := a.Rooms().Create(ctx, tx, room); err != nil {
			return err
		}

		creatorMembership.Id = t.NewUserId()
		creatorMembership.RoomId = room.Id
		creatorMembership.Role = t.MemberRoleOwner
		creatorMembership.Status = t.MembershipActive
		creatorMembership.JoinedAt = now
		if err := a.Memberships().Create(ctx, tx, creatorMembership); err != nil {
			return err
		}

		if err := a.Audit().Append(ctx, tx, &t.AuditEntry{
			ActorId: creatorMembership.UserId, Action: "room.create", Target: room.Id.String(), CreatedAt: now,
		}); err != nil {
			return err
		}

		outRoom, outMembership = *room, *creatorMembership
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &outRoom, &outMembership, nil
}

// CreateInvitationWithMembership inserts a Pending invitation plus its
// accompanying pending Membership row.
func CreateInvitationWithMembership(ctx context.Context, a adapter.Adapter, invitation *t.Invitation, membership *t.Membership) (*t.Invitation, *t.Membership, error) {
	var outInv t.Invitation
	var outMembership t.Membership

	err := run(ctx, a, func(tx adapter.Tx) error {
		sender, err := a.Memberships().GetForUpdate(ctx, tx, invitation.RoomId, invitation.SenderUserId)
		if err != nil {
			return err
		}
		if sender == nil || sender.Status != t.MembershipActive ||
			!(sender.Role == t.MemberRoleOwner || sender.Role == t.MemberRoleAdmin) {
			return t.Validation("invitation", "sender_user_id", "sender must be an active owner or admin of the room")
		}

		existingMember, err := a.Memberships().GetForUpdate(ctx, tx, invitation.RoomId, invitation.RecipientUserId)
		if err != nil {
			return err
		}
		if existingMember != nil && existingMember.Status == t.MembershipActive {
			return t.AlreadyExists("membership", invitation.RecipientUserId.String())
		}

		pending, err := a.Invitations().ExistsPendingFor(ctx, tx, invitation.RoomId, invitation.RecipientUserId)
		if err != nil {
			return err
		}
		if pending {
			return t.Duplicate("invitation")
		}

		now := time.Now()
		if invitation.Id.IsZero() {
			invitation.Id = t.NewInvitationId()
		}
		invitation.Status = t.InvitationPending
		invitation.CreatedAt = now
		if invitation.ExpiresAt.IsZero() {
			invitation.ExpiresAt = now.Add(invitationTTL)
		}
		if err := a.Invitations().Create(ctx, tx, invitation); err != nil {
			return err
		}

		membership.Id = t.NewUserId()
		membership.RoomId = invitation.RoomId
		membership.UserId = invitation.RecipientUserId
		membership.Status = t.MembershipPending
		membership.JoinedAt = now
		if membership.Role == "" {
			membership.Role = t.MemberRoleMember
		}
		if err := a.Memberships().Create(ctx, tx, membership); err != nil {
			return err
		}

		outInv, outMembership = *invitation, *membership
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &outInv, &outMembership, nil
}

// legalInvitationTransitions enumerates the successor statuses from Pending
// that UpdateInvitationAndMembership accepts. Revoked is not among them, and
// no operation in this package sets it.
var legalInvitationTransitions = map[t.InvitationStatus]bool{
	t.InvitationAccepted: true,
	t.InvitationDeclined: true,
	t.InvitationExpired:  true,
}

// UpdateInvitationAndMembership transitions a Pending invitation to
// newStatus and reconciles its accompanying membership row: Accepted
// activates it, Declined/Expired removes it.
func UpdateInvitationAndMembership(ctx context.Context, a adapter.Adapter, invitationID t.InvitationId, newStatus t.InvitationStatus, membership *t.Membership) (*t.Invitation, *t.Membership, error) {
	if !legalInvitationTransitions[newStatus] {
		return nil, nil, t.Validation("invitation", "status", "illegal transition from Pending")
	}

	var outInv t.Invitation
	var outMembership *t.Membership

	err := run(ctx, a, func(tx adapter.Tx) error {
		inv, err := a.Invitations().GetForUpdate(ctx, tx, invitationID)
		if err != nil {
			return err
		}
		if inv == nil {
			return t.NotFound("invitation", invitationID.String())
		}
		effectiveStatus := inv.Status
		if inv.IsExpired(time.Now()) {
			effectiveStatus = t.InvitationExpired
		}
		if effectiveStatus != t.InvitationPending {
			return t.Validation("invitation", "status", "invitation is not pending")
		}

		if err := a.Invitations().Update(ctx, tx, invitationID, map[string]any{"status": newStatus}); err != nil {
			return err
		}
		inv.Status = newStatus

		switch newStatus {
		case t.InvitationAccepted:
			if err := a.Memberships().Update(ctx, tx, membership.RoomId, membership.UserId, map[string]any{"status": t.MembershipActive}); err != nil {
				return err
			}
			membership.Status = t.MembershipActive
			outMembership = membership
		case t.InvitationDeclined, t.InvitationExpired:
			if err := a.Memberships().Delete(ctx, tx, membership.RoomId, membership.UserId); err != nil {
				return err
			}
			outMembership = nil
		}

		outInv = *inv
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &outInv, outMembership, nil
}

// BatchRoomOperations applies ops in order inside one transaction.
// DeleteRoom cascades to memberships, invitations and messages before the
// room row itself.
func BatchRoomOperations(ctx context.Context, a adapter.Adapter, ops []adapter.RoomOp) error {
	return run(ctx, a, func(tx adapter.Tx) error {
		for _, op := range ops {
			if err := applyRoomOp(ctx, a, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyRoomOp(ctx context.Context, a adapter.Adapter, tx adapter.Tx, op adapter.RoomOp) error {
	switch op.Kind {
	case adapter.OpCreateRoom:
		if op.Room.Id.IsZero() {
			op.Room.Id = t.NewRoomId()
		}
		exists, err := a.Rooms().ExistsActiveName(ctx, tx, op.Room.Name)
		if err != nil {
			return err
		}
		if exists {
			return t.AlreadyExists("room", op.Room.Name)
		}
		now := time.Now()
		op.Room.CreatedAt, op.Room.UpdatedAt, op.Room.IsActive = now, now, true
		return a.Rooms().Create(ctx, tx, op.Room)

	case adapter.OpUpdateRoom:
		room, err := a.Rooms().GetForUpdate(ctx, tx, op.RoomID)
		if err != nil {
			return err
		}
		if room == nil {
			return t.NotFound("room", op.RoomID.String())
		}
		return a.Rooms().Update(ctx, tx, op.RoomID, op.Update)

	case adapter.OpDeleteRoom:
		room, err := a.Rooms().GetForUpdate(ctx, tx, op.RoomID)
		if err != nil {
			return err
		}
		if room == nil {
			return t.NotFound("room", op.RoomID.String())
		}
		if _, err := a.Memberships().DeleteAllForRoom(ctx, tx, op.RoomID); err != nil {
			return err
		}
		if _, err := a.Invitations().DeleteAllForRoom(ctx, tx, op.RoomID); err != nil {
			return err
		}
		if _, err := a.Messages().DeleteAllByRoom(ctx, tx, op.RoomID); err != nil {
			return err
		}
		return a.Rooms().Delete(ctx, tx, op.RoomID)

	case adapter.OpAddMember:
		existing, err := a.Memberships().GetForUpdate(ctx, tx, op.RoomID, op.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return t.AlreadyExists("membership", op.UserID.String())
		}
		role := op.Role
		if role == "" {
			role = t.MemberRoleMember
		}
		return a.Memberships().Create(ctx, tx, &t.Membership{
			Id: t.NewUserId(), RoomId: op.RoomID, UserId: op.UserID,
			Role: role, Status: t.MembershipActive, JoinedAt: time.Now(),
		})

	case adapter.OpRemoveMember:
		return removeMemberWithOwnershipRule(ctx, a, tx, op.RoomID, op.UserID)

	case adapter.OpUpdateMemberRole:
		m, err := a.Memberships().GetForUpdate(ctx, tx, op.RoomID, op.UserID)
		if err != nil {
			return err
		}
		if m == nil {
			return t.NotFound("membership", op.UserID.String())
		}
		return a.Memberships().Update(ctx, tx, op.RoomID, op.UserID, map[string]any{"role": op.Role})

	default:
		return t.Validation("batch_room_operations", "kind", "unknown op kind")
	}
}

// ErrOwnerMustTransferFirst is returned when an Owner tries to leave a room
// that still has other active members.
var ErrOwnerMustTransferFirst = errors.New("txops: owner cannot leave while other members remain")

// removeMemberWithOwnershipRule enforces: an Owner cannot leave while other
// members exist, and a room with no remaining active members is
// soft-deleted (is_active=false) rather than left ownerless.
func removeMemberWithOwnershipRule(ctx context.Context, a adapter.Adapter, tx adapter.Tx, roomID t.RoomId, userID t.UserId) error {
	m, err := a.Memberships().GetForUpdate(ctx, tx, roomID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return t.NotFound("membership", userID.String())
	}

	count, err := a.Memberships().CountActiveByRoom(ctx, tx, roomID)
	if err != nil {
		return err
	}

	if m.Role == t.MemberRoleOwner && count > 1 {
		return ErrOwnerMustTransferFirst
	}

	if err := a.Memberships().Delete(ctx, tx, roomID, userID); err != nil {
		return err
	}

	if count <= 1 {
		return a.Rooms().SetActive(ctx, tx, roomID, false)
	}
	return nil
}

// LeaveRoom is the single-member-removal entry point used by the command
// handler for the LeaveRoom client request; it reuses the same ownership
// rule as a batch RemoveMember op and reports whether the room was
// deactivated as a result.
func LeaveRoom(ctx context.Context, a adapter.Adapter, roomID t.RoomId, userID t.UserId) (roomDeactivated bool, err error) {
	err = run(ctx, a, func(tx adapter.Tx) error {
		before, cerr := a.Memberships().CountActiveByRoom(ctx, tx, roomID)
		if cerr != nil {
			return cerr
		}
		if cerr := removeMemberWithOwnershipRule(ctx, a, tx, roomID, userID); cerr != nil {
			return cerr
		}
		roomDeactivated = before <= 1
		return nil
	})
	return roomDeactivated, err
}

// UserRegistration inserts a new user and its initial session together.
func UserRegistration(ctx context.Context, a adapter.Adapter, user *t.User, session *t.Session) (*t.User, *t.Session, error) {
	var outUser t.User
	var outSession t.Session

	err := run(ctx, a, func(tx adapter.Tx) error {
		taken, err := a.Users().ExistsUsername(ctx, tx, user.Username)
		if err != nil {
			return err
		}
		if taken {
			return t.AlreadyExists("user", user.Username)
		}

		now := time.Now()
		if user.Id.IsZero() {
			user.Id = t.NewUserId()
		}
		user.CreatedAt, user.UpdatedAt = now, now
		if user.Status == "" {
			user.Status = t.UserActive
		}
		if user.Role == "" {
			user.Role = t.RoleUser
		}
		if err := a.Users().Create(ctx, tx, user); err != nil {
			return err
		}

		if session.Id.IsZero() {
			session.Id = t.NewSessionId()
		}
		session.UserId = user.Id
		session.CreatedAt = now
		session.LastActivity = now
		session.IsActive = true
		if err := a.Sessions().Create(ctx, tx, session); err != nil {
			return err
		}

		outUser, outSession = *user, *session
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &outUser, &outSession, nil
}

// UserDeletion cascades a user delete across sessions, messages,
// memberships, invitations and audit rows, then deletes the user row
// itself. Counts are captured before each delete. Room deletion is never
// triggered by user deletion: only the user's own membership rows are
// removed, per the cascade ownership rule of spec section 4.D.
func UserDeletion(ctx context.Context, a adapter.Adapter, userID t.UserId) (adapter.DeletionCounts, error) {
	var counts adapter.DeletionCounts

	err := run(ctx, a, func(tx adapter.Tx) error {
		exists, err := a.Users().Exists(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return t.NotFound("user", userID.String())
		}

		n, err := a.Sessions().DeleteAllByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		counts.DeletedSessions = n

		n, err = a.Messages().DeleteAllByAuthor(ctx, tx, userID)
		if err != nil {
			return err
		}
		counts.DeletedMessages = n

		n, err = a.Memberships().DeleteAllForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		counts.RemovedFromRooms = n

		n, err = a.Invitations().DeleteAllForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		counts.DeletedInvitations = n

		if _, err := a.Audit().DeleteAllForUser(ctx, tx, userID); err != nil {
			return err
		}

		return a.Users().Delete(ctx, tx, userID)
	})
	return counts, err
}
