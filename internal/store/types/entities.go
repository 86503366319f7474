package types

import "time"

// UserRole is the global privilege level of a User, independent of any
// per-room Membership role.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleModerator UserRole = "moderator"
	RoleUser      UserRole = "user"
	RoleGuest     UserRole = "guest"
)

// UserStatus is the lifecycle state of a User account.
type UserStatus string

const (
	UserActive              UserStatus = "active"
	UserSuspended           UserStatus = "suspended"
	UserBanned              UserStatus = "banned"
	UserPendingVerification UserStatus = "pending_verification"
	UserDeactivated         UserStatus = "deactivated"
)

// User is an account record. Username and email are unique across all rows,
// active or not; a User is never hard-deleted except via the user-deletion
// cascade transaction.
type User struct {
	Id           UserId     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	Role         UserRole   `db:"role" json:"role"`
	Status       UserStatus `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
}

// RoomType classifies what a Room is for.
type RoomType string

const (
	RoomChannel   RoomType = "channel"
	RoomGroup     RoomType = "group"
	RoomDM        RoomType = "direct_message"
	RoomSystem    RoomType = "system"
	RoomTemporary RoomType = "temporary"
)

// RoomPrivacy controls discoverability and join semantics.
type RoomPrivacy string

const (
	PrivacyPublic    RoomPrivacy = "public"
	PrivacyPrivate   RoomPrivacy = "private"
	PrivacyProtected RoomPrivacy = "protected"
	PrivacySystem    RoomPrivacy = "system"
)

// RoomSettings holds the mutable, optional knobs of a Room.
type RoomSettings struct {
	MaxMembers *int `json:"max_members,omitempty"`
}

// Room is soft-deleted by flipping IsActive to false when its last member
// leaves; name uniqueness is enforced only while IsActive.
type Room struct {
	Id          RoomId       `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	Description *string      `db:"description" json:"description,omitempty"`
	Type        RoomType     `db:"type" json:"type"`
	Privacy     RoomPrivacy  `db:"privacy" json:"privacy"`
	Settings    RoomSettings `db:"settings" json:"settings"`
	CreatedBy   UserId       `db:"created_by" json:"created_by"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	IsActive    bool         `db:"is_active" json:"is_active"`
}

// MembershipRole is the role a User holds inside one Room.
type MembershipRole string

const (
	MemberRoleOwner     MembershipRole = "owner"
	MemberRoleAdmin     MembershipRole = "admin"
	MemberRoleModerator MembershipRole = "moderator"
	MemberRoleMember    MembershipRole = "member"
	MemberRoleGuest     MembershipRole = "guest"
)

// MembershipStatus tracks where a Membership sits in its invitation/revocation
// lifecycle.
type MembershipStatus string

const (
	MembershipPending MembershipStatus = "pending"
	MembershipActive  MembershipStatus = "active"
	MembershipDeclined MembershipStatus = "declined"
	MembershipExpired MembershipStatus = "expired"
	MembershipRevoked MembershipStatus = "revoked"
)

// Membership joins a User to a Room. At most one row exists per
// (RoomId, UserId) pair; exactly one Owner/active row must exist per active
// Room.
type Membership struct {
	Id           UserId           `db:"id" json:"id"` // membership id, reuses the opaque id representation
	RoomId       RoomId           `db:"room_id" json:"room_id"`
	UserId       UserId           `db:"user_id" json:"user_id"`
	Role         MembershipRole   `db:"role" json:"role"`
	JoinedAt     time.Time        `db:"joined_at" json:"joined_at"`
	LastActivity *time.Time       `db:"last_activity" json:"last_activity,omitempty"`
	Status       MembershipStatus `db:"status" json:"status"`
}

// Message is a chat message, either room-targeted or a direct message
// between two users. Author is preserved on delete for audit purposes.
type Message struct {
	Id        MessageId  `db:"id" json:"id"`
	RoomId    *RoomId    `db:"room_id" json:"room_id,omitempty"`
	DMPair    *string    `db:"dm_pair" json:"dm_pair,omitempty"`
	Author    UserId     `db:"author" json:"author"`
	Content   string     `db:"content" json:"content"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	EditedAt  *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	Deleted   bool       `db:"deleted" json:"deleted"`
}

// Protocol is the transport a Session is bound to.
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolHTTP Protocol = "http"
)

// Session represents one authenticated principal occupying one transport.
// IsActive && now < ExpiresAt is the authorization predicate; rows outlive
// expiry for audit purposes.
type Session struct {
	Id           SessionId         `db:"id" json:"id"`
	UserId       UserId            `db:"user_id" json:"user_id"`
	Protocol     Protocol          `db:"protocol" json:"protocol"`
	Device       *string           `db:"device" json:"device,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	ExpiresAt    time.Time         `db:"expires_at" json:"expires_at"`
	LastActivity time.Time         `db:"last_activity" json:"last_activity"`
	IsActive     bool              `db:"is_active" json:"is_active"`
	Metadata     map[string]string `db:"metadata" json:"metadata,omitempty"`
}

// Authorized reports whether the session currently authorizes its holder.
func (s Session) Authorized(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// InvitationStatus is the lifecycle state of an Invitation. Pending is the
// only non-terminal state; legal transitions out of it are Accepted,
// Declined, Expired, Revoked.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation is accompanied by a pending Membership row that is promoted to
// active on Accept, or removed on Decline/Expire.
type Invitation struct {
	Id                InvitationId     `db:"id" json:"id"`
	RoomId            RoomId           `db:"room_id" json:"room_id"`
	SenderUserId      UserId           `db:"sender_user_id" json:"sender_user_id"`
	RecipientUserId   UserId           `db:"recipient_user_id" json:"recipient_user_id"`
	Status            InvitationStatus `db:"status" json:"status"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	ExpiresAt         time.Time        `db:"expires_at" json:"expires_at"`
}

// IsExpired reports whether a still-Pending invitation should be treated as
// Expired on read, per the lazy-expiry invariant.
func (inv Invitation) IsExpired(now time.Time) bool {
	return inv.Status == InvitationPending && now.After(inv.ExpiresAt)
}

// AuditEntry records an administrative or security-relevant action. Reader
// access and retention policy are intentionally undefined by spec (open
// question); only append is specified.
type AuditEntry struct {
	Id        string    `db:"id" json:"id"`
	ActorId   UserId    `db:"actor_id" json:"actor_id"`
	Action    string    `db:"action" json:"action"`
	Target    string    `db:"target" json:"target,omitempty"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
