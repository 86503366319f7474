package wire

import t "github.com/relaychat/server/internal/store/types"

// Tag identifies the wire-level variant of a client or server message, the
// "type" discriminant of spec section 4.A's closed tagged union.
type Tag string

// Client tags.
const (
	TagClientHello      Tag = "ClientHello"
	TagKeyExchange      Tag = "KeyExchange"
	TagAuthenticate     Tag = "Authenticate"
	TagLogin            Tag = "Login"    // deprecated
	TagRegister         Tag = "Register" // deprecated
	TagPing             Tag = "Ping"
	TagLogout           Tag = "Logout"
	TagSendMessage      Tag = "SendMessage"
	TagEditMessage      Tag = "EditMessage"
	TagDeleteMessage    Tag = "DeleteMessage"
	TagGetMessages      Tag = "GetMessages" // deprecated
	TagCreateRoom       Tag = "CreateRoom"  // deprecated
	TagJoinRoom         Tag = "JoinRoom"
	TagLeaveRoom        Tag = "LeaveRoom"
	TagListRooms        Tag = "ListRooms" // deprecated
	TagAcceptInvitation Tag = "AcceptInvitation"
	TagDeclineInvitation Tag = "DeclineInvitation"
	TagTyping           Tag = "Typing"
)

// Server tags: responses mirror the request, plus push events named after
// the corresponding event.Kind.
const (
	TagServerHello           Tag = "ServerHello"
	TagKeyExchangeResponse   Tag = "KeyExchangeResponse"
	TagError                 Tag = "Error"
	TagPong                  Tag = "Pong"
	TagAuthenticateResponse  Tag = "AuthenticateResponse"
	TagLoginResponse         Tag = "LoginResponse"
	TagRegisterResponse      Tag = "RegisterResponse"
	TagLogoutResponse        Tag = "LogoutResponse"
	TagSendMessageResponse   Tag = "SendMessageResponse"
	TagEditMessageResponse   Tag = "EditMessageResponse"
	TagDeleteMessageResponse Tag = "DeleteMessageResponse"
	TagGetMessagesResponse   Tag = "GetMessagesResponse"
	TagCreateRoomResponse    Tag = "CreateRoomResponse"
	TagJoinRoomResponse      Tag = "JoinRoomResponse"
	TagLeaveRoomResponse     Tag = "LeaveRoomResponse"
	TagListRoomsResponse     Tag = "ListRoomsResponse"
	TagAcceptInvitationResponse  Tag = "AcceptInvitationResponse"
	TagDeclineInvitationResponse Tag = "DeclineInvitationResponse"

	TagMessageReceived    Tag = "MessageReceived"
	TagMessageEdited      Tag = "MessageEdited"
	TagMessageDeleted     Tag = "MessageDeleted"
	TagUserJoinedRoom     Tag = "UserJoinedRoom"
	TagUserLeftRoom       Tag = "UserLeftRoom"
	TagMemberRoleChanged  Tag = "MemberRoleChanged"
	TagRoomUpdated        Tag = "RoomUpdated"
	TagRoomDeleted        Tag = "RoomDeleted"
	TagUserOnline         Tag = "UserOnline"
	TagUserOffline        Tag = "UserOffline"
	TagUserTyping         Tag = "UserTyping"
	TagInvitationReceived Tag = "InvitationReceived"
	TagInvitationCancelled Tag = "InvitationCancelled"
	TagSessionExpiring    Tag = "SessionExpiring"
	TagServerNotice       Tag = "ServerNotice"
)

// Target names either a room or a direct-message counterpart for
// SendMessage/Typing; exactly one field is set.
type Target struct {
	RoomId   *t.RoomId `json:"room_id,omitempty"`
	DMUserId *t.UserId `json:"dm_user_id,omitempty"`
}

// --- Client messages ---

type ClientHello struct {
	Type     Tag      `json:"type"`
	Version  string   `json:"version" validate:"required"`
	Features []string `json:"features,omitempty"`
}

type KeyExchange struct {
	Type      Tag    `json:"type"`
	PublicKey []byte `json:"public_key" validate:"required,len=32"`
}

type Authenticate struct {
	Type      Tag    `json:"type"`
	RequestId string `json:"request_id" validate:"required"`
	Token     string `json:"token" validate:"required"`
}

// Login is the deprecated direct-credential authentication path.
type Login struct {
	Type       Tag    `json:"type"`
	RequestId  string `json:"request_id" validate:"required"`
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Register is the deprecated direct-credential account creation path.
type Register struct {
	Type        Tag    `json:"type"`
	RequestId   string `json:"request_id" validate:"required"`
	Username    string `json:"username" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name,omitempty"`
}

type Ping struct {
	Type Tag `json:"type"`
}

type Logout struct {
	Type      Tag    `json:"type"`
	RequestId string `json:"request_id" validate:"required"`
}

type SendMessage struct {
	Type      Tag    `json:"type"`
	RequestId string `json:"request_id" validate:"required"`
	Target    Target `json:"target" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type EditMessage struct {
	Type      Tag          `json:"type"`
	RequestId string       `json:"request_id" validate:"required"`
	MessageId t.MessageId  `json:"message_id" validate:"required"`
	Content   string       `json:"content" validate:"required"`
}

type DeleteMessage struct {
	Type      Tag         `json:"type"`
	RequestId string      `json:"request_id" validate:"required"`
	MessageId t.MessageId `json:"message_id" validate:"required"`
}

// GetMessages is deprecated; JoinRoom-adjacent room history retrieval now
// lives behind a REST endpoint, but this in-band form must still work.
type GetMessages struct {
	Type      Tag      `json:"type"`
	RequestId string   `json:"request_id" validate:"required"`
	RoomId    t.RoomId `json:"room_id" validate:"required"`
	BeforeId  *t.MessageId `json:"before_id,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// CreateRoom is deprecated; room creation now normally happens over REST,
// but the in-band transaction path must remain correct.
type CreateRoom struct {
	Type        Tag            `json:"type"`
	RequestId   string         `json:"request_id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	RoomType    t.RoomType     `json:"room_type" validate:"required"`
	Privacy     t.RoomPrivacy  `json:"privacy" validate:"required"`
}

type JoinRoom struct {
	Type      Tag      `json:"type"`
	RequestId string   `json:"request_id" validate:"required"`
	RoomId    t.RoomId `json:"room_id" validate:"required"`
}

type LeaveRoom struct {
	Type      Tag      `json:"type"`
	RequestId string   `json:"request_id" validate:"required"`
	RoomId    t.RoomId `json:"room_id" validate:"required"`
}

type ListRooms struct {
	Type      Tag    `json:"type"`
	RequestId string `json:"request_id" validate:"required"`
}

type AcceptInvitation struct {
	Type         Tag            `json:"type"`
	RequestId    string         `json:"request_id" validate:"required"`
	InvitationId t.InvitationId `json:"invitation_id" validate:"required"`
}

type DeclineInvitation struct {
	Type         Tag            `json:"type"`
	RequestId    string         `json:"request_id" validate:"required"`
	InvitationId t.InvitationId `json:"invitation_id" validate:"required"`
}

type Typing struct {
	Type   Tag    `json:"type"`
	Target Target `json:"target" validate:"required"`
}

// --- Server messages ---

type ServerHello struct {
	Type     Tag      `json:"type"`
	Version  string   `json:"version"`
	Features []string `json:"features,omitempty"`
}

type KeyExchangeResponse struct {
	Type      Tag    `json:"type"`
	PublicKey []byte `json:"public_key"`
}

type Error struct {
	Type      Tag       `json:"type"`
	RequestId string    `json:"request_id,omitempty"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
}

type Pong struct {
	Type Tag `json:"type"`
}

// UserView is the public projection of a User returned over the wire;
// PasswordHash never leaves the store.
type UserView struct {
	Id          t.UserId   `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        t.UserRole `json:"role"`
}

func NewUserView(u *t.User) UserView {
	return UserView{Id: u.Id, Username: u.Username, DisplayName: u.DisplayName, Role: u.Role}
}

type SessionView struct {
	Id        t.SessionId `json:"id"`
	ExpiresAt int64       `json:"expires_at"`
}

type AuthenticateResponse struct {
	Type      Tag          `json:"type"`
	RequestId string       `json:"request_id"`
	Success   bool         `json:"success"`
	User      *UserView    `json:"user,omitempty"`
	Session   *SessionView `json:"session,omitempty"`
}

// LoginResponse and RegisterResponse mirror AuthenticateResponse's shape;
// kept distinct because they are deprecated commands and may drift in
// error handling independently of Authenticate.
type LoginResponse struct {
	Type      Tag          `json:"type"`
	RequestId string       `json:"request_id"`
	Success   bool         `json:"success"`
	User      *UserView    `json:"user,omitempty"`
	Session   *SessionView `json:"session,omitempty"`
}

type RegisterResponse struct {
	Type      Tag          `json:"type"`
	RequestId string       `json:"request_id"`
	Success   bool         `json:"success"`
	User      *UserView    `json:"user,omitempty"`
	Session   *SessionView `json:"session,omitempty"`
}

type LogoutResponse struct {
	Type      Tag    `json:"type"`
	RequestId string `json:"request_id"`
	Success   bool   `json:"success"`
}

type MessageView struct {
	Id        t.MessageId `json:"id"`
	RoomId    *t.RoomId   `json:"room_id,omitempty"`
	DMPair    *string     `json:"dm_pair,omitempty"`
	Author    t.UserId    `json:"author"`
	Content   string      `json:"content"`
	CreatedAt int64       `json:"created_at"`
	EditedAt  *int64      `json:"edited_at,omitempty"`
}

type SendMessageResponse struct {
	Type      Tag         `json:"type"`
	RequestId string      `json:"request_id"`
	Message   MessageView `json:"message"`
}

type EditMessageResponse struct {
	Type      Tag         `json:"type"`
	RequestId string      `json:"request_id"`
	Message   MessageView `json:"message"`
}

type DeleteMessageResponse struct {
	Type      Tag         `json:"type"`
	RequestId string      `json:"request_id"`
	MessageId t.MessageId `json:"message_id"`
}

type GetMessagesResponse struct {
	Type      Tag           `json:"type"`
	RequestId string        `json:"request_id"`
	Messages  []MessageView `json:"messages"`
}

type RoomView struct {
	Id          t.RoomId      `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Type        t.RoomType    `json:"type"`
	Privacy     t.RoomPrivacy `json:"privacy"`
	CreatedBy   t.UserId      `json:"created_by"`
}

func NewRoomView(r *t.Room) RoomView {
	return RoomView{Id: r.Id, Name: r.Name, Description: r.Description, Type: r.Type, Privacy: r.Privacy, CreatedBy: r.CreatedBy}
}

type MembershipView struct {
	RoomId t.RoomId           `json:"room_id"`
	UserId t.UserId           `json:"user_id"`
	Role   t.MembershipRole   `json:"role"`
	Status t.MembershipStatus `json:"status"`
}

func NewMembershipView(m *t.Membership) MembershipView {
	return MembershipView{RoomId: m.RoomId, UserId: m.UserId, Role: m.Role, Status: m.Status}
}

type CreateRoomResponse struct {
	Type      Tag      `json:"type"`
	RequestId string   `json:"request_id"`
	Room      RoomView `json:"room"`
}

type JoinRoomResponse struct {
	Type       Tag            `json:"type"`
	RequestId  string         `json:"request_id"`
	Room       RoomView       `json:"room"`
	Membership MembershipView `json:"membership"`
}

type LeaveRoomResponse struct {
	Type      Tag    `json:"type"`
	RequestId string `json:"request_id"`
}

type ListRoomsResponse struct {
	Type      Tag        `json:"type"`
	RequestId string     `json:"request_id"`
	Rooms     []RoomView `json:"rooms"`
}

type InvitationView struct {
	Id              t.InvitationId     `json:"id"`
	RoomId          t.RoomId           `json:"room_id"`
	SenderUserId    t.UserId           `json:"sender_user_id"`
	RecipientUserId t.UserId           `json:"recipient_user_id"`
	Status          t.InvitationStatus `json:"status"`
}

func NewInvitationView(inv *t.Invitation) InvitationView {
	return InvitationView{Id: inv.Id, RoomId: inv.RoomId, SenderUserId: inv.SenderUserId, RecipientUserId: inv.RecipientUserId, Status: inv.Status}
}

type AcceptInvitationResponse struct {
	Type       Tag            `json:"type"`
	RequestId  string         `json:"request_id"`
	Invitation InvitationView `json:"invitation"`
	Membership MembershipView `json:"membership"`
}

type DeclineInvitationResponse struct {
	Type       Tag            `json:"type"`
	RequestId  string         `json:"request_id"`
	Invitation InvitationView `json:"invitation"`
}

// --- Push events (server -> client, unsolicited) ---

type MessageReceivedPush struct {
	Type           Tag         `json:"type"`
	Message        MessageView `json:"message"`
	AuthorUsername string      `json:"author_username"`
}

type MessageEditedPush struct {
	Type    Tag         `json:"type"`
	Message MessageView `json:"message"`
}

type MessageDeletedPush struct {
	Type      Tag         `json:"type"`
	MessageId t.MessageId `json:"message_id"`
	RoomId    *t.RoomId   `json:"room_id,omitempty"`
}

type UserJoinedRoomPush struct {
	Type   Tag      `json:"type"`
	RoomId t.RoomId `json:"room_id"`
	UserId t.UserId `json:"user_id"`
}

type UserLeftRoomPush struct {
	Type   Tag      `json:"type"`
	RoomId t.RoomId `json:"room_id"`
	UserId t.UserId `json:"user_id"`
}

type MemberRoleChangedPush struct {
	Type    Tag                `json:"type"`
	RoomId  t.RoomId           `json:"room_id"`
	UserId  t.UserId           `json:"user_id"`
	NewRole t.MembershipRole   `json:"new_role"`
	ActorId t.UserId           `json:"actor_id"`
}

type RoomUpdatedPush struct {
	Type Tag      `json:"type"`
	Room RoomView `json:"room"`
}

type RoomDeletedPush struct {
	Type   Tag      `json:"type"`
	RoomId t.RoomId `json:"room_id"`
}

type UserOnlinePush struct {
	Type   Tag      `json:"type"`
	UserId t.UserId `json:"user_id"`
}

type UserOfflinePush struct {
	Type   Tag      `json:"type"`
	UserId t.UserId `json:"user_id"`
}

type UserTypingPush struct {
	Type   Tag      `json:"type"`
	UserId t.UserId `json:"user_id"`
	Target Target   `json:"target"`
}

type InvitationReceivedPush struct {
	Type       Tag            `json:"type"`
	Invitation InvitationView `json:"invitation"`
}

type InvitationCancelledPush struct {
	Type         Tag            `json:"type"`
	InvitationId t.InvitationId `json:"invitation_id"`
}

type SessionExpiringPush struct {
	Type      Tag         `json:"type"`
	SessionId t.SessionId `json:"session_id"`
}

type ServerNoticePush struct {
	Type   Tag    `json:"type"`
	Notice string `json:"notice"`
}
