// Package types defines the persistent entity shapes shared by the storage
// adapter, the transaction operations, and the command handler.
package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// UserId, RoomId, MessageId, SessionId and InvitationId are all opaque
// 128-bit identifiers. They share one underlying representation so the
// uniqueness/equality/hash semantics required by spec are identical across
// entities; the distinct Go types exist only to keep callers from mixing up
// which kind of id they are holding.
type rawID uuid.UUID

func newRawID() rawID {
	return rawID(uuid.New())
}

func parseRawID(s string) (rawID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return rawID{}, fmt.Errorf("types: invalid id %q: %w", s, err)
	}
	return rawID(u), nil
}

func (id rawID) String() string {
	return uuid.UUID(id).String()
}

func (id rawID) IsZero() bool {
	return id == rawID{}
}

func (id rawID) Value() (driver.Value, error) {
	return id.String(), nil
}

func (id *rawID) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := parseRawID(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case []byte:
		parsed, err := parseRawID(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case nil:
		*id = rawID{}
		return nil
	default:
		return fmt.Errorf("types: cannot scan %T into id", src)
	}
}

func (id rawID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

func (id *rawID) UnmarshalJSON(b []byte) error {
	if len(b) == 2 && b[0] == '"' && b[1] == '"' {
		*id = rawID{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("types: malformed id json %s", b)
	}
	parsed, err := parseRawID(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// UserId uniquely identifies a User.
type UserId rawID

// NewUserId generates a fresh random user id.
func NewUserId() UserId { return UserId(newRawID()) }

// ParseUserId parses the canonical string form of a user id.
func ParseUserId(s string) (UserId, error) {
	r, err := parseRawID(s)
	return UserId(r), err
}

func (id UserId) String() string       { return rawID(id).String() }
func (id UserId) IsZero() bool         { return rawID(id).IsZero() }
func (id UserId) MarshalJSON() ([]byte, error) { return rawID(id).MarshalJSON() }
func (id *UserId) UnmarshalJSON(b []byte) error { return (*rawID)(id).UnmarshalJSON(b) }
func (id UserId) Value() (driver.Value, error)  { return rawID(id).Value() }
func (id *UserId) Scan(src interface{}) error   { return (*rawID)(id).Scan(src) }

// RoomId uniquely identifies a Room.
type RoomId rawID

func NewRoomId() RoomId { return RoomId(newRawID()) }

func ParseRoomId(s string) (RoomId, error) {
	r, err := parseRawID(s)
	return RoomId(r), err
}

func (id RoomId) String() string       { return rawID(id).String() }
func (id RoomId) IsZero() bool         { return rawID(id).IsZero() }
func (id RoomId) MarshalJSON() ([]byte, error) { return rawID(id).MarshalJSON() }
func (id *RoomId) UnmarshalJSON(b []byte) error { return (*rawID)(id).UnmarshalJSON(b) }
func (id RoomId) Value() (driver.Value, error)  { return rawID(id).Value() }
func (id *RoomId) Scan(src interface{}) error   { return (*rawID)(id).Scan(src) }

// MessageId uniquely identifies a Message.
type MessageId rawID

func NewMessageId() MessageId { return MessageId(newRawID()) }

func ParseMessageId(s string) (MessageId, error) {
	r, err := parseRawID(s)
	return MessageId(r), err
}

func (id MessageId) String() string       { return rawID(id).String() }
func (id MessageId) IsZero() bool         { return rawID(id).IsZero() }
func (id MessageId) MarshalJSON() ([]byte, error) { return rawID(id).MarshalJSON() }
func (id *MessageId) UnmarshalJSON(b []byte) error { return (*rawID)(id).UnmarshalJSON(b) }
func (id MessageId) Value() (driver.Value, error)  { return rawID(id).Value() }
func (id *MessageId) Scan(src interface{}) error   { return (*rawID)(id).Scan(src) }

// SessionId uniquely identifies a Session.
type SessionId rawID

func NewSessionId() SessionId { return SessionId(newRawID()) }

func ParseSessionId(s string) (SessionId, error) {
	r, err := parseRawID(s)
	return SessionId(r), err
}

func (id SessionId) String() string       { return rawID(id).String() }
func (id SessionId) IsZero() bool         { return rawID(id).IsZero() }
func (id SessionId) MarshalJSON() ([]byte, error) { return rawID(id).MarshalJSON() }
func (id *SessionId) UnmarshalJSON(b []byte) error { return (*rawID)(id).UnmarshalJSON(b) }
func (id SessionId) Value() (driver.Value, error)  { return rawID(id).Value() }
func (id *SessionId) Scan(src interface{}) error   { return (*rawID)(id).Scan(src) }

// InvitationId uniquely identifies an Invitation.
type InvitationId rawID

func NewInvitationId() InvitationId { return InvitationId(newRawID()) }

func ParseInvitationId(s string) (InvitationId, error) {
	r, err := parseRawID(s)
	return InvitationId(r), err
}

func (id InvitationId) String() string       { return rawID(id).String() }
func (id InvitationId) IsZero() bool         { return rawID(id).IsZero() }
func (id InvitationId) MarshalJSON() ([]byte, error) { return rawID(id).MarshalJSON() }
func (id *InvitationId) UnmarshalJSON(b []byte) error { return (*rawID)(id).UnmarshalJSON(b) }
func (id InvitationId) Value() (driver.Value, error)  { return rawID(id).Value() }
func (id *InvitationId) Scan(src interface{}) error   { return (*rawID)(id).Scan(src) }
