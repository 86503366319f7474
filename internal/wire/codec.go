// Package wire implements component A: length-prefixed JSON framing,
// encrypted-frame wrapping, and the closed tagged-union client/server
// message variants of the connection protocol. Grounded on the framing
// discipline of the teacher's session.go read loop (a fixed-size length
// prefix ahead of a JSON payload) generalized from tinode's HTTP/WebSocket
// transport to a raw TCP socket, since spec section 4.A mandates the frame
// is not negotiated per-connection the way tinode negotiates WS vs
// long-poll.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/relaychat/server/internal/cryptox"
)

// MaxPayloadBytes is the largest allowed frame payload, per spec section
// 4.A: exactly 1 MiB is accepted, one byte more is rejected as
// frame_too_large.
const MaxPayloadBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadFrame reads one length-prefixed frame from r. It returns
// ProtocolError{FrameTooLarge} (fatal) if the declared length exceeds
// MaxPayloadBytes, or ProtocolError{ConnectionClosed} on EOF with no bytes
// read yet.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, newProtocolError(ErrConnectionClosed, "peer closed connection")
		}
		return nil, newProtocolErrorFromCause(ErrInvalidFrame, err, "reading length prefix: %v", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayloadBytes {
		return nil, newProtocolError(ErrFrameTooLarge, "declared length %d exceeds %d", n, MaxPayloadBytes)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, newProtocolErrorFromCause(ErrInvalidFrame, err, "reading payload: %v", err)
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w. Callers must
// have already enforced MaxPayloadBytes; WriteFrame itself never truncates.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return newProtocolError(ErrFrameTooLarge, "payload of %d bytes exceeds %d", len(payload), MaxPayloadBytes)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// SealFrame encrypts plaintext for transmission, producing the
// nonce(12B)‖ciphertext body spec section 4.A specifies for an encrypted
// frame.
func SealFrame(c *cryptox.Cipher, plaintext []byte) ([]byte, error) {
	sealed, err := c.Seal(plaintext)
	if err != nil {
		return nil, newProtocolError(ErrKeyExchangeFailed, "seal: %v", err)
	}
	return sealed, nil
}

// OpenFrame decrypts a received frame body. A failure here is always fatal:
// spec section 7 treats post-activation decryption failure as transport
// corruption.
func OpenFrame(c *cryptox.Cipher, framed []byte) ([]byte, error) {
	plaintext, err := c.Open(framed)
	if err != nil {
		return nil, newProtocolError(ErrDecryptionFailed, "%v", err)
	}
	return plaintext, nil
}

// envelope is used only to sniff the "type" discriminant before dispatching
// to the concrete struct; it is never returned to callers.
type envelope struct {
	Type Tag `json:"type"`
}

// DecodeClient parses a JSON payload into one of the client message
// structs, dispatching on its "type" tag, and runs struct-tag validation on
// the result so a FieldMissing-style failure surfaces uniformly regardless
// of variant.
func DecodeClient(payload []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, newProtocolError(ErrJSONParse, "%v", err)
	}

	var msg any
	switch env.Type {
	case TagClientHello:
		msg = &ClientHello{}
	case TagKeyExchange:
		msg = &KeyExchange{}
	case TagAuthenticate:
		msg = &Authenticate{}
	case TagLogin:
		msg = &Login{}
	case TagRegister:
		msg = &Register{}
	case TagPing:
		msg = &Ping{}
	case TagLogout:
		msg = &Logout{}
	case TagSendMessage:
		msg = &SendMessage{}
	case TagEditMessage:
		msg = &EditMessage{}
	case TagDeleteMessage:
		msg = &DeleteMessage{}
	case TagGetMessages:
		msg = &GetMessages{}
	case TagCreateRoom:
		msg = &CreateRoom{}
	case TagJoinRoom:
		msg = &JoinRoom{}
	case TagLeaveRoom:
		msg = &LeaveRoom{}
	case TagListRooms:
		msg = &ListRooms{}
	case TagAcceptInvitation:
		msg = &AcceptInvitation{}
	case TagDeclineInvitation:
		msg = &DeclineInvitation{}
	case TagTyping:
		msg = &Typing{}
	default:
		return nil, newProtocolError(ErrUnknownTag, "unrecognized type %q", env.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, newProtocolError(ErrJSONParse, "%v", err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, newProtocolError(ErrFieldMissing, "%v", err)
	}
	return msg, nil
}

// EncodeServer marshals a server message struct to its JSON wire form.
// Encoding a well-formed in-memory value is infallible per spec section
// 4.A; the error return exists only for json.Marshal's own contract
// (unsupported types, which none of the structs in this package exhibit).
func EncodeServer(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", msg, err)
	}
	return b, nil
}

// NewError builds an Error response frame for the given request (empty
// requestID for connection-level errors raised before any request ID is
// known).
func NewError(requestID string, code ErrorCode, message string) *Error {
	return &Error{Type: TagError, RequestId: requestID, Code: code, Message: message}
}
