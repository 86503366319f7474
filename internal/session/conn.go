// Package session implements components H and I: the per-TCP-connection
// state machine, its writer task, and the event listener sub-task. Grounded
// on the teacher's Session/queueOut discipline in server/session.go —
// bounded outbound channel, single writer, explicit cleanup — generalized
// from a WebSocket/long-poll/gRPC transport to a single raw TCP framing.
package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"log/slog"

	"github.com/relaychat/server/internal/command"
	"github.com/relaychat/server/internal/cryptox"
	t "github.com/relaychat/server/internal/store/types"
	"github.com/relaychat/server/internal/wire"
)

// Conn drives one accepted TCP socket through the AwaitingHandshake →
// AwaitingKeyExchange → AwaitingAuth → Authenticated → Closing sequence of
// spec section 4.H. It owns the read half directly; the write half is
// owned exclusively by its writer.
type Conn struct {
	nc  net.Conn
	h   *command.Handler
	log *slog.Logger

	state state
	slot  cipherSlot
	wr    *writer

	localKeys *cryptox.KeyPair

	actor      command.Actor
	lstCancel  context.CancelFunc
	lst        *listener
	lstStopped chan struct{}
}

// New wraps an accepted connection. Run must be called to drive it.
func New(nc net.Conn, h *command.Handler, log *slog.Logger) *Conn {
	return &Conn{
		nc:    nc,
		h:     h,
		log:   log.With("remote", nc.RemoteAddr().String()),
		state: stateAwaitingHandshake,
	}
}

// Run drives the connection to completion. It blocks until the read loop
// ends: the socket is closed, a read times out, or a fatal protocol error,
// version mismatch or Logout ends the session. Cancelling ctx does not
// interrupt a blocked read.
func (c *Conn) Run(ctx context.Context) {
	c.wr = newWriter(c.nc, &c.slot, c.log)
	go c.wr.run()

	c.wr.send(&wire.ServerHello{Type: wire.TagServerHello, Version: protocolVersion, Features: supportedFeatures})

	c.readLoop(ctx)
	c.shutdown(ctx)
}

func (c *Conn) readLoop(ctx context.Context) {
	for c.state != stateClosing {
		if dl := c.state.readTimeout(); dl > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(dl))
		}

		raw, err := wire.ReadFrame(c.nc)
		if err != nil {
			c.handleReadError(err)
			return
		}

		payload := raw
		if rc := c.slot.forRead(); rc != nil {
			plain, oerr := wire.OpenFrame(rc, raw)
			if oerr != nil {
				c.log.Warn("decryption failure, closing", "error", oerr)
				return
			}
			payload = plain
		}

		msg, derr := wire.DecodeClient(payload)
		if derr != nil {
			c.wr.send(wire.NewError("", wire.CodeInvalidMessage, derr.Error()))
			continue
		}

		if !c.step(ctx, msg) {
			return
		}
	}
}

func (c *Conn) handleReadError(err error) {
	var pe *wire.ProtocolError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case wire.ErrConnectionClosed:
			return
		case wire.ErrFrameTooLarge:
			c.wr.send(wire.NewError("", wire.CodeFrameTooLarge, pe.Message))
			return
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.wr.send(wire.NewError("", wire.CodeTimeout, "read timed out"))
		return
	}
	c.log.Debug("read loop ended", "error", err)
}

// step processes one decoded message against the current state. It returns
// false when the read loop should stop (fatal condition or version
// mismatch already answered).
func (c *Conn) step(ctx context.Context, msg any) bool {
	switch c.state {
	case stateAwaitingHandshake:
		return c.handleHandshake(msg)
	case stateAwaitingKeyExchange:
		return c.handleKeyExchange(msg)
	case stateAwaitingAuth:
		return c.handleAuth(ctx, msg)
	case stateAuthenticated:
		return c.handleAuthenticated(ctx, msg)
	default:
		return false
	}
}

func (c *Conn) handleHandshake(msg any) bool {
	switch m := msg.(type) {
	case *wire.Ping:
		c.wr.send(&wire.Pong{Type: wire.TagPong})
		return true
	case *wire.ClientHello:
		if !strings.HasPrefix(m.Version, "1.") {
			c.wr.send(wire.NewError("", wire.CodeVersionMismatch, "unsupported protocol version "+m.Version))
			c.state = stateClosing
			return false
		}
		wantsEncryption := false
		for _, f := range m.Features {
			if f == "encryption" {
				wantsEncryption = true
				break
			}
		}
		if wantsEncryption {
			kp, err := cryptox.GenerateKeyPair()
			if err != nil {
				c.log.Warn("key pair generation failed", "error", err)
				c.state = stateClosing
				return false
			}
			c.localKeys = kp
			c.state = stateAwaitingKeyExchange
		} else {
			c.state = stateAwaitingAuth
		}
		return true
	default:
		c.wr.send(wire.NewError("", wire.CodeUnauthorized, "expected ClientHello"))
		return true
	}
}

func (c *Conn) handleKeyExchange(msg any) bool {
	switch m := msg.(type) {
	case *wire.Ping:
		c.wr.send(&wire.Pong{Type: wire.TagPong})
		return true
	case *wire.KeyExchange:
		var peerPub [32]byte
		copy(peerPub[:], m.PublicKey)

		secret, err := cryptox.Derive(c.localKeys, peerPub, []byte("relaychat-transport-v1"))
		if err != nil {
			c.wr.send(wire.NewError("", wire.CodeKeyExchangeFailed, err.Error()))
			c.state = stateClosing
			return false
		}
		readCipher, err := cryptox.NewCipher(secret.ClientToServerKey)
		if err != nil {
			c.state = stateClosing
			return false
		}
		writeCipher, err := cryptox.NewCipher(secret.ServerToClientKey)
		if err != nil {
			c.state = stateClosing
			return false
		}

		// install must happen before send: the writer goroutine dequeues
		// asynchronously, and it must always observe pending=true together
		// with a non-nil cipher for this frame, so it takes the deliberate
		// plaintext-then-activate branch instead of the nil-cipher one.
		c.slot.install(readCipher, writeCipher)
		c.wr.send(&wire.KeyExchangeResponse{Type: wire.TagKeyExchangeResponse, PublicKey: c.localKeys.Public[:]})

		c.state = stateAwaitingAuth
		return true
	default:
		c.wr.send(wire.NewError("", wire.CodeUnauthorized, "expected KeyExchange"))
		return true
	}
}

func (c *Conn) handleAuth(ctx context.Context, msg any) bool {
	switch m := msg.(type) {
	case *wire.Ping:
		c.wr.send(&wire.Pong{Type: wire.TagPong})
		return true
	case *wire.Authenticate:
		attach, resp := c.h.Authenticate(ctx, m)
		if attach == nil {
			c.wr.send(wire.NewError(m.RequestId, wire.CodeUnauthorized, "invalid or expired token"))
			return true
		}
		c.attach(ctx, attach.User.Id, attach.Session.Id)
		c.wr.send(resp)
		return true
	case *wire.Login:
		attach, resp := c.h.Login(ctx, m)
		if attach == nil {
			c.wr.send(wire.NewError(m.RequestId, wire.CodeUnauthorized, "invalid credentials"))
			return true
		}
		c.attach(ctx, attach.User.Id, attach.Session.Id)
		c.wr.send(resp)
		return true
	case *wire.Register:
		attach, resp := c.h.Register(ctx, m)
		if attach == nil {
			c.wr.send(wire.NewError(m.RequestId, wire.CodeAlreadyExists, "registration failed"))
			return true
		}
		c.attach(ctx, attach.User.Id, attach.Session.Id)
		c.wr.send(resp)
		return true
	default:
		c.wr.send(wire.NewError("", wire.CodeUnauthorized, "not authenticated"))
		return true
	}
}

// attach transitions to Authenticated, emits UserOnline, and spawns the
// event listener sub-task, per spec section 4.H's authentication rules.
func (c *Conn) attach(ctx context.Context, userID t.UserId, sessionID t.SessionId) {
	c.actor = command.Actor{UserID: userID, SessionID: sessionID}
	c.state = stateAuthenticated
	c.h.PublishUserOnline(ctx, userID)

	sub := c.h.Bus().Subscribe()
	c.lst = newListener(sub, c.h.Ops().Adapter(), userID, c.wr, c.log)
	lstCtx, cancel := context.WithCancel(context.Background())
	c.lstCancel = cancel
	c.lstStopped = make(chan struct{})
	go func() {
		defer close(c.lstStopped)
		c.lst.run(lstCtx)
	}()
}

func (c *Conn) handleAuthenticated(ctx context.Context, msg any) bool {
	if _, ok := msg.(*wire.Logout); ok {
		resp := c.h.Dispatch(ctx, c.actor, msg)
		if resp != nil {
			c.wr.send(resp)
		}
		c.state = stateClosing
		return false
	}

	resp := c.h.Dispatch(ctx, c.actor, msg)
	if resp != nil {
		c.wr.send(resp)
	}
	return true
}

// shutdown runs the terminal sequence of spec section 4.H regardless of
// which condition ended the read loop: abort the listener, emit
// UserOffline if the connection ever authenticated, drop the outbound
// channel so the writer drains, and wait for it.
func (c *Conn) shutdown(ctx context.Context) {
	if c.lstCancel != nil {
		c.lstCancel()
		<-c.lstStopped
		c.h.PublishUserOffline(ctx, c.actor.UserID)
	}
	c.wr.closeOutbound()
	<-c.wr.exited
	_ = c.nc.Close()
}
