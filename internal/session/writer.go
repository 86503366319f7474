package session

import (
	"io"
	"log/slog"

	"github.com/relaychat/server/internal/wire"
)

// outboundCapacity is the writer's bounded mpsc channel capacity, per spec
// section 4.I.
const outboundCapacity = 100

// writer owns the write half of the socket and is the only task that
// writes to it, matching spec section 4.I's single-writer discipline: frame
// atomicity and monotone cipher activation both depend on nothing else ever
// calling WriteFrame concurrently.
type writer struct {
	w      io.Writer
	slot   *cipherSlot
	log    *slog.Logger
	out    chan any
	exited chan struct{}
}

func newWriter(w io.Writer, slot *cipherSlot, log *slog.Logger) *writer {
	return &writer{w: w, slot: slot, log: log, out: make(chan any, outboundCapacity), exited: make(chan struct{})}
}

// send enqueues msg for the writer. Per spec section 5, backpressure from a
// full outbound channel is desired: callers are expected to block here.
func (wr *writer) send(msg any) {
	wr.out <- msg
}

// closeOutbound drops the outbound channel so the writer drains and exits,
// per the shutdown sequence of spec section 4.H.
func (wr *writer) closeOutbound() {
	close(wr.out)
}

// run drains the outbound channel until it is closed or a write fails. It
// never returns an error; failures are logged and simply end the loop,
// which is the signal for the rest of the connection to tear down.
func (wr *writer) run() {
	defer close(wr.exited)
	for msg := range wr.out {
		if err := wr.writeOne(msg); err != nil {
			wr.log.Warn("session writer: write failed, closing connection", "error", err)
			return
		}
	}
}

func (wr *writer) writeOne(msg any) error {
	payload, err := wire.EncodeServer(msg)
	if err != nil {
		return err
	}

	cipher, pending := wr.slot.forWrite()
	if cipher != nil && !pending {
		payload, err = wire.SealFrame(cipher, payload)
		if err != nil {
			return err
		}
	}

	if err := wire.WriteFrame(wr.w, payload); err != nil {
		return err
	}

	if cipher != nil && pending {
		wr.slot.activate()
	}
	return nil
}
