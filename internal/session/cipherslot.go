package session

import (
	"sync"

	"github.com/relaychat/server/internal/cryptox"
)

// cipherSlot is the small shared cell described in spec section 5: read by
// the writer on every frame, read by the reader at the start of every
// frame, and mutated twice in a connection's lifetime: install at key
// exchange, then activate after the one plaintext write. It carries two independent ciphers, one per direction, since
// cryptox.Derive hands back distinct client-to-server and server-to-client
// keys.
//
// The write side alone has a pending phase: per spec section 4.H, the
// KeyExchangeResponse frame itself must still leave the socket unencrypted
// even though the cipher already exists, so the writer needs to know "this
// frame is the one exception" for exactly one send. Reads switch to
// encrypted the instant the cipher is installed, so the read side has no
// such phase.
type cipherSlot struct {
	mu          sync.RWMutex
	readCipher  *cryptox.Cipher
	writeCipher *cryptox.Cipher
	pending     bool
}

// install sets both directional ciphers. The write side starts pending: the
// writer must send exactly one more frame unencrypted before activate.
func (s *cipherSlot) install(read, write *cryptox.Cipher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readCipher = read
	s.writeCipher = write
	s.pending = true
}

// forRead returns the read-direction cipher, or nil before key exchange.
func (s *cipherSlot) forRead() *cryptox.Cipher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readCipher
}

// forWrite returns the write-direction cipher and whether it is still
// pending (meaning: send this one frame unencrypted regardless).
func (s *cipherSlot) forWrite() (*cryptox.Cipher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeCipher, s.pending
}

// activate flips pending off after the writer has sent the one frame that
// must travel unencrypted following install.
func (s *cipherSlot) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
}
