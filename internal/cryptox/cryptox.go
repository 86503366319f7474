// Package cryptox implements the per-connection transport encryption of
// component B: an ephemeral X25519 key exchange followed by HKDF key
// derivation and ChaCha20-Poly1305 AEAD framing. golang.org/x/crypto is
// already part of the corpus's dependency surface (the teacher's go.mod
// lists it, and marmos91-dittofs's pkg/identity/credential.go leans on its
// bcrypt package for password hashing); this package exercises three more
// of its subpackages for the handshake itself.
package cryptox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

func newSHA256() hash.Hash { return sha256.New() }

const (
	// NonceSize is the ChaCha20-Poly1305 nonce length carried on the wire
	// ahead of every encrypted frame's ciphertext.
	NonceSize = chacha20poly1305.NonceSize
	keySize   = chacha20poly1305.KeySize
)

var (
	// ErrWeakPublicKey is returned when a peer's X25519 public key is the
	// all-zero point or another known low-order point, which would collapse
	// the shared secret to a constant regardless of the local private key.
	ErrWeakPublicKey = errors.New("cryptox: peer public key is a low-order point")
)

// KeyPair is an ephemeral X25519 key pair generated fresh per connection.
// Keys never persist past the handshake: there is no KeyPair.Save, by
// design, since spec section 4.B treats every session's transport key as
// single-use.
type KeyPair struct {
	private [32]byte
	Public  [32]byte
}

// GenerateKeyPair creates a new ephemeral X25519 key pair using a CSPRNG.
func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.private[:]); err != nil {
		return nil, fmt.Errorf("cryptox: generate private scalar: %w", err)
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("cryptox: derive public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// lowOrderPoints lists two small-subgroup points of Curve25519 (zero and
// one) that an adversarial peer could send to force a predictable shared
// secret. The other low-order points are not in this list.
var lowOrderPoints = [][32]byte{
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
}

func isLowOrder(pub [32]byte) bool {
	for _, p := range lowOrderPoints {
		if p == pub {
			return true
		}
	}
	return false
}

// SharedSecret performs the X25519 Diffie-Hellman exchange against a peer's
// public key and derives symmetric send/receive keys via HKDF-SHA256. The
// two derived keys differ so that each direction of a connection uses an
// independent ChaCha20-Poly1305 key, avoiding nonce-reuse hazards between a
// client's and server's send streams sharing one key.
type SharedSecret struct {
	ClientToServerKey [keySize]byte
	ServerToClientKey [keySize]byte
}

// Derive computes the shared secret from the local key pair and a peer's
// public key, then expands it into the two directional session keys. info
// distinguishes this handshake's derivation from any other use of the same
// raw DH output (HKDF's standard domain-separation role).
func Derive(local *KeyPair, peerPublic [32]byte, info []byte) (*SharedSecret, error) {
	if isLowOrder(peerPublic) {
		return nil, ErrWeakPublicKey
	}
	raw, err := curve25519.X25519(local.private[:], peerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: compute shared point: %w", err)
	}

	reader := hkdf.New(newSHA256, raw, nil, info)
	var out SharedSecret
	if _, err := io.ReadFull(reader, out.ClientToServerKey[:]); err != nil {
		return nil, fmt.Errorf("cryptox: expand client-to-server key: %w", err)
	}
	if _, err := io.ReadFull(reader, out.ServerToClientKey[:]); err != nil {
		return nil, fmt.Errorf("cryptox: expand server-to-client key: %w", err)
	}
	return &out, nil
}

// Cipher wraps one direction's ChaCha20-Poly1305 AEAD key, used by the
// session writer (component I) to seal outbound frames and the connection
// reader to open inbound ones.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher constructs a Cipher bound to key.
func NewCipher(key [keySize]byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: construct aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext under a freshly generated random nonce and returns
// nonce‖ciphertext, matching the wire layout spec section 4.A.3 specifies
// for an encrypted frame body.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	out := make([]byte, 0, NonceSize+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Open splits a nonce‖ciphertext frame body and authenticates/decrypts it.
func (c *Cipher) Open(framed []byte) ([]byte, error) {
	if len(framed) < NonceSize {
		return nil, errors.New("cryptox: frame shorter than nonce")
	}
	nonce, ciphertext := framed[:NonceSize], framed[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: open frame: %w", err)
	}
	return plaintext, nil
}
