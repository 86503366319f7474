package cryptox

import (
	"bytes"
	"testing"
)

func TestDerive_BothSidesAgreeOnKeys(t *testing.T) {
	client, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	server, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	clientSide, err := Derive(client, server.Public, []byte("relaychat-transport-v1"))
	if err != nil {
		t.Fatalf("Derive (client side): %v", err)
	}
	serverSide, err := Derive(server, client.Public, []byte("relaychat-transport-v1"))
	if err != nil {
		t.Fatalf("Derive (server side): %v", err)
	}

	if clientSide.ClientToServerKey != serverSide.ClientToServerKey {
		t.Error("client-to-server keys diverged between the two sides of the handshake")
	}
	if clientSide.ServerToClientKey != serverSide.ServerToClientKey {
		t.Error("server-to-client keys diverged between the two sides of the handshake")
	}
	if clientSide.ClientToServerKey == clientSide.ServerToClientKey {
		t.Error("the two directional keys must not collide")
	}
}

func TestDerive_DifferentInfoYieldsDifferentKeys(t *testing.T) {
	a, _ := GenerateKeyPair()
	b, _ := GenerateKeyPair()

	s1, err := Derive(a, b.Public, []byte("context-1"))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	s2, err := Derive(a, b.Public, []byte("context-2"))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if s1.ClientToServerKey == s2.ClientToServerKey {
		t.Error("distinct HKDF info strings must not collapse to the same key")
	}
}

func TestDerive_RejectsLowOrderPeerKey(t *testing.T) {
	local, _ := GenerateKeyPair()
	var zero [32]byte
	if _, err := Derive(local, zero, []byte("x")); err != ErrWeakPublicKey {
		t.Errorf("expected ErrWeakPublicKey for the all-zero point, got %v", err)
	}
}

func TestCipher_SealOpenRoundTrip(t *testing.T) {
	var key [keySize]byte
	copy(key[:], bytes.Repeat([]byte{0x42}, keySize))

	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	plaintext := []byte("hello room")
	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(sealed) < NonceSize {
		t.Fatalf("sealed output shorter than nonce: %d bytes", len(sealed))
	}
	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened = %q, want %q", opened, plaintext)
	}
}

func TestCipher_SealProducesFreshNonceEachTime(t *testing.T) {
	var key [keySize]byte
	copy(key[:], bytes.Repeat([]byte{0x07}, keySize))
	c, _ := NewCipher(key)

	a, err := c.Seal([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := c.Seal([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("sealing the same plaintext twice must not produce identical ciphertext")
	}
}

func TestCipher_OpenRejectsTamperedCiphertext(t *testing.T) {
	var key [keySize]byte
	copy(key[:], bytes.Repeat([]byte{0x11}, keySize))
	c, _ := NewCipher(key)

	sealed, _ := c.Seal([]byte("integrity matters"))
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := c.Open(tampered); err == nil {
		t.Error("expected Open to reject a tampered frame")
	}
}

func TestCipher_OpenRejectsShortFrame(t *testing.T) {
	var key [keySize]byte
	c, _ := NewCipher(key)
	if _, err := c.Open([]byte{1, 2, 3}); err == nil {
		t.Error("expected Open to reject a frame shorter than the nonce")
	}
}
