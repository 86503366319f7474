package session

import (
	"testing"

	"github.com/relaychat/server/internal/cryptox"
)

func testCipher(t *testing.T, seed byte) *cryptox.Cipher {
	t.Helper()
	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	peer, err := cryptox.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	secret, err := cryptox.Derive(kp, peer.Public, []byte{seed})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	c, err := cryptox.NewCipher(secret.ClientToServerKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestCipherSlot_BeforeInstall(t *testing.T) {
	var slot cipherSlot
	if slot.forRead() != nil {
		t.Error("forRead should be nil before install")
	}
	wc, pending := slot.forWrite()
	if wc != nil || pending {
		t.Error("forWrite should be nil/false before install")
	}
}

func TestCipherSlot_InstallStartsWritePending(t *testing.T) {
	var slot cipherSlot
	read := testCipher(t, 1)
	write := testCipher(t, 2)
	slot.install(read, write)

	if slot.forRead() != read {
		t.Error("forRead should return the installed read cipher immediately")
	}
	wc, pending := slot.forWrite()
	if wc != write {
		t.Error("forWrite should return the installed write cipher")
	}
	if !pending {
		t.Error("write side must start pending so the key-exchange response frame leaves unencrypted")
	}
}

func TestCipherSlot_ActivateClearsPending(t *testing.T) {
	var slot cipherSlot
	slot.install(testCipher(t, 3), testCipher(t, 4))
	slot.activate()

	_, pending := slot.forWrite()
	if pending {
		t.Error("activate should clear the pending flag")
	}
	if slot.forRead() == nil {
		t.Error("activate must not affect the read cipher")
	}
}
