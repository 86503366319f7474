package wire

import (
	"errors"
	"testing"
)

func TestProtocolErrorKind_Fatal(t *testing.T) {
	cases := map[ProtocolErrorKind]bool{
		ErrFrameTooLarge:     true,
		ErrConnectionClosed:  true,
		ErrDecryptionFailed:  true,
		ErrInvalidFrame:      false,
		ErrJSONParse:         false,
		ErrUnknownTag:        false,
		ErrFieldMissing:      false,
		ErrKeyExchangeFailed: false,
	}
	for kind, want := range cases {
		if got := kind.Fatal(); got != want {
			t.Errorf("%s.Fatal() = %v, want %v", kind, got, want)
		}
	}
}

func TestProtocolError_UnwrapsToCause(t *testing.T) {
	sentinel := errors.New("underlying failure")
	err := newProtocolErrorFromCause(ErrInvalidFrame, sentinel, "frame rejected")

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped cause")
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As should recover the *ProtocolError")
	}
	if pe.Kind != ErrInvalidFrame {
		t.Errorf("Kind = %v, want ErrInvalidFrame", pe.Kind)
	}
}

func TestProtocolError_WithoutCauseHasNilUnwrap(t *testing.T) {
	err := newProtocolError(ErrUnknownTag, "tag %q", "Bogus")
	if err.Unwrap() != nil {
		t.Error("Unwrap should be nil when no cause was supplied")
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}
