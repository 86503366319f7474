package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	t "github.com/relaychat/server/internal/store/types"
)

const testKey = "unit-test-signing-key"

func signToken(tt *testing.T, claims Claims) string {
	tt.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testKey))
	if err != nil {
		tt.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestVerify_AcceptsWellFormedToken(tt *testing.T) {
	userID := t.NewUserId()
	sessionID := t.NewSessionId()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           userID.String(),
		SessionID:        sessionID.String(),
	}
	v := NewVerifier([]byte(testKey))

	gotUser, gotSession, err := v.Verify(signToken(tt, claims))
	if err != nil {
		tt.Fatalf("Verify: %v", err)
	}
	if gotUser != userID {
		tt.Errorf("UserId = %s, want %s", gotUser, userID)
	}
	if gotSession != sessionID {
		tt.Errorf("SessionId = %s, want %s", gotSession, sessionID)
	}
}

func TestVerify_RejectsExpiredToken(tt *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		UserID:           t.NewUserId().String(),
		SessionID:        t.NewSessionId().String(),
	}
	v := NewVerifier([]byte(testKey))

	if _, _, err := v.Verify(signToken(tt, claims)); err != ErrInvalidToken {
		tt.Errorf("Verify = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_RejectsWrongSigningKey(tt *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           t.NewUserId().String(),
		SessionID:        t.NewSessionId().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("a-different-key"))
	if err != nil {
		tt.Fatalf("SignedString: %v", err)
	}

	v := NewVerifier([]byte(testKey))
	if _, _, err := v.Verify(signed); err != ErrInvalidToken {
		tt.Errorf("Verify = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_RejectsUnexpectedSigningMethod(tt *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           t.NewUserId().String(),
		SessionID:        t.NewSessionId().String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		tt.Fatalf("SignedString: %v", err)
	}

	v := NewVerifier([]byte(testKey))
	if _, _, err := v.Verify(signed); err != ErrInvalidToken {
		tt.Errorf("Verify = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_RejectsMalformedUserID(tt *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "not-a-uuid",
		SessionID:        t.NewSessionId().String(),
	}
	v := NewVerifier([]byte(testKey))
	if _, _, err := v.Verify(signToken(tt, claims)); err != ErrInvalidToken {
		tt.Errorf("Verify = %v, want ErrInvalidToken", err)
	}
}

func TestCheckSession_RejectsExpiredOrInactive(tt *testing.T) {
	now := time.Now()
	cases := map[string]t.Session{
		"expired":  {IsActive: true, ExpiresAt: now.Add(-time.Minute)},
		"inactive": {IsActive: false, ExpiresAt: now.Add(time.Hour)},
	}
	for name, sess := range cases {
		tt.Run(name, func(tt *testing.T) {
			if err := CheckSession(&sess, now); err != ErrSessionExpired {
				tt.Errorf("CheckSession = %v, want ErrSessionExpired", err)
			}
		})
	}
}

func TestCheckSession_AcceptsLiveSession(tt *testing.T) {
	sess := t.Session{IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	if err := CheckSession(&sess, time.Now()); err != nil {
		tt.Errorf("CheckSession: %v", err)
	}
}
