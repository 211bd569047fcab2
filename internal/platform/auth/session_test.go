package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

func newTestCodec(t *testing.T, now time.Time) *SessionCodec {
	t.Helper()
	codec, err := NewSessionCodec(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewSessionCodec: %v", err)
	}
	codec.now = func() time.Time { return now }
	return codec
}

func TestNewSessionCodec_Validation(t *testing.T) {
	if _, err := NewSessionCodec(nil, time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewSessionCodec(testSecret, 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestSessionCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	token, err := codec.Encode(Session{Username: "alice", DisplayName: "Alice A", Role: "viewer", UserID: "u-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	sess, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sess.Username != "alice" || sess.DisplayName != "Alice A" || sess.Role != "viewer" || sess.UserID != "u-1" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if !sess.IssuedAt.Equal(now) || !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected timestamps: iat=%v exp=%v", sess.IssuedAt, sess.ExpiresAt)
	}
	if sess.ID == "" {
		t.Error("expected a token id")
	}
}

func TestSessionCodec_RevokedTokenRejected(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	first, _ := codec.Encode(Session{Username: "alice"})
	second, _ := codec.Encode(Session{Username: "alice"})

	sess, err := codec.Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	codec.Revoke(sess)

	if _, err := codec.Decode(first); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected revoked token to be invalid, got %v", err)
	}
	if _, err := codec.Decode(second); err != nil {
		t.Errorf("expected other sessions to stay valid, got %v", err)
	}
}

func TestSessionCodec_EncodeRequiresUsername(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	if _, err := codec.Encode(Session{}); err == nil {
		t.Error("expected error for empty username")
	}
}

func TestSessionCodec_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, issued)
	token, err := codec.Encode(Session{Username: "alice"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := codec.Decode(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession for expired token, got %v", err)
	}
}

func TestSessionCodec_Tampered(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	token, err := codec.Encode(Session{Username: "alice", Role: "viewer"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := codec.Decode(tampered); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession for tampered token, got %v", err)
	}
}

func TestSessionCodec_WrongSecret(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	token, _ := codec.Encode(Session{Username: "alice"})

	other, _ := NewSessionCodec([]byte("another-secret"), time.Hour)
	if _, err := other.Decode(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession for foreign signature, got %v", err)
	}
}

func TestSessionCodec_RejectsOtherAlgorithms(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := codec.Decode(hs512); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected HS512 token to be rejected, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := codec.Decode(none); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected alg=none token to be rejected, got %v", err)
	}
}

func TestSessionCodec_RequiresExpiryAndIssuer(t *testing.T) {
	codec := newTestCodec(t, time.Now())

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: sessionIssuer, Subject: "alice"},
	}).SignedString(testSecret)
	if _, err := codec.Decode(noExp); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected token without exp to be rejected, got %v", err)
	}

	otherIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	if _, err := codec.Decode(otherIssuer); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected foreign issuer to be rejected, got %v", err)
	}
}

func TestSessionCodec_Garbage(t *testing.T) {
	codec := newTestCodec(t, time.Now())
	for _, token := range []string{"", "abc", "a.b.c"} {
		if _, err := codec.Decode(token); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Decode(%q) expected ErrInvalidSession, got %v", token, err)
		}
	}
}
