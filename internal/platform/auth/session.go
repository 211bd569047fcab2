package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "qct-dashboard"

// ErrInvalidSession covers missing, malformed, tampered and expired tokens.
var ErrInvalidSession = errors.New("invalid session")

// Session is the authenticated principal carried in the session cookie.
type Session struct {
	// ID is the token's jti, used to revoke it on logout.
	ID          string
	Username    string
	DisplayName string
	Role        string
	// UserID is the users row id, set once the row has been ensured.
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	UserID      string `json:"uid,omitempty"`
}

// SessionCodec signs and verifies session tokens (HS256 JWTs).
type SessionCodec struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked *RevocationList
}

// NewSessionCodec creates a codec. secret must not be empty.
func NewSessionCodec(secret []byte, ttl time.Duration) (*SessionCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	sc := &SessionCodec{secret: secret, ttl: ttl, now: time.Now, revoked: NewRevocationList()}
	sc.revoked.now = func() time.Time { return sc.now() }
	return sc, nil
}

// Revoke ends s before its expiry. Decode rejects the token from then on.
func (sc *SessionCodec) Revoke(s Session) {
	sc.revoked.Revoke(s.ID, s.ExpiresAt)
}

// TTL is the lifetime given to newly encoded sessions.
func (sc *SessionCodec) TTL() time.Duration {
	return sc.ttl
}

// Encode signs s. IssuedAt and ExpiresAt are set from the codec's clock.
func (sc *SessionCodec) Encode(s Session) (string, error) {
	if s.Username == "" {
		return "", errors.New("session username must not be empty")
	}

	now := sc.now().UTC().Truncate(time.Second)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   s.Username,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sc.ttl)),
		},
		DisplayName: s.DisplayName,
		Role:        s.Role,
		UserID:      s.UserID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sc.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Decode verifies the signature, algorithm, issuer and expiry of token.
func (sc *SessionCodec) Decode(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidSession
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return sc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sc.now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	if claims.ID == "" {
		return Session{}, fmt.Errorf("%w: missing id", ErrInvalidSession)
	}
	if sc.revoked.IsRevoked(claims.ID) {
		return Session{}, fmt.Errorf("%w: revoked", ErrInvalidSession)
	}

	s := Session{
		ID:          claims.ID,
		Username:    claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		UserID:      claims.UserID,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
