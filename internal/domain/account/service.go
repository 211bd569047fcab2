package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/qct/dashboard/internal/platform/auth"
)

// Login outcomes as counted by the login attempts metric.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

type Service struct {
	creds    *auth.CredentialStore
	users    UserRepository
	logger   zerolog.Logger
	attempts *prometheus.CounterVec
}

func NewService(creds *auth.CredentialStore, users UserRepository, logger zerolog.Logger) *Service {
	return &Service{creds: creds, users: users, logger: logger}
}

// SetAttemptCounter counts logins by outcome.
func (s *Service) SetAttemptCounter(c *prometheus.CounterVec) { s.attempts = c }

func (s *Service) count(outcome string) {
	if s.attempts != nil {
		s.attempts.WithLabelValues(outcome).Inc()
	}
}

// Login verifies the credentials and ensures the user row exists. The
// returned session carries the identity from the credential list and the id
// of the stored row.
func (s *Service) Login(ctx context.Context, username, password string) (auth.Session, error) {
	id, err := s.creds.Verify(username, password)
	if err != nil {
		s.count(OutcomeFailure)
		s.logger.Info().Str("username", username).Msg("login rejected")
		return auth.Session{}, err
	}

	sess := auth.Session{Username: id.Username, DisplayName: id.DisplayName, Role: id.Role}
	if s.users == nil {
		s.count(OutcomeSuccess)
		return sess, nil
	}

	u, err := s.users.EnsureUser(ctx, &User{Username: id.Username, DisplayName: id.DisplayName, Role: id.Role})
	if err != nil {
		s.count(OutcomeError)
		return auth.Session{}, fmt.Errorf("ensure user %s: %w", id.Username, err)
	}
	sess.UserID = u.ID.String()

	s.count(OutcomeSuccess)
	s.logger.Info().Str("username", id.Username).Str("user_id", sess.UserID).Msg("login succeeded")
	return sess, nil
}

// IsInvalidCredentials reports whether err is a rejected login rather than a
// backend failure.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, auth.ErrInvalidCredentials)
}
