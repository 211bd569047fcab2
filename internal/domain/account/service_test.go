package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/qct/dashboard/internal/platform/auth"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*User
	err   error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*User)}
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepo) EnsureUser(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if existing, ok := m.users[u.Username]; ok {
		return existing, nil
	}
	cp := *u
	cp.ID = uuid.New()
	m.users[u.Username] = &cp
	return &cp, nil
}

func newTestService(t *testing.T, raw string, repo UserRepository) *Service {
	t.Helper()
	creds, err := auth.ParseCredentials(raw)
	if err != nil {
		t.Fatalf("ParseCredentials: %v", err)
	}
	return NewService(creds, repo, zerolog.Nop())
}

func TestService_Login_CreatesUserOnce(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(t, "alice:secret:Alice A:radiologist", repo)

	sess, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if sess.Username != "alice" || sess.DisplayName != "Alice A" || sess.Role != "radiologist" {
		t.Errorf("unexpected session %+v", sess)
	}
	stored := repo.users["alice"]
	if stored == nil || sess.UserID != stored.ID.String() {
		t.Fatalf("expected session user id to match stored row, got %+v", sess)
	}

	// Changed credentials must not sync back to the stored row.
	svc2 := newTestService(t, "alice:secret:Alice Renamed:admin", repo)
	sess2, err := svc2.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("second Login() error: %v", err)
	}
	if sess2.UserID != sess.UserID {
		t.Error("expected the same user row on later logins")
	}
	if repo.users["alice"].DisplayName != "Alice A" || repo.users["alice"].Role != "radiologist" {
		t.Errorf("stored user was updated: %+v", repo.users["alice"])
	}
	if len(repo.users) != 1 {
		t.Errorf("expected one user row, got %d", len(repo.users))
	}
}

func TestService_Login_Rejected(t *testing.T) {
	repo := newMockUserRepo()
	svc := newTestService(t, "alice:secret", repo)
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "login_attempts_total"}, []string{"outcome"})
	svc.SetAttemptCounter(counter)

	for _, tc := range [][2]string{{"alice", "wrong"}, {"mallory", "secret"}, {"", ""}} {
		_, err := svc.Login(context.Background(), tc[0], tc[1])
		if !IsInvalidCredentials(err) {
			t.Errorf("Login(%q): expected invalid credentials, got %v", tc[0], err)
		}
	}
	if len(repo.users) != 0 {
		t.Error("rejected logins must not create users")
	}
	if got := testutil.ToFloat64(counter.WithLabelValues(OutcomeFailure)); got != 3 {
		t.Errorf("expected 3 failures counted, got %v", got)
	}
}

func TestService_Login_RepositoryError(t *testing.T) {
	repo := newMockUserRepo()
	repo.err = errors.New("connection reset")
	svc := newTestService(t, "alice:secret", repo)

	_, err := svc.Login(context.Background(), "alice", "secret")
	if err == nil || IsInvalidCredentials(err) {
		t.Fatalf("expected a backend error, got %v", err)
	}
	if !errors.Is(err, repo.err) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

func TestService_Login_WithoutRepository(t *testing.T) {
	svc := newTestService(t, "alice:secret", nil)
	sess, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if sess.UserID != "" || sess.Role != auth.DefaultRole {
		t.Errorf("unexpected session %+v", sess)
	}
}
