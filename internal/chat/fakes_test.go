package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain"
	"chatrelay/internal/service"
)

// fakeHandle records every event sent to it.
type fakeHandle struct {
	id     string
	mu     sync.Mutex
	events []Event
	closed bool
	full   bool
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Send(ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.full {
		return false
	}
	h.events = append(h.events, ev)
	return true
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) named(event string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, ev := range h.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

func decodePayload[T any](t *testing.T, ev Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	seq   int64
	users map[int64]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*domain.User)}
}

func (r *memUserRepo) Init(context.Context) error { return nil }

func (r *memUserRepo) Create(_ context.Context, user *domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return 0, errors.New("user already exists")
		}
	}
	r.seq++
	user.ID = r.seq
	cp := *user
	r.users[user.ID] = &cp
	return user.ID, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.New("user not found")
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) UpdateRefreshTokenHash(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.RefreshTokenHash = hash
	return nil
}

func (r *memUserRepo) Seed(ctx context.Context, users []domain.User) error {
	for i := range users {
		u := users[i]
		if _, err := r.GetByEmail(ctx, u.Email); err == nil {
			continue
		}
		if _, err := r.Create(ctx, &u); err != nil {
			return err
		}
	}
	return nil
}

func (r *memUserRepo) mustAdd(t *testing.T, name, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: email, Role: domain.RoleUser}
	_, err := r.Create(context.Background(), u)
	require.NoError(t, err)
	return u
}

// memMessageRepo is an in-memory MessageRepository. Setting fail makes
// every operation return an error, simulating storage unavailability.
type memMessageRepo struct {
	mu       sync.Mutex
	seq      int64
	messages []domain.Message
	names    map[int64]string
	fail     bool
}

func newMemMessageRepo(users *memUserRepo) *memMessageRepo {
	names := make(map[int64]string)
	for id, u := range users.users {
		names[id] = u.Name
	}
	return &memMessageRepo{names: names}
}

func (r *memMessageRepo) Init(context.Context) error { return nil }

func (r *memMessageRepo) Append(_ context.Context, senderID int64, receiverID *int64, content string, typ domain.MessageType) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("store unavailable")
	}
	r.seq++
	msg := domain.Message{
		ID:         r.seq,
		SenderID:   senderID,
		SenderName: r.names[senderID],
		ReceiverID: receiverID,
		Content:    content,
		Type:       typ,
		CreatedAt:  time.Now().UTC(),
	}
	r.messages = append(r.messages, msg)
	cp := msg
	return &cp, nil
}

func (r *memMessageRepo) RecentPublic(_ context.Context, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("store unavailable")
	}
	var pub []domain.Message
	for _, m := range r.messages {
		if m.Type == domain.MessagePublic {
			pub = append(pub, m)
		}
	}
	if len(pub) > limit {
		pub = pub[len(pub)-limit:]
	}
	return pub, nil
}

func (r *memMessageRepo) PrivateThread(_ context.Context, userA, userB int64) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("store unavailable")
	}
	var out []domain.Message
	for _, m := range r.messages {
		if m.Type != domain.MessagePrivate || m.ReceiverID == nil {
			continue
		}
		if (m.SenderID == userA && *m.ReceiverID == userB) || (m.SenderID == userB && *m.ReceiverID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) MarkThreadRead(_ context.Context, recipient, otherParty int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("store unavailable")
	}
	for i := range r.messages {
		m := &r.messages[i]
		if m.Type == domain.MessagePrivate && m.ReceiverID != nil &&
			*m.ReceiverID == recipient && m.SenderID == otherParty {
			m.IsRead = true
		}
	}
	return nil
}

func (r *memMessageRepo) stored() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// fakeAuth maps bearer tokens directly to users.
type fakeAuth struct {
	users  *memUserRepo
	tokens map[string]int64
}

func newFakeAuth(users *memUserRepo) *fakeAuth {
	return &fakeAuth{users: users, tokens: make(map[string]int64)}
}

func (a *fakeAuth) grant(userID int64) string {
	token := fmt.Sprintf("token-%d-%d", userID, len(a.tokens))
	a.tokens[token] = userID
	return token
}

func (a *fakeAuth) Login(context.Context, string, string) (*service.TokenPair, *domain.User, error) {
	return nil, nil, errors.New("not implemented")
}

func (a *fakeAuth) Refresh(context.Context, string) (*service.TokenPair, error) {
	return nil, errors.New("not implemented")
}

func (a *fakeAuth) Logout(context.Context, int64) error { return nil }

func (a *fakeAuth) VerifyToken(token string) (*service.Claims, error) {
	userID, ok := a.tokens[token]
	if !ok {
		return nil, service.ErrInvalidToken
	}
	return &service.Claims{UserID: userID}, nil
}

func (a *fakeAuth) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return a.users.GetByID(ctx, id)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
