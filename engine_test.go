package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testKeyPair(t *testing.T) (ed25519.PrivateKey, ed25519.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}
	return priv, pub
}

// mockStore is an in-memory CredentialStore. WithinTx runs the callback
// against the same store; tests that need real transaction semantics
// use gormstore instead.
type mockStore struct {
	mu         sync.Mutex
	users      map[string]*Principal      // by username
	identities map[string]*LinkedIdentity // by provider+":"+subject

	failFind error
	failSave error

	// beforeTx runs at the start of WithinTx, simulating a concurrent
	// flow committing just before the transaction's first read.
	beforeTx func(*mockStore)
}

func newMockStore() *mockStore {
	return &mockStore{
		users:      map[string]*Principal{},
		identities: map[string]*LinkedIdentity{},
	}
}

func (s *mockStore) FindByUsername(_ context.Context, username string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return nil, s.failFind
	}
	p, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *mockStore) FindByEmail(_ context.Context, email string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return nil, s.failFind
	}
	for _, p := range s.users {
		if p.Email != "" && strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *mockStore) SaveUser(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	cp := *p
	s.users[p.Username] = &cp
	return nil
}

func (s *mockStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for username, p := range s.users {
		if p.ID == id {
			delete(s.users, username)
			return nil
		}
	}
	return ErrNotFound
}

func (s *mockStore) ListUsers(_ context.Context) ([]Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Principal, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, *p)
	}
	return out, nil
}

func (s *mockStore) FindByProviderSubject(_ context.Context, provider, subjectID string) (*LinkedIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	li, ok := s.identities[provider+":"+subjectID]
	if !ok {
		return nil, nil
	}
	cp := *li
	return &cp, nil
}

func (s *mockStore) SaveLinkedIdentity(_ context.Context, li *LinkedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *li
	s.identities[li.Provider+":"+li.SubjectID] = &cp
	return nil
}

func (s *mockStore) DeleteLinkedIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, li := range s.identities {
		if li.ID == id {
			delete(s.identities, key)
			return nil
		}
	}
	return ErrNotFound
}

func (s *mockStore) WithinTx(ctx context.Context, fn func(CredentialStore) error) error {
	if s.beforeTx != nil {
		s.beforeTx(s)
	}
	return fn(s)
}

type sentMail struct {
	kind string
	to   string
	name string
	code string
}

// mockNotifier records outbound mail. Set fail to make every send
// return an error.
type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (n *mockNotifier) record(kind, to, name, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, sentMail{kind: kind, to: to, name: name, code: code})
	return nil
}

func (n *mockNotifier) SendVerificationCode(_ context.Context, to, name, code string) error {
	return n.record("verify", to, name, code)
}

func (n *mockNotifier) SendPasswordResetCode(_ context.Context, to, name, code string) error {
	return n.record("reset", to, name, code)
}

func (n *mockNotifier) SendPasswordChanged(_ context.Context, to, name string) error {
	return n.record("changed", to, name, "")
}

func (n *mockNotifier) last(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected at least one notification")
	}
	return n.sent[len(n.sent)-1]
}

// fakeClock is a settable time source shared between test and engine.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEngineOptions struct {
	redis *redis.Client
	clock *fakeClock
	sink  AuditSink
	cfg   *Config
}

func newTestEngine(t *testing.T, store *mockStore, notifier *mockNotifier, opts testEngineOptions) *Engine {
	t.Helper()

	priv, pub := testKeyPair(t)

	cfg := defaultConfig()
	if opts.cfg != nil {
		cfg = *opts.cfg
	}
	// Keep argon2 cheap in tests.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Cleanup.Enabled = false

	b := New().
		WithConfig(cfg).
		WithKeyPair(priv, pub).
		WithStore(store).
		WithNotifier(notifier)
	if opts.redis != nil {
		b = b.WithRedis(opts.redis)
	}
	if opts.clock != nil {
		b = b.WithClock(opts.clock.Now)
	}
	if opts.sink != nil {
		b = b.WithAuditSink(opts.sink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func seedUser(t *testing.T, engine *Engine, store *mockStore, username, pass, email string, verified bool) *Principal {
	t.Helper()

	hash, err := engine.passwordHash.Hash(pass)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	p := &Principal{
		ID:            "id-" + username,
		Username:      username,
		PasswordHash:  hash,
		Roles:         []string{DefaultRole},
		Email:         email,
		EmailVerified: verified,
		CreatedAt:     engine.now(),
	}
	if err := store.SaveUser(context.Background(), p); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return p
}

func TestBuilderRequiresStoreAndNotifier(t *testing.T) {
	priv, pub := testKeyPair(t)

	if _, err := New().WithKeyPair(priv, pub).WithNotifier(&mockNotifier{}).Build(); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New().WithKeyPair(priv, pub).WithStore(newMockStore()).Build(); err == nil {
		t.Fatal("expected error without notifier")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	priv, pub := testKeyPair(t)

	b := New().
		WithKeyPair(priv, pub).
		WithStore(newMockStore()).
		WithNotifier(&mockNotifier{})
	b.config.Cleanup.Enabled = false

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	priv, pub := testKeyPair(t)

	cfg := defaultConfig()
	cfg.Token.TTL = 0

	_, err := New().
		WithConfig(cfg).
		WithKeyPair(priv, pub).
		WithStore(newMockStore()).
		WithNotifier(&mockNotifier{}).
		Build()
	if err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "alice", "pw"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.VerifyToken(context.Background(), "tok"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
