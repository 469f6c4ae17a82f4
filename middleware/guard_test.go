package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/obsidiansec/authcore"
)

// nullStore satisfies the store contract for engines that only verify
// tokens in these tests.
type nullStore struct{}

func (nullStore) FindByUsername(context.Context, string) (*authcore.Principal, error) {
	return nil, nil
}
func (nullStore) FindByEmail(context.Context, string) (*authcore.Principal, error) { return nil, nil }
func (nullStore) SaveUser(context.Context, *authcore.Principal) error              { return nil }
func (nullStore) DeleteUser(context.Context, string) error                         { return nil }
func (nullStore) ListUsers(context.Context) ([]authcore.Principal, error)          { return nil, nil }
func (nullStore) FindByProviderSubject(context.Context, string, string) (*authcore.LinkedIdentity, error) {
	return nil, nil
}
func (nullStore) SaveLinkedIdentity(context.Context, *authcore.LinkedIdentity) error { return nil }
func (nullStore) DeleteLinkedIdentity(context.Context, string) error                 { return nil }
func (nullStore) WithinTx(ctx context.Context, fn func(authcore.CredentialStore) error) error {
	return fn(nullStore{})
}

type nullNotifier struct{}

func (nullNotifier) SendVerificationCode(context.Context, string, string, string) error  { return nil }
func (nullNotifier) SendPasswordResetCode(context.Context, string, string, string) error { return nil }
func (nullNotifier) SendPasswordChanged(context.Context, string, string) error           { return nil }

var (
	engineOnce sync.Once
	testEngine *authcore.Engine
	testToken  string
)

func guardTestEngine(t *testing.T) (*authcore.Engine, string) {
	t.Helper()

	engineOnce.Do(func() {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generating key: %v", err)
		}

		cfg := authcore.DefaultConfig()
		cfg.Cleanup.Enabled = false

		engine, err := authcore.New().
			WithConfig(cfg).
			WithKeyPair(priv, pub).
			WithStore(nullStore{}).
			WithNotifier(nullNotifier{}).
			Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		session, err := engine.ExternalLogin(context.Background(), authcore.ExternalAssertion{
			Provider:  "google",
			SubjectID: "sub-1",
			Email:     "alice@example.com",
		})
		if err != nil {
			t.Fatalf("issuing test token: %v", err)
		}

		testEngine = engine
		testToken = session.Token
	})

	return testEngine, testToken
}

func okHandler(t *testing.T, sawIdentity *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if ok && identity.Subject != "" {
			*sawIdentity = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardRejectsMissingHeader(t *testing.T) {
	engine, _ := guardTestEngine(t)
	var saw bool
	handler := Guard(engine)(okHandler(t, &saw))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if saw {
		t.Fatal("handler must not run")
	}
}

func TestGuardRejectsMalformedHeader(t *testing.T) {
	engine, token := guardTestEngine(t)
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, value := range []string{"Bearer", "Bearer ", "Basic " + token, token} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", value)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", value, rec.Code)
		}
	}
}

func TestGuardRejectsInvalidToken(t *testing.T) {
	engine, _ := guardTestEngine(t)
	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardPassesValidToken(t *testing.T) {
	engine, token := guardTestEngine(t)
	var saw bool
	handler := Guard(engine)(okHandler(t, &saw))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !saw {
		t.Fatal("expected identity injected into request context")
	}
}

func TestRequireRole(t *testing.T) {
	engine, token := guardTestEngine(t)

	allowed := RequireRole(engine, authcore.DefaultRole)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	denied := RequireRole(engine, "ADMIN")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("role present: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("role absent: expected 403, got %d", rec.Code)
	}

	// Missing token still reads as 401, not 403.
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
}

func TestGuardNilEngine(t *testing.T) {
	handler := Guard(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
