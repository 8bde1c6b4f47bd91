package sessiongate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessiongate/jwt"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type mockIdentityProvider struct {
	mu    sync.Mutex
	users map[string]Identity
	err   error
	delay time.Duration
	calls int
}

func newMockIdentityProvider(ids ...Identity) *mockIdentityProvider {
	p := &mockIdentityProvider{users: make(map[string]Identity, len(ids))}
	for _, id := range ids {
		p.users[id.ID] = id
	}
	return p
}

func (p *mockIdentityProvider) FindIdentityByID(ctx context.Context, id string) (Identity, error) {
	p.mu.Lock()
	p.calls++
	err, delay := p.err, p.delay
	identity, ok := p.users[id]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	}
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (p *mockIdentityProvider) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, id)
}

var (
	alice  = Identity{ID: "alice", Email: "alice@example.com", Role: permission.RoleStudent, DisplayName: "Alice"}
	mentor = Identity{ID: "mona", Email: "mona@example.com", Role: permission.RoleMentor, DisplayName: "Mona"}
	admin  = Identity{ID: "root", Email: "root@example.com", Role: permission.RoleAdmin, DisplayName: "Root"}
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.Lookup.Timeout = 200 * time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, provider IdentityProvider) *Engine {
	t.Helper()

	engine, err := New().WithConfig(cfg).WithIdentityProvider(provider).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func mustToken(t *testing.T, e *Engine, subject string) string {
	t.Helper()
	tok, err := e.IssueAccessToken(subject)
	if err != nil {
		t.Fatalf("IssueAccessToken(%q): %v", subject, err)
	}
	return tok
}

func TestVerifyResolvesIdentity(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider(alice))

	got, err := engine.Verify(context.Background(), mustToken(t, engine, "alice"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if *got != alice {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if engine.MetricsSnapshot().Counters[MetricVerifySuccess] != 1 {
		t.Fatal("expected verify success to be counted")
	}
}

func TestVerifyFailureKinds(t *testing.T) {
	provider := newMockIdentityProvider(alice)
	engine := newTestEngine(t, testConfig(), provider)
	ctx := context.Background()

	if _, err := engine.Verify(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty token: expected ErrMissingToken, got %v", err)
	}
	if _, err := engine.Verify(ctx, "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: expected ErrInvalidToken, got %v", err)
	}

	other, _ := New().WithConfig(func() Config {
		cfg := testConfig()
		cfg.JWT.PrivateKey = []byte("ffffffffffffffffffffffffffffffff")
		return cfg
	}()).WithIdentityProvider(provider).Build()
	defer other.Close()
	foreign := mustToken(t, other, "alice")
	if _, err := engine.Verify(ctx, foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: expected ErrInvalidToken, got %v", err)
	}

	refresh, err := engine.IssueToken("alice", jwt.TypeRefresh)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := engine.Verify(ctx, refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token: expected ErrInvalidToken, got %v", err)
	}

	ghost := mustToken(t, engine, "ghost")
	if _, err := engine.Verify(ctx, ghost); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("unknown subject: expected ErrUnknownSubject, got %v", err)
	}
}

func TestVerifyDeletedAccountIsUnknownSubject(t *testing.T) {
	provider := newMockIdentityProvider(alice)
	engine := newTestEngine(t, testConfig(), provider)
	token := mustToken(t, engine, "alice")

	provider.remove("alice")
	if _, err := engine.Verify(context.Background(), token); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}
}

func TestVerifyLookupTimeout(t *testing.T) {
	provider := newMockIdentityProvider(alice)
	provider.delay = time.Second
	cfg := testConfig()
	cfg.Lookup.Timeout = 20 * time.Millisecond
	engine := newTestEngine(t, cfg, provider)

	start := time.Now()
	_, err := engine.Verify(context.Background(), mustToken(t, engine, "alice"))
	if !errors.Is(err, ErrLookupUnavailable) {
		t.Fatalf("expected ErrLookupUnavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("lookup timeout was not enforced")
	}
}

func TestVerifyLookupError(t *testing.T) {
	provider := newMockIdentityProvider(alice)
	provider.err = errors.New("connection refused")
	engine := newTestEngine(t, testConfig(), provider)

	_, err := engine.Verify(context.Background(), mustToken(t, engine, "alice"))
	if !errors.Is(err, ErrLookupUnavailable) || errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("expected ErrLookupUnavailable, got %v", err)
	}
}

func TestIssueTokenUnsupportedType(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newMockIdentityProvider())
	if _, err := engine.IssueToken("alice", jwt.TokenType("bogus")); err == nil {
		t.Fatal("expected unsupported token type error")
	}
	for _, typ := range []jwt.TokenType{jwt.TypeAccess, jwt.TypeRefresh, jwt.TypeResetPassword, jwt.TypeVerifyEmail} {
		if _, err := engine.IssueToken("alice", typ); err != nil {
			t.Fatalf("IssueToken(%s): %v", typ, err)
		}
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Verify(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.RightsFor(permission.RoleAdmin).Len() != 0 {
		t.Fatal("nil engine must grant nothing")
	}
	if len(e.MetricsSnapshot().Counters) != 0 {
		t.Fatal("nil engine must return empty snapshot")
	}
}
