package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/microplat/authcore/directory"
	"github.com/microplat/authcore/internal"
	"github.com/microplat/authcore/jwt"
	"github.com/microplat/authcore/store"
)

const (
	testPassword = "correct-horse"
	testEmail    = "alice@example.com"
	testUserID   = int64(1)
)

var testPasswordHash = func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}()

/*
====================================
FIXTURES
====================================
*/

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]*store.RefreshToken

	failCreate    bool
	failFind      bool
	failRevoke    bool
	failIncrement bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*store.RefreshToken)}
}

func (f *fakeStore) unavailable() error {
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (f *fakeStore) Create(_ context.Context, rec *store.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return f.unavailable()
	}
	if _, ok := f.rows[rec.Token]; ok {
		return store.ErrDuplicate
	}
	clone := *rec
	f.rows[rec.Token] = &clone
	return nil
}

func (f *fakeStore) FindActive(_ context.Context, token string) (*store.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFind {
		return nil, f.unavailable()
	}
	rec, ok := f.rows[token]
	if !ok || rec.Deleted {
		return nil, store.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) Revoke(_ context.Context, token, reason string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevoke {
		return 0, f.unavailable()
	}
	rec, ok := f.rows[token]
	if !ok || rec.Revoked || rec.Deleted {
		return 0, nil
	}
	rec.Revoked = true
	rec.RevokedAt = &at
	rec.RevocationReason = reason
	rec.Version++
	return 1, nil
}

func (f *fakeStore) RevokeAllForUser(_ context.Context, userID int64, reason string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevoke {
		return 0, f.unavailable()
	}
	var n int64
	for _, rec := range f.rows {
		if rec.UserID == userID && !rec.Revoked && !rec.Deleted {
			rec.Revoked = true
			rec.RevokedAt = &at
			rec.RevocationReason = reason
			rec.Version++
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) IncrementUsage(_ context.Context, token string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncrement {
		return f.unavailable()
	}
	rec, ok := f.rows[token]
	if !ok || rec.Deleted {
		return store.ErrNotFound
	}
	rec.UsageCount++
	rec.LastUsedAt = &at
	rec.Version++
	return nil
}

func (f *fakeStore) CountActiveForUser(_ context.Context, userID int64, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, rec := range f.rows {
		if rec.UserID == userID && rec.Valid(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for token, rec := range f.rows {
		if rec.ExpiresAt.Before(before) {
			delete(f.rows, token)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) mutate(t *testing.T, token string, fn func(*store.RefreshToken)) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[token]
	if !ok {
		t.Fatalf("no stored row for token %q", token)
	}
	fn(rec)
}

func (f *fakeStore) usageCount(t *testing.T, token string) int64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[token]
	if !ok {
		t.Fatalf("no stored row for token %q", token)
	}
	return rec.UsageCount
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[int64]*directory.User
	down  bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[int64]*directory.User{
			testUserID: {
				ID:           testUserID,
				Email:        testEmail,
				PasswordHash: testPasswordHash,
				Active:       true,
				Roles:        []string{"USER"},
				Privileges:   []string{"profile:read"},
			},
		},
	}
}

func (d *fakeDirectory) GetByEmail(_ context.Context, email string) (*directory.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, fmt.Errorf("%w: connection refused", directory.ErrUnavailable)
	}
	for _, u := range d.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, directory.ErrNotFound
}

func (d *fakeDirectory) GetByID(_ context.Context, id int64) (*directory.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, fmt.Errorf("%w: connection refused", directory.ErrUnavailable)
	}
	if u, ok := d.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, directory.ErrNotFound
}

func (d *fakeDirectory) mutate(fn func(*directory.User)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.users[testUserID])
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	dir    *fakeDirectory
	redis  *miniredis.Miniredis
	sink   *ChannelSink
}

func testEnvConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests-0123456789ab")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests-0123456789a")
	cfg.Cache.ReadRetryInterval = time.Millisecond
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 128
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testEnvConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	tokens := newFakeStore()
	dir := newFakeDirectory()
	sink := NewChannelSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(tokens).
		WithDirectory(dir).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: tokens, dir: dir, redis: mr, sink: sink}
}

func (env *testEnv) login(t *testing.T, ctx context.Context) *LoginResult {
	t.Helper()
	result, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	return result
}

// drainAudit closes the dispatcher and returns every delivered event.
func (env *testEnv) drainAudit() []AuditEvent {
	env.engine.Close()
	var events []AuditEvent
	for {
		select {
		case ev := <-env.sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

/*
====================================
LOGIN
====================================
*/

func TestLogin_IssuesBothTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result := env.login(t, ctx)

	if result.TokenType != TokenTypeBearer {
		t.Errorf("tokenType = %q", result.TokenType)
	}
	if result.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("expiresIn = %d", result.ExpiresIn)
	}
	if result.UserID != testUserID || result.Email != testEmail {
		t.Errorf("identity = %d/%q", result.UserID, result.Email)
	}

	if len(result.RefreshToken) != internal.OpaqueTokenLength {
		t.Errorf("refresh token length = %d, want %d", len(result.RefreshToken), internal.OpaqueTokenLength)
	}
	if err := internal.ValidateOpaqueToken(result.RefreshToken); err != nil {
		t.Errorf("refresh token not a canonical UUID: %v", err)
	}

	validation, err := env.engine.Validate(ctx, result.AccessToken, jwt.ClassAccess)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !validation.Valid {
		t.Fatalf("fresh access token invalid: %s", validation.Message)
	}
	if validation.UserID != testUserID {
		t.Errorf("claims userId = %d", validation.UserID)
	}
	if len(validation.Roles) != 1 || validation.Roles[0] != "USER" {
		t.Errorf("claims roles = %v", validation.Roles)
	}
	if len(validation.Privileges) != 1 || validation.Privileges[0] != "profile:read" {
		t.Errorf("claims privileges = %v", validation.Privileges)
	}

	if got := env.store.usageCount(t, result.RefreshToken); got != 0 {
		t.Errorf("fresh token usage = %d", got)
	}
	if got := env.engine.metrics.Value(MetricLoginSuccess); got != 1 {
		t.Errorf("login success counter = %d", got)
	}
	if got := env.engine.metrics.Value(MetricTokenIssued); got != 1 {
		t.Errorf("token issued counter = %d", got)
	}
}

func TestLogin_TracksIssuedTokenInCache(t *testing.T) {
	env := newTestEnv(t, nil)
	result := env.login(t, context.Background())

	members, err := env.redis.SMembers("authcore:user:tokens:1")
	if err != nil {
		t.Fatalf("SMembers error: %v", err)
	}
	if len(members) != 1 || members[0] != result.RefreshToken {
		t.Fatalf("tracked set = %v", members)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	cases := []struct {
		name  string
		setup func(env *testEnv)
		email string
		pass  string
	}{
		{"unknown user", nil, "nobody@example.com", testPassword},
		{"wrong password", nil, testEmail, "wrong"},
		{"empty email", nil, "", testPassword},
		{"empty password", nil, testEmail, ""},
		{"inactive account", func(env *testEnv) {
			env.dir.mutate(func(u *directory.User) { u.Active = false })
		}, testEmail, testPassword},
		{"directory down", func(env *testEnv) {
			env.dir.mu.Lock()
			env.dir.down = true
			env.dir.mu.Unlock()
		}, testEmail, testPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if tc.setup != nil {
				tc.setup(env)
			}

			_, err := env.engine.Login(context.Background(), tc.email, tc.pass)
			if !errors.Is(err, ErrAuthenticationFailed) {
				t.Fatalf("want ErrAuthenticationFailed, got %v", err)
			}
			if got := env.engine.metrics.Value(MetricLoginFailure); got != 1 {
				t.Errorf("login failure counter = %d", got)
			}
		})
	}
}

func TestLogin_StoreOutage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.failCreate = true

	_, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestLogin_CacheOutageDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, nil)
	env.redis.Close()

	result, err := env.engine.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login with cache down: %v", err)
	}
	if result.RefreshToken == "" {
		t.Fatal("no refresh token issued")
	}
	if got := env.engine.metrics.Value(MetricCacheDegraded); got == 0 {
		t.Error("cache degraded counter not incremented")
	}
}

/*
====================================
REFRESH
====================================
*/

func TestRefresh_IssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	result, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("no access token")
	}
	if result.TokenType != TokenTypeBearer {
		t.Errorf("tokenType = %q", result.TokenType)
	}

	validation, err := env.engine.Validate(ctx, result.AccessToken, jwt.ClassAccess)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !validation.Valid || validation.UserID != testUserID {
		t.Fatalf("refreshed access token: valid=%v userId=%d", validation.Valid, validation.UserID)
	}

	if got := env.store.usageCount(t, login.RefreshToken); got != 1 {
		t.Errorf("usage count = %d, want 1", got)
	}
	if got := env.engine.metrics.Value(MetricRefreshSuccess); got != 1 {
		t.Errorf("refresh success counter = %d", got)
	}
}

func TestRefresh_PicksUpRoleChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	// Grants changed after login must show up in the next access token.
	env.dir.mutate(func(u *directory.User) {
		u.Roles = []string{"USER", "ADMIN"}
		u.Privileges = []string{"profile:read", "admin:write"}
	})

	result, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	validation, err := env.engine.Validate(ctx, result.AccessToken, jwt.ClassAccess)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if len(validation.Roles) != 2 || validation.Roles[1] != "ADMIN" {
		t.Errorf("roles = %v, want fresh grants", validation.Roles)
	}
	if len(validation.Privileges) != 2 {
		t.Errorf("privileges = %v, want fresh grants", validation.Privileges)
	}
}

func TestRefresh_MalformedToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, input := range []string{"", "short", "{3f1f0d8e-9c4b-4f1e-a9a9-0f6d2ce11b4}", "3f1f0d8e9c4b4f1ea9a90f6d2ce11b42...."} {
		_, err := env.engine.Refresh(context.Background(), input)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Refresh(%q): want ErrInvalidToken, got %v", input, err)
		}
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Refresh(context.Background(), internal.NewOpaqueToken())
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	env.store.mutate(t, login.RefreshToken, func(rec *store.RefreshToken) {
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	})

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestRefresh_RevokedToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	if _, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken}); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_RevokedTokenExcludedWithoutCache(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	if _, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken}); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	// Losing the blacklist must not resurrect a revoked token: the store
	// is the authority.
	env.redis.FlushAll()

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken with cache flushed, got %v", err)
	}

	env.redis.Close()
	_, err = env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken with cache down, got %v", err)
	}
}

func TestRefresh_BlacklistFastPath(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	if err := env.engine.revocations.Blacklist(ctx, login.RefreshToken, time.Hour); err != nil {
		t.Fatalf("Blacklist error: %v", err)
	}

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
	if got := env.engine.metrics.Value(MetricBlacklistHit); got != 1 {
		t.Errorf("blacklist hit counter = %d", got)
	}
}

func TestRefresh_DeviceMismatchWarnsByDefault(t *testing.T) {
	env := newTestEnv(t, nil)

	loginCtx := WithDeviceFingerprint(context.Background(), "fp-original")
	login := env.login(t, loginCtx)

	refreshCtx := WithDeviceFingerprint(context.Background(), "fp-other")
	if _, err := env.engine.Refresh(refreshCtx, login.RefreshToken); err != nil {
		t.Fatalf("mismatch should warn, not block: %v", err)
	}
	if got := env.engine.metrics.Value(MetricDeviceMismatch); got != 1 {
		t.Errorf("device mismatch counter = %d", got)
	}
}

func TestRefresh_DeviceMismatchEnforced(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.EnforceDeviceMatch = true
	})

	loginCtx := WithDeviceFingerprint(context.Background(), "fp-original")
	login := env.login(t, loginCtx)

	refreshCtx := WithDeviceFingerprint(context.Background(), "fp-other")
	_, err := env.engine.Refresh(refreshCtx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}

	// The captured fingerprint still passes.
	if _, err := env.engine.Refresh(loginCtx, login.RefreshToken); err != nil {
		t.Fatalf("matching fingerprint rejected: %v", err)
	}
}

func TestRefresh_DeactivatedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	env.dir.mutate(func(u *directory.User) { u.Active = false })

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_StoreOutage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	env.store.failFind = true

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestRefresh_UsageIncrementFailureWithholdsToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	env.store.failIncrement = true

	_, err := env.engine.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
	if got := env.engine.metrics.Value(MetricRefreshSuccess); got != 0 {
		t.Errorf("refresh success counter = %d, want 0", got)
	}
}

/*
====================================
LOGOUT
====================================
*/

func TestLogout_RevokesAndBlacklists(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	result, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if !result.Success || result.TokensRevoked != 1 {
		t.Fatalf("result = %+v, want success with 1 revoked", result)
	}

	if !env.redis.Exists("authcore:blacklist:token:" + login.RefreshToken) {
		t.Error("token not blacklisted")
	}
	if got := env.engine.metrics.Value(MetricTokenRevoked); got != 1 {
		t.Errorf("token revoked counter = %d", got)
	}
}

func TestLogout_RepeatIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	first, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("first Logout error: %v", err)
	}
	if first.TokensRevoked != 1 {
		t.Fatalf("first revoked = %d", first.TokensRevoked)
	}

	second, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("second Logout error: %v", err)
	}
	if !second.Success || second.TokensRevoked != 0 {
		t.Fatalf("second logout = %+v, want success with 0 revoked", second)
	}
}

func TestLogout_UnknownAndMalformedAreNoOps(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, token := range []string{"garbage", internal.NewOpaqueToken()} {
		result, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: token})
		if err != nil {
			t.Fatalf("Logout(%q) error: %v", token, err)
		}
		if !result.Success || result.TokensRevoked != 0 {
			t.Errorf("Logout(%q) = %+v, want no-op success", token, result)
		}
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		tokens = append(tokens, env.login(t, ctx).RefreshToken)
	}

	result, err := env.engine.Logout(ctx, LogoutRequest{AllDevices: true, UserID: testUserID})
	if err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if result.TokensRevoked != 3 {
		t.Fatalf("revoked = %d, want 3", result.TokensRevoked)
	}

	for _, token := range tokens {
		if _, err := env.engine.Refresh(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Refresh after logout-all: want ErrInvalidToken, got %v", err)
		}
		if !env.redis.Exists("authcore:blacklist:token:" + token) {
			t.Errorf("%s not blacklisted by logout-all", token)
		}
	}

	repeat, err := env.engine.Logout(ctx, LogoutRequest{AllDevices: true, UserID: testUserID})
	if err != nil {
		t.Fatalf("repeat Logout error: %v", err)
	}
	if repeat.TokensRevoked != 0 {
		t.Fatalf("repeat revoked = %d, want 0", repeat.TokensRevoked)
	}
}

func TestLogout_RequestValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Logout(ctx, LogoutRequest{}); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("empty request: want ErrValidationFailed, got %v", err)
	}
	if _, err := env.engine.Logout(ctx, LogoutRequest{AllDevices: true}); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("all-devices without user: want ErrValidationFailed, got %v", err)
	}
}

/*
====================================
VALIDATE
====================================
*/

func TestValidate_AccessMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	tampered := login.AccessToken[:len(login.AccessToken)-2] + "xx"
	res, err := env.engine.Validate(ctx, tampered, jwt.ClassAccess)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Message != "signature verification failed" {
		t.Errorf("tampered: %+v", res)
	}

	res, err = env.engine.Validate(ctx, "not-a-jwt", jwt.ClassAccess)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Message != "malformed token" {
		t.Errorf("malformed: %+v", res)
	}
}

func TestValidate_ExpiredAccessMessage(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.JWT.AccessTTL = time.Millisecond
	})
	ctx := context.Background()

	login := env.login(t, ctx)
	time.Sleep(10 * time.Millisecond)

	res, err := env.engine.Validate(ctx, login.AccessToken, jwt.ClassAccess)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Message != "token expired" {
		t.Errorf("expired: %+v", res)
	}
}

func TestValidate_Refresh(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	res, err := env.engine.Validate(ctx, login.RefreshToken, jwt.ClassRefresh)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !res.Valid || res.UserID != testUserID || res.Email != testEmail {
		t.Fatalf("live refresh token: %+v", res)
	}

	if _, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken}); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	res, err = env.engine.Validate(ctx, login.RefreshToken, jwt.ClassRefresh)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Message != "token has been revoked" {
		t.Errorf("revoked: %+v", res)
	}

	res, err = env.engine.Validate(ctx, internal.NewOpaqueToken(), jwt.ClassRefresh)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Message != "unknown refresh token" {
		t.Errorf("unknown: %+v", res)
	}

	res, err = env.engine.Validate(ctx, "garbage", jwt.ClassRefresh)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Message != "malformed refresh token" {
		t.Errorf("malformed: %+v", res)
	}
}

func TestValidate_RequestErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Validate(ctx, "", jwt.ClassAccess); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("empty token: want ErrValidationFailed, got %v", err)
	}
	if _, err := env.engine.Validate(ctx, "x", jwt.TokenClass("SESSION")); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("unknown class: want ErrValidationFailed, got %v", err)
	}
}

/*
====================================
MAINTENANCE AND AUDIT
====================================
*/

func TestPurgeExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)

	stale := internal.NewOpaqueToken()
	if err := env.store.Create(ctx, &store.RefreshToken{
		Token:     stale,
		UserID:    testUserID,
		ExpiresAt: time.Now().Add(-31 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed stale row: %v", err)
	}

	purged, err := env.engine.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	// The live token must survive the sweep.
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("live token purged: %v", err)
	}
	if got := env.engine.metrics.Value(MetricTokensPurged); got != 1 {
		t.Errorf("purge counter = %d", got)
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := env.login(t, ctx)
	if _, err := env.engine.Login(ctx, testEmail, "wrong"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected rejected login, got %v", err)
	}
	if _, err := env.engine.Logout(ctx, LogoutRequest{RefreshToken: login.RefreshToken}); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	events := env.drainAudit()

	byType := make(map[string][]AuditEvent)
	for _, ev := range events {
		byType[ev.EventType] = append(byType[ev.EventType], ev)
		for _, v := range ev.Metadata {
			if v == login.RefreshToken {
				t.Fatalf("raw token leaked into audit metadata: %+v", ev)
			}
		}
	}

	if got := byType[auditEventLoginSuccess]; len(got) != 1 || !got[0].Success || got[0].UserID != testUserID {
		t.Errorf("login success events = %+v", got)
	}
	if got := byType[auditEventLoginFailure]; len(got) != 1 || got[0].Success {
		t.Errorf("login failure events = %+v", got)
	}
	if got := byType[auditEventLoginFailure]; len(got) == 1 && got[0].Metadata["reason"] != "password_mismatch" {
		t.Errorf("failure reason = %q", got[0].Metadata["reason"])
	}
	if got := byType[auditEventTokenRevoked]; len(got) != 1 {
		t.Errorf("token revoked events = %+v", got)
	}
	if got := byType[auditEventLogout]; len(got) != 1 {
		t.Errorf("logout events = %+v", got)
	}
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine

	if _, err := e.Login(context.Background(), testEmail, testPassword); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("Login on nil engine: %v", err)
	}
	if _, err := e.Refresh(context.Background(), internal.NewOpaqueToken()); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("Refresh on nil engine: %v", err)
	}
	if _, err := e.Validate(context.Background(), "x", jwt.ClassAccess); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("Validate on nil engine: %v", err)
	}
	if _, err := e.Logout(context.Background(), LogoutRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("Logout on nil engine: %v", err)
	}
	if _, err := e.PurgeExpired(context.Background()); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("PurgeExpired on nil engine: %v", err)
	}
}
