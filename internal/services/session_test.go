package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tecnodash/internal/models"
	"tecnodash/pkg/cache"
	"tecnodash/pkg/config"
	apperrors "tecnodash/pkg/errors"
	"tecnodash/pkg/jwt"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	mr       *miniredis.Miniredis
	store    *cache.Store
	tenants  *fakeTenantStore
	sessions *fakeSessionStore
	issuer   *jwt.Issuer
	service  *AuthService
	tenant   *models.Tenant
}

func newAuthFixture(t *testing.T) *authFixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tenants := newFakeTenantStore()
	tenant := &models.Tenant{
		CNPJ:        testCNPJ,
		Email:       "contato@acme.com.br",
		CompanyName: "ACME LTDA",
		DBName:      "18100033322211_tecnodash_1715349600000_42",
		Active:      true,
	}
	require.NoError(t, tenant.SetPassword("s3cret!"))
	tenants.add(tenant)

	sessions := newFakeSessionStore(tenants)
	store := cache.NewStore(client, "test")
	issuer := jwt.NewIssuer(config.JWTConfig{
		Secret:      "test-secret",
		Issuer:      "tecnodash",
		Audience:    "tecnodash",
		AccessTTL:   15 * time.Minute,
		RefreshHour: 3,
	})

	return &authFixture{
		mr:       mr,
		store:    store,
		tenants:  tenants,
		sessions: sessions,
		issuer:   issuer,
		service:  NewAuthService(tenants, sessions, store, issuer),
		tenant:   tenant,
	}
}

func (f *authFixture) login(t *testing.T) *LoginResult {
	result, err := f.service.Login(context.Background(), LoginInput{
		Login:     "contato@acme.com.br",
		Password:  "s3cret!",
		IP:        "200.10.20.30",
		UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	return result
}

func (f *authFixture) cached(t *testing.T, sessionID string) SessionRecord {
	var record SessionRecord
	found, err := f.store.Get(context.Background(), sessionKey(sessionID), &record)
	require.NoError(t, err)
	require.True(t, found)
	return record
}

func TestLogin_UniformFailure(t *testing.T) {
	f := newAuthFixture(t)

	_, errUnknown := f.service.Login(context.Background(), LoginInput{Login: "nobody@acme.com.br", Password: "s3cret!"})
	_, errWrong := f.service.Login(context.Background(), LoginInput{Login: "contato@acme.com.br", Password: "wrong"})

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.True(t, apperrors.Is(errUnknown, apperrors.KindUnauthorized))
	assert.True(t, apperrors.Is(errWrong, apperrors.KindUnauthorized))
	assert.Equal(t, apperrors.PublicMessage(errUnknown), apperrors.PublicMessage(errWrong))
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Empty(t, f.sessions.sessions)
}

func TestLogin_CreatesSessionAndCacheMirror(t *testing.T) {
	f := newAuthFixture(t)

	result := f.login(t)
	require.NotEmpty(t, result.SessionID)
	assert.True(t, result.ExpiresAt.After(time.Now()))
	assert.Equal(t, 0, result.ExpiresAt.Minute())
	assert.Equal(t, 3, result.ExpiresAt.Hour())

	session, ok := f.sessions.get(result.SessionID)
	require.True(t, ok)
	assert.True(t, session.Active)
	assert.Equal(t, f.tenant.TenantID, session.TenantID)
	assert.Equal(t, result.ExpiresAt, session.ExpiresAt)
	assert.Equal(t, "200.10.20.30", session.IP)

	record := f.cached(t, result.SessionID)
	assert.Equal(t, session.Token, record.AccessToken)
	assert.Equal(t, session.RefreshToken, record.RefreshToken)
	assert.Equal(t, "1715349600000_42", record.BaseInfo)
	assert.Equal(t, testCNPJ, record.CNPJ)

	ttl := f.mr.TTL("test:" + sessionKey(result.SessionID))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 24*time.Hour)
}

func TestLogin_ListsOtherActiveSessions(t *testing.T) {
	f := newAuthFixture(t)

	first := f.login(t)
	second := f.login(t)

	require.Len(t, second.ActiveSessions, 1)
	assert.Equal(t, first.SessionID, second.ActiveSessions[0].ID)
	assert.Equal(t, "200.xxx.xxx.30", second.ActiveSessions[0].IP)
}

func TestLogin_CacheFailureRollsBack(t *testing.T) {
	f := newAuthFixture(t)
	f.mr.Close()

	_, err := f.service.Login(context.Background(), LoginInput{Login: "contato@acme.com.br", Password: "s3cret!"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInternal))
	assert.Empty(t, f.sessions.sessions)
}

func TestVerifyLoggedIn_MissingSession(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.VerifyLoggedIn(context.Background(), "")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))

	_, err = f.service.VerifyLoggedIn(context.Background(), "does-not-exist")
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestVerifyLoggedIn_FastPath(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	identity, err := f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.True(t, identity.Auth)
	assert.Equal(t, f.tenant.TenantID, identity.User.ID)
	assert.Equal(t, "ACME LTDA", identity.User.CompanyName)
	assert.Equal(t, "contato@acme.com.br", identity.User.Email)
	assert.Equal(t, 0, f.sessions.tokenUpdates)
}

func TestVerifyLoggedIn_RefreshPath(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	record := f.cached(t, result.SessionID)
	record.AccessToken = "not-a-jwt"
	ok, err := f.store.Update(context.Background(), sessionKey(result.SessionID), record)
	require.NoError(t, err)
	require.True(t, ok)
	ttlBefore := f.mr.TTL("test:" + sessionKey(result.SessionID))

	identity, err := f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.True(t, identity.Auth)
	assert.Equal(t, f.tenant.TenantID, identity.User.ID)

	assert.Equal(t, 1, f.sessions.tokenUpdates)
	refreshed := f.cached(t, result.SessionID)
	assert.NotEqual(t, "not-a-jwt", refreshed.AccessToken)
	_, err = f.issuer.VerifyAccess(refreshed.AccessToken)
	assert.NoError(t, err)

	session, _ := f.sessions.get(result.SessionID)
	assert.Equal(t, refreshed.AccessToken, session.Token)
	assert.Equal(t, ttlBefore, f.mr.TTL("test:"+sessionKey(result.SessionID)))
}

func TestVerifyLoggedIn_SuspendedTenant(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	record := f.cached(t, result.SessionID)
	record.AccessToken = ""
	_, err := f.store.Update(context.Background(), sessionKey(result.SessionID), record)
	require.NoError(t, err)
	f.tenant.Active = false

	_, err = f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
	assert.Equal(t, msgTenantSuspended, apperrors.PublicMessage(err))
	assert.Equal(t, 0, f.sessions.tokenUpdates)
}

func TestVerifyLoggedIn_TerminatedSessionRejected(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	record := f.cached(t, result.SessionID)
	record.AccessToken = ""
	_, err := f.store.Update(context.Background(), sessionKey(result.SessionID), record)
	require.NoError(t, err)
	require.NoError(t, f.sessions.TerminateSession(context.Background(), result.SessionID, "test", time.Now()))

	_, err = f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestVerifyLoggedIn_InvalidRefreshToken(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	record := f.cached(t, result.SessionID)
	record.RefreshToken += "tampered"
	record.AccessToken = ""
	_, err := f.store.Update(context.Background(), sessionKey(result.SessionID), record)
	require.NoError(t, err)

	_, err = f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	require.Error(t, err)
	assert.Equal(t, msgSessionInvalid, apperrors.PublicMessage(err))
}

func TestLogout_WithoutSessionIsNoop(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	f.service.Logout(context.Background(), "")

	session, _ := f.sessions.get(result.SessionID)
	assert.True(t, session.Active)
	assert.Equal(t, 0, f.sessions.terminated)
	assert.True(t, f.mr.Exists("test:"+sessionKey(result.SessionID)))
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)

	f.service.Logout(context.Background(), result.SessionID)

	session, _ := f.sessions.get(result.SessionID)
	assert.False(t, session.Active)
	require.NotNil(t, session.TerminatedAt)
	require.NotNil(t, session.TerminationReason)
	assert.Equal(t, models.ReasonUserLogout, *session.TerminationReason)
	assert.False(t, f.mr.Exists("test:"+sessionKey(result.SessionID)))

	_, err := f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestLogout_ClearsCacheWhenTerminateFails(t *testing.T) {
	f := newAuthFixture(t)
	result := f.login(t)
	f.sessions.terminateErr = errors.New("connection reset")

	f.service.Logout(context.Background(), result.SessionID)

	assert.False(t, f.mr.Exists("test:"+sessionKey(result.SessionID)))
	_, err := f.service.VerifyLoggedIn(context.Background(), result.SessionID)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestSessionTTL(t *testing.T) {
	now := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		remain time.Duration
		want   time.Duration
	}{
		{"已过期", -time.Minute, time.Second},
		{"不足一秒", 500 * time.Millisecond, time.Second},
		{"向上取整", 2300 * time.Millisecond, 3 * time.Second},
		{"整秒", 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionTTL(now.Add(tt.remain), now))
		})
	}
}

func TestSessionSweeper_Sweep(t *testing.T) {
	tenants := newFakeTenantStore()
	sessions := newFakeSessionStore(tenants)
	now := time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC)

	require.NoError(t, sessions.CreateSession(context.Background(), &models.Session{ID: "old", Active: true, ExpiresAt: now}))
	require.NoError(t, sessions.CreateSession(context.Background(), &models.Session{ID: "live", Active: true, ExpiresAt: now.Add(24 * time.Hour)}))

	sweeper := NewSessionSweeper(sessions, 3)
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, _ := sessions.get("old")
	assert.False(t, old.Active)
	assert.Equal(t, models.ReasonExpired, *old.TerminationReason)
	live, _ := sessions.get("live")
	assert.True(t, live.Active)
}

func TestSessionSweeper_StartStop(t *testing.T) {
	sweeper := NewSessionSweeper(newFakeSessionStore(newFakeTenantStore()), 3)
	require.NoError(t, sweeper.Start())
	assert.Error(t, sweeper.Start())
	sweeper.Stop()
}
