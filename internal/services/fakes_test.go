package services

import (
	"context"
	"sync"
	"time"

	"tecnodash/internal/models"
	"tecnodash/pkg/cnpj"
	"tecnodash/pkg/mailer"

	"github.com/google/uuid"
)

type fakeTenantStore struct {
	mu             sync.Mutex
	tenants        map[string]*models.Tenant
	nextRedirectID uint

	createErr          error
	deleteTenantErr    error
	deleteRedirectsErr error
	skipRedirectIDs    bool

	deletedRedirects [][]uint
	deletedTenants   []string
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{tenants: make(map[string]*models.Tenant)}
}

func (f *fakeTenantStore) add(tenant *models.Tenant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tenant.TenantID == "" {
		tenant.TenantID = uuid.NewString()
	}
	f.tenants[tenant.TenantID] = tenant
}

func (f *fakeTenantStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tenants)
}

func (f *fakeTenantStore) get(id string) *models.Tenant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenants[id]
}

func (f *fakeTenantStore) ExistsByEmailOrCNPJ(ctx context.Context, email, cnpj string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.Email == email || t.CNPJ == cnpj {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTenantStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tenant.TenantID = uuid.NewString()
	for i := range tenant.Redirects {
		if f.skipRedirectIDs {
			continue
		}
		f.nextRedirectID++
		tenant.Redirects[i].UserID = f.nextRedirectID
		tenant.Redirects[i].TenantID = tenant.TenantID
	}
	f.tenants[tenant.TenantID] = tenant
	return nil
}

func (f *fakeTenantStore) DeleteRedirects(ctx context.Context, userIDs []uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedRedirects = append(f.deletedRedirects, userIDs)
	return f.deleteRedirectsErr
}

func (f *fakeTenantStore) DeleteTenant(ctx context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedTenants = append(f.deletedTenants, tenantID)
	if f.deleteTenantErr != nil {
		return f.deleteTenantErr
	}
	delete(f.tenants, tenantID)
	return nil
}

func (f *fakeTenantStore) FindTenantByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.Email == email {
			return t, nil
		}
	}
	return nil, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	tenants  *fakeTenantStore

	createErr    error
	terminateErr error
	tokenUpdates int
	terminated   int
}

func newFakeSessionStore(tenants *fakeTenantStore) *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session), tenants: tenants}
}

func (f *fakeSessionStore) get(id string) (models.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s, ok
}

func (f *fakeSessionStore) Transaction(ctx context.Context, fn func(tx SessionStore) error) error {
	f.mu.Lock()
	snapshot := make(map[string]models.Session, len(f.sessions))
	for k, v := range f.sessions {
		snapshot[k] = v
	}
	updates, terminated := f.tokenUpdates, f.terminated
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.sessions = snapshot
		f.tokenUpdates, f.terminated = updates, terminated
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeSessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	f.sessions[session.ID] = *session
	return nil
}

func (f *fakeSessionStore) FindActiveSession(ctx context.Context, refreshToken, tenantID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.RefreshToken == refreshToken && s.TenantID == tenantID && s.Active {
			found := s
			found.Tenant = f.tenants.get(tenantID)
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionStore) UpdateSessionToken(ctx context.Context, refreshToken, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows int64
	for id, s := range f.sessions {
		if s.RefreshToken == refreshToken {
			s.Token = token
			f.sessions[id] = s
			rows++
		}
	}
	f.tokenUpdates += int(rows)
	return rows, nil
}

func (f *fakeSessionStore) TerminateSession(ctx context.Context, sessionID, reason string, at time.Time) error {
	if f.terminateErr != nil {
		return f.terminateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil
	}
	s.Active = false
	s.TerminatedAt = &at
	s.TerminationReason = &reason
	f.sessions[sessionID] = s
	f.terminated++
	return nil
}

func (f *fakeSessionStore) ListActiveSessions(ctx context.Context, tenantID string, now time.Time) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.TenantID == tenantID && s.Active && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ExpireSessions(ctx context.Context, now time.Time, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Active && !s.ExpiresAt.After(now) {
			s.Active = false
			s.TerminatedAt = &now
			s.TerminationReason = &reason
			f.sessions[id] = s
			n++
		}
	}
	return n, nil
}

type fakeProvisioner struct {
	mu        sync.Mutex
	created   []string
	dropped   []string
	createErr error
	dropErr   error
}

func (f *fakeProvisioner) CreateDatabase(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return f.createErr
}

func (f *fakeProvisioner) DropDatabase(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, name)
	return f.dropErr
}

type fakeMigrator struct {
	mu      sync.Mutex
	conns   []string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeMigrator) Migrate(ctx context.Context, connString string) (string, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, connString)
	if f.err != nil {
		return "", f.err
	}
	return "1/u init", nil
}

type fakeRegistry struct {
	company *cnpj.Company
	err     error
	calls   int
}

func (f *fakeRegistry) Lookup(ctx context.Context, legalID string) (*cnpj.Company, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.company, nil
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
