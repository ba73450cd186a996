package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/types"
)

type fakeStore struct {
	tenants       map[string]*types.Tenant
	apiKeysByHash map[string]*types.APIKey
	touchedKeyID  string
	touchedAt     time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:       make(map[string]*types.Tenant),
		apiKeysByHash: make(map[string]*types.APIKey),
	}
}

func (f *fakeStore) CreateJob(job *types.Job) error { return nil }
func (f *fakeStore) GetJob(id string) (*types.Job, error) {
	return nil, docerrors.E("fakeStore.GetJob", docerrors.NotFound, nil)
}
func (f *fakeStore) ListJobsByTenant(tenantID string, filter jobstore.ListFilter) ([]*types.Job, error) {
	return nil, nil
}
func (f *fakeStore) CountJobsInPeriod(tenantID string, since time.Time) (int, error) { return 0, nil }
func (f *fakeStore) StartJob(jobID string, startedAt time.Time) error                 { return nil }
func (f *fakeStore) CompleteJob(jobID string, completedAt time.Time, outputPaths []string, outputName string, outputSize int64, resultData types.ResultData) error {
	return nil
}
func (f *fakeStore) FailJob(jobID string, completedAt time.Time, errKind, errMessage string) error {
	return nil
}
func (f *fakeStore) CancelJob(jobID string, completedAt time.Time) error    { return nil }
func (f *fakeStore) DeleteJob(id string) error                             { return nil }
func (f *fakeStore) DeleteTenantJobs(tenantID string) ([]*types.Job, error) { return nil, nil }
func (f *fakeStore) ListTerminalJobsOlderThan(cutoff time.Time) ([]*types.Job, error) {
	return nil, nil
}

func (f *fakeStore) CreateTenant(tenant *types.Tenant) error {
	f.tenants[tenant.ID] = tenant
	return nil
}
func (f *fakeStore) GetTenant(id string) (*types.Tenant, error) {
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, docerrors.E("fakeStore.GetTenant", docerrors.NotFound, nil)
}
func (f *fakeStore) GetTenantByEmail(email string) (*types.Tenant, error) {
	for _, t := range f.tenants {
		if t.Email == email {
			return t, nil
		}
	}
	return nil, docerrors.E("fakeStore.GetTenantByEmail", docerrors.NotFound, nil)
}
func (f *fakeStore) UpdateTenant(tenant *types.Tenant) error {
	f.tenants[tenant.ID] = tenant
	return nil
}
func (f *fakeStore) IncrementUsage(tenantID string) error { return nil }
func (f *fakeStore) ResetUsageIfExpired(tenantID string, now time.Time, periodLength time.Duration) error {
	return nil
}
func (f *fakeStore) GetPlan(id string) (*types.Plan, error) {
	return nil, docerrors.E("fakeStore.GetPlan", docerrors.NotFound, nil)
}
func (f *fakeStore) ListPlans() ([]*types.Plan, error) { return nil, nil }
func (f *fakeStore) PutPlan(plan *types.Plan) error    { return nil }

func (f *fakeStore) CreateAPIKey(key *types.APIKey) error {
	f.apiKeysByHash[key.KeyHash] = key
	return nil
}
func (f *fakeStore) GetAPIKeyByHash(hash string) (*types.APIKey, error) {
	if k, ok := f.apiKeysByHash[hash]; ok {
		return k, nil
	}
	return nil, docerrors.E("fakeStore.GetAPIKeyByHash", docerrors.NotFound, nil)
}
func (f *fakeStore) ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error) { return nil, nil }
func (f *fakeStore) RevokeAPIKey(id string) error                                { return nil }
func (f *fakeStore) TouchAPIKey(id string, usedAt time.Time) error {
	f.touchedKeyID = id
	f.touchedAt = usedAt
	return nil
}
func (f *fakeStore) Close() error { return nil }

var _ jobstore.Store = (*fakeStore)(nil)

func testConfig() Config {
	return Config{SecretKey: "test-secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour}
}

func TestNewRejectsMissingConfig(t *testing.T) {
	_, err := New(newFakeStore(), Config{})
	require.Error(t, err)

	_, err = New(newFakeStore(), Config{SecretKey: "x"})
	require.Error(t, err, "missing TTLs should be rejected")
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)
	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong password"))
}

func TestIssueAndVerifyTokenPair(t *testing.T) {
	a, err := New(newFakeStore(), testConfig())
	require.NoError(t, err)

	tenant := &types.Tenant{ID: "tenant-1", Email: "a@example.com"}
	pair, err := a.IssueTokenPair(tenant)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(60), pair.ExpiresIn)

	claims, err := a.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)

	_, err = a.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	a, err := New(newFakeStore(), testConfig())
	require.NoError(t, err)

	tenant := &types.Tenant{ID: "tenant-1", Email: "a@example.com"}
	pair, err := a.IssueTokenPair(tenant)
	require.NoError(t, err)

	_, err = a.VerifyAccessToken(pair.RefreshToken)
	require.Error(t, err, "a refresh token must not verify as an access token")

	_, err = a.VerifyRefreshToken(pair.AccessToken)
	require.Error(t, err, "an access token must not verify as a refresh token")
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	a, err := New(newFakeStore(), testConfig())
	require.NoError(t, err)
	other, err := New(newFakeStore(), Config{SecretKey: "different-secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	tenant := &types.Tenant{ID: "tenant-1", Email: "a@example.com"}
	pair, err := a.IssueTokenPair(tenant)
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, docerrors.Unauthenticated, docerrors.KindOf(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	a, err := New(newFakeStore(), Config{SecretKey: "s", AccessTokenTTL: time.Nanosecond, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	tenant := &types.Tenant{ID: "tenant-1", Email: "a@example.com"}
	pair, err := a.IssueTokenPair(tenant)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = a.VerifyAccessToken(pair.AccessToken)
	require.Error(t, err)
}

func TestGenerateAndAuthenticateAPIKey(t *testing.T) {
	store := newFakeStore()
	store.tenants["tenant-1"] = &types.Tenant{ID: "tenant-1", Email: "a@example.com"}
	a, err := New(store, testConfig())
	require.NoError(t, err)

	raw, key, err := GenerateAPIKey("tenant-1", "ci key")
	require.NoError(t, err)
	assert.NotEmpty(t, key.ID)
	assert.NotEqual(t, raw, key.KeyHash, "stored hash must not be the raw key")
	require.NoError(t, store.CreateAPIKey(key))

	tenant, gotKey, err := a.AuthenticateAPIKey(raw)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant.ID)
	assert.Equal(t, key.ID, gotKey.ID)
	assert.Equal(t, key.ID, store.touchedKeyID, "successful auth should touch LastUsedAt")
}

func TestAuthenticateAPIKeyRejectsUnknownOrRevoked(t *testing.T) {
	store := newFakeStore()
	a, err := New(store, testConfig())
	require.NoError(t, err)

	_, _, err = a.AuthenticateAPIKey("dpk_does-not-exist")
	require.Error(t, err)

	store.tenants["tenant-1"] = &types.Tenant{ID: "tenant-1"}
	raw, key, err := GenerateAPIKey("tenant-1", "revoked key")
	require.NoError(t, err)
	key.Revoked = true
	require.NoError(t, store.CreateAPIKey(key))

	_, _, err = a.AuthenticateAPIKey(raw)
	require.Error(t, err)
	assert.Equal(t, docerrors.Unauthenticated, docerrors.KindOf(err))
}
