package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/shared"
)

type memoryRepo struct {
	grants map[string][]Permission
	loads  int
}

func (m *memoryRepo) ListRolePermissions(_ context.Context, role string) ([]Permission, error) {
	m.loads++
	return m.grants[role], nil
}

func testService(t *testing.T, repo *memoryRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, client)
}

func TestPermissionsCachesPerRole(t *testing.T) {
	repo := &memoryRepo{grants: map[string][]Permission{
		"cashier": {PermNavPOS, PermOpOrderCreate},
	}}
	svc := testService(t, repo)
	ctx := context.Background()

	perms, err := svc.Permissions(ctx, "cashier")
	require.NoError(t, err)
	require.Equal(t, []Permission{PermNavPOS, PermOpOrderCreate}, perms)

	_, err = svc.Permissions(ctx, "cashier")
	require.NoError(t, err)
	require.Equal(t, 1, repo.loads, "second lookup must hit the cache")

	require.NoError(t, svc.Invalidate(ctx, "cashier"))
	_, err = svc.Permissions(ctx, "cashier")
	require.NoError(t, err)
	require.Equal(t, 2, repo.loads)
}

func TestHasAllAndHasAny(t *testing.T) {
	repo := &memoryRepo{grants: map[string][]Permission{
		"manager": {PermNavPOS, PermOpOrderCreate, PermOpPriceChange},
	}}
	svc := testService(t, repo)
	ctx := context.Background()

	ok, err := svc.HasAll(ctx, "manager", PermNavPOS, PermOpPriceChange)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasAll(ctx, "manager", PermNavPOS, PermCfgUserManage)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.HasAny(ctx, "manager", PermCfgUserManage, PermOpPriceChange)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasAny(ctx, "manager", PermCfgUserManage)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRequireAllMiddleware(t *testing.T) {
	repo := &memoryRepo{grants: map[string][]Permission{
		"cashier": {PermOpOrderCreate},
	}}
	svc := testService(t, repo)

	handler := svc.RequireAll(PermOpOrderCreate)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// No actor in context.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Actor with the grant.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), &shared.Actor{UserID: 1, Role: "cashier"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Actor without the grant.
	denied := svc.RequireAll(PermCfgUserManage)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), &shared.Actor{UserID: 1, Role: "cashier"}))
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
