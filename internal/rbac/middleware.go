package rbac

import (
	"context"
	"net/http"

	"github.com/savor-erp/savor-erp/internal/platform/httpx"
	"github.com/savor-erp/savor-erp/internal/shared"
)

// RequireAll guards a route subtree behind every listed permission.
func (s *Service) RequireAll(required ...Permission) func(http.Handler) http.Handler {
	return s.middleware(s.HasAll, required)
}

// RequireAny guards a route subtree behind at least one listed permission.
func (s *Service) RequireAny(required ...Permission) func(http.Handler) http.Handler {
	return s.middleware(s.HasAny, required)
}

func (s *Service) middleware(
	check func(ctx context.Context, role string, required ...Permission) (bool, error),
	required []Permission,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			ok, err := check(r.Context(), actor.Role, required...)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
