package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Repository loads the granted permission set for a role.
type Repository interface {
	ListRolePermissions(ctx context.Context, role string) ([]Permission, error)
}

// Service resolves effective permissions per role, caching the resolved set
// in Redis so hot-path authorization checks avoid the database.
type Service struct {
	repo  Repository
	cache *redis.Client
}

func NewService(repo Repository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache}
}

// Permissions returns the granted set for a role.
func (s *Service) Permissions(ctx context.Context, role string) ([]Permission, error) {
	key := "rbac:role:" + role
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var perms []Permission
			if jerr := json.Unmarshal([]byte(raw), &perms); jerr == nil {
				return perms, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("rbac: cache read: %w", err)
		}
	}
	perms, err := s.repo.ListRolePermissions(ctx, role)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(perms); err == nil {
			_ = s.cache.Set(ctx, key, raw, cacheTTL).Err()
		}
	}
	return perms, nil
}

// Invalidate drops the cached set for a role after a grant change.
func (s *Service) Invalidate(ctx context.Context, role string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, "rbac:role:"+role).Err()
}

// HasAll reports whether the role holds every required permission.
func (s *Service) HasAll(ctx context.Context, role string, required ...Permission) (bool, error) {
	granted, err := s.Permissions(ctx, role)
	if err != nil {
		return false, err
	}
	set := toSet(granted)
	for _, p := range required {
		if !set[p] {
			return false, nil
		}
	}
	return true, nil
}

// HasAny reports whether the role holds at least one of the permissions.
func (s *Service) HasAny(ctx context.Context, role string, required ...Permission) (bool, error) {
	granted, err := s.Permissions(ctx, role)
	if err != nil {
		return false, err
	}
	set := toSet(granted)
	for _, p := range required {
		if set[p] {
			return true, nil
		}
	}
	return false, nil
}

func toSet(perms []Permission) map[Permission]bool {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}
