package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/shared"
)

// Repository abstracts user persistence.
type Repository interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	Insert(ctx context.Context, user User) (User, error)
	List(ctx context.Context) ([]User, error)
}

// AuditPort records account creation.
type AuditPort interface {
	Record(ctx context.Context, event audit.EventType, payload audit.Payload, meta map[string]any) (audit.Record, error)
}

// Service issues opaque session tokens backed by Redis. A token resolves to
// the full actor so request handling never re-reads the user row.
type Service struct {
	repo     Repository
	sessions *redis.Client
	audit    AuditPort
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(repo Repository, sessions *redis.Client, auditor AuditPort, tokenTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		audit:    auditor,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies credentials and issues a session token bound to the actor.
func (s *Service) Login(ctx context.Context, username, password, deviceID string) (Session, shared.Actor, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Same failure surface as a wrong password, to avoid leaking
			// which usernames exist.
			return Session{}, shared.Actor{}, ErrInvalidCredentials
		}
		return Session{}, shared.Actor{}, err
	}
	if !user.Active {
		return Session{}, shared.Actor{}, ErrUserDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, shared.Actor{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return Session{}, shared.Actor{}, err
	}
	actor := shared.Actor{
		UserID:   user.ID,
		Name:     user.Name,
		Role:     user.Role,
		BranchID: user.BranchID,
		DeviceID: deviceID,
	}
	raw, err := json.Marshal(actor)
	if err != nil {
		return Session{}, shared.Actor{}, err
	}
	if err := s.sessions.Set(ctx, sessionKey(token), raw, s.tokenTTL).Err(); err != nil {
		return Session{}, shared.Actor{}, fmt.Errorf("auth: store session: %w", err)
	}
	session := Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: s.now().UTC().Add(s.tokenTTL),
	}
	return session, actor, nil
}

// Resolve maps a token back to its actor, refreshing the TTL on use.
func (s *Service) Resolve(ctx context.Context, token string) (*shared.Actor, error) {
	raw, err := s.sessions.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read session: %w", err)
	}
	var actor shared.Actor
	if err := json.Unmarshal([]byte(raw), &actor); err != nil {
		return nil, ErrInvalidToken
	}
	_ = s.sessions.Expire(ctx, sessionKey(token), s.tokenTTL).Err()
	return &actor, nil
}

// Logout revokes a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Del(ctx, sessionKey(token)).Err()
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Username string
	Name     string
	Role     string
	BranchID int64
	Password string
}

// CreateUser registers an account with a bcrypt password hash and audits the
// creation.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("auth: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user, err := s.repo.Insert(ctx, User{
		Username:     input.Username,
		Name:         input.Name,
		Role:         input.Role,
		BranchID:     input.BranchID,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return User{}, err
	}
	if s.audit != nil {
		_, _ = s.audit.Record(ctx, audit.EventUserCreate, audit.Payload{
			After: audit.Marshal(map[string]any{
				"id": user.ID, "username": user.Username, "role": user.Role,
			}),
		}, map[string]any{"user_id": user.ID})
	}
	return user, nil
}

// Users lists accounts without their password hashes.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
