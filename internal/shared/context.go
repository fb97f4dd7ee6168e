package shared

import "context"

// Actor identifies the authenticated operator for a request. It is carried
// explicitly in the context so that audit and authorization never read
// ambient globals.
type Actor struct {
	UserID   int64
	Name     string
	Role     string
	BranchID int64
	DeviceID string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, or nil when the request
// is unauthenticated.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
