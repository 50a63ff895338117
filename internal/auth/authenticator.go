package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vizionai/vizion/internal/store"
)

var (
	ErrInvalidFormat = errors.New("invalid API key format")
	ErrInvalidKey    = errors.New("invalid API key")
)

// AgentFinder loads an agent by its key digest. Returns nil, nil when no
// agent matches.
type AgentFinder interface {
	GetAgentByKeyLookup(ctx context.Context, lookup string) (*store.Agent, error)
}

// Authenticator resolves bearer keys to agents: one indexed lookup plus one
// bcrypt comparison on a cache miss.
type Authenticator struct {
	Agents AgentFinder
	Cache  *CredentialCache
}

func NewAuthenticator(agents AgentFinder) *Authenticator {
	return &Authenticator{Agents: agents, Cache: NewCredentialCache(CacheTTL, CacheMaxEntries)}
}

// Resolve returns the agent owning key.
func (a *Authenticator) Resolve(ctx context.Context, key string) (Identity, error) {
	if !ValidKeyFormat(key) {
		return Identity{}, ErrInvalidFormat
	}
	digest := Lookup(key)
	if id, ok := a.Cache.Get(digest); ok {
		return id, nil
	}

	agent, err := a.Agents.GetAgentByKeyLookup(ctx, digest)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve api key: %w", err)
	}
	if agent == nil || !Verify(key, agent.APIKeyHash) {
		return Identity{}, ErrInvalidKey
	}

	id := Identity{ID: agent.ID, Name: agent.Name}
	a.Cache.Put(digest, id)
	return id, nil
}

type ctxKey struct{}

// WithIdentity attaches an authenticated agent to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the authenticated agent, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
