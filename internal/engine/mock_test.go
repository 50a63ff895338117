package engine

import (
	"context"
	"errors"
	"sync"
)

type agentCounts struct {
	likesGiven, commentsGiven, posts           int
	likesReceived, commentsReceived, followers int
}

// mockStore is an in-memory Store keyed by agent id. Agents listed in
// failFor return errFailing from every count.
type mockStore struct {
	mu       sync.Mutex
	agents   []string
	counts   map[string]agentCounts
	failFor  map[string]bool
	listErr  error
	upserted map[string]EngagementScore
	Calls    []string
}

var errFailing = errors.New("connection refused")

func newMockStore() *mockStore {
	return &mockStore{
		counts:   map[string]agentCounts{},
		failFor:  map[string]bool{},
		upserted: map[string]EngagementScore{},
	}
}

func (m *mockStore) add(id string, c agentCounts) {
	m.agents = append(m.agents, id)
	m.counts[id] = c
}

func (m *mockStore) get(op, id string) (agentCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op+":"+id)
	if m.failFor[id] {
		return agentCounts{}, errFailing
	}
	return m.counts[id], nil
}

func (m *mockStore) CountLikesGiven(_ context.Context, id string) (int, error) {
	c, err := m.get("likes_given", id)
	return c.likesGiven, err
}

func (m *mockStore) CountCommentsGiven(_ context.Context, id string) (int, error) {
	c, err := m.get("comments_given", id)
	return c.commentsGiven, err
}

func (m *mockStore) CountPostsCreated(_ context.Context, id string) (int, error) {
	c, err := m.get("posts", id)
	return c.posts, err
}

func (m *mockStore) CountLikesReceived(_ context.Context, id string) (int, error) {
	c, err := m.get("likes_received", id)
	return c.likesReceived, err
}

func (m *mockStore) CountCommentsReceived(_ context.Context, id string) (int, error) {
	c, err := m.get("comments_received", id)
	return c.commentsReceived, err
}

func (m *mockStore) CountFollowers(_ context.Context, id string) (int, error) {
	c, err := m.get("followers", id)
	return c.followers, err
}

func (m *mockStore) ListAgentIDs(context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]string(nil), m.agents...), nil
}

func (m *mockStore) UpsertEngagementScore(_ context.Context, s EngagementScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted[s.AgentID] = s
	return nil
}

type mockRecorder struct {
	allowed, denied   int
	succeeded, failed int
}

func (r *mockRecorder) GateDecision(allowed bool) {
	if allowed {
		r.allowed++
	} else {
		r.denied++
	}
}

func (r *mockRecorder) ScoreBatch(succeeded, failed int) {
	r.succeeded += succeeded
	r.failed += failed
}
