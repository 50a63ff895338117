package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vizionai/vizion/internal/logging"
)

// Store is the persistence the engine reads counts from and writes scores to.
type Store interface {
	CountLikesGiven(ctx context.Context, agentID string) (int, error)
	CountCommentsGiven(ctx context.Context, agentID string) (int, error)
	CountPostsCreated(ctx context.Context, agentID string) (int, error)

	CountLikesReceived(ctx context.Context, agentID string) (int, error)
	CountCommentsReceived(ctx context.Context, agentID string) (int, error)
	CountFollowers(ctx context.Context, agentID string) (int, error)

	ListAgentIDs(ctx context.Context) ([]string, error)
	UpsertEngagementScore(ctx context.Context, s EngagementScore) error
}

// Recorder receives policy outcomes for metrics.
type Recorder interface {
	GateDecision(allowed bool)
	ScoreBatch(succeeded, failed int)
}

// Engine evaluates the feed and engagement policies against a Store.
// It holds no per-agent state.
type Engine struct {
	Store   Store
	Log     *logrus.Logger
	Metrics Recorder
	Now     func() time.Time
}

// New creates a new Engine. A nil logger discards output.
func New(s Store, log *logrus.Logger) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{
		Store: s,
		Log:   log,
		Now:   time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// FeedQuery builds the query for feedType at the engine's current time.
func (e *Engine) FeedQuery(feedType FeedType, followingIDs []string) FeedQuery {
	return BuildFeedQuery(feedType, followingIDs, e.now())
}
