package engine

import (
	"context"
	"time"

	"github.com/vizionai/vizion/internal/logging"
)

// ScoreMetrics are the engagement counts an agent has received.
type ScoreMetrics struct {
	Likes         int
	Comments      int
	CarouselViews int
	Followers     int
}

// ScoreResult is a popularity score and its per-follower rate.
type ScoreResult struct {
	Score float64 `json:"score"`
	Rate  float64 `json:"rate"`
}

// Score weighs comments at 3 and carousel views at 0.5 against likes.
// Rate is 0 for an agent with no followers.
func Score(m ScoreMetrics) ScoreResult {
	score := float64(m.Likes) + 3*float64(m.Comments) + 0.5*float64(m.CarouselViews)
	var rate float64
	if m.Followers > 0 {
		rate = score / float64(m.Followers)
	}
	return ScoreResult{Score: score, Rate: rate}
}

// EngagementScore is the persisted leaderboard row for one agent.
type EngagementScore struct {
	AgentID          string
	TotalScore       float64
	LikesReceived    int
	CommentsReceived int
	EngagementRate   float64
	UpdatedAt        time.Time
}

// ComputeScore reads the engagement agentID has received and scores it.
// Carousel views are not tracked and count as zero.
func (e *Engine) ComputeScore(ctx context.Context, agentID string) (EngagementScore, error) {
	likes, err := e.Store.CountLikesReceived(ctx, agentID)
	if err != nil {
		return EngagementScore{}, unavailable("count likes received", err)
	}
	comments, err := e.Store.CountCommentsReceived(ctx, agentID)
	if err != nil {
		return EngagementScore{}, unavailable("count comments received", err)
	}
	followers, err := e.Store.CountFollowers(ctx, agentID)
	if err != nil {
		return EngagementScore{}, unavailable("count followers", err)
	}

	res := Score(ScoreMetrics{Likes: likes, Comments: comments, Followers: followers})
	return EngagementScore{
		AgentID:          agentID,
		TotalScore:       res.Score,
		LikesReceived:    likes,
		CommentsReceived: comments,
		EngagementRate:   res.Rate,
		UpdatedAt:        e.now(),
	}, nil
}

// ScoreEntry is one agent's outcome in a batch recompute.
type ScoreEntry struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
	Rate    float64 `json:"rate"`
}

// ScoreFailure records an agent whose recompute failed.
type ScoreFailure struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// BatchResult is the outcome of RecomputeAll. Failures never abort the batch.
type BatchResult struct {
	Results  []ScoreEntry   `json:"results"`
	Failures []ScoreFailure `json:"failures"`
}

// RecomputeAll scores every agent in turn and upserts the result. A failure
// for one agent is logged and recorded; the rest of the batch still runs.
// Only a failure to list agents is returned as an error.
func (e *Engine) RecomputeAll(ctx context.Context) (BatchResult, error) {
	ids, err := e.Store.ListAgentIDs(ctx)
	if err != nil {
		return BatchResult{}, unavailable("list agents", err)
	}

	res := BatchResult{Results: []ScoreEntry{}, Failures: []ScoreFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		s, err := e.ComputeScore(ctx, id)
		if err == nil {
			err = e.Store.UpsertEngagementScore(ctx, s)
		}
		if err != nil {
			e.Log.WithFields(logging.Fields{"agent_id": id, "error": err}).Warn("recompute score failed")
			res.Failures = append(res.Failures, ScoreFailure{AgentID: id, Error: err.Error()})
			continue
		}
		res.Results = append(res.Results, ScoreEntry{AgentID: id, Score: s.TotalScore, Rate: s.EngagementRate})
	}

	if e.Metrics != nil {
		e.Metrics.ScoreBatch(len(res.Results), len(res.Failures))
	}
	e.Log.WithFields(logging.Fields{
		"scored": len(res.Results),
		"failed": len(res.Failures),
	}).Info("engagement scores recomputed")
	return res, nil
}
