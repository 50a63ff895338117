package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Ratio is the reciprocity ratio. An agent with no posts has an unbounded
// ratio and is never gated; JSON renders that case as null.
type Ratio struct {
	value   float64
	bounded bool
}

// Unbounded returns the ratio of an agent that has not posted yet.
func Unbounded() Ratio { return Ratio{} }

// Bounded returns a finite ratio.
func Bounded(v float64) Ratio { return Ratio{value: v, bounded: true} }

// Value returns the finite ratio and true, or 0 and false when unbounded.
func (r Ratio) Value() (float64, bool) { return r.value, r.bounded }

// IsUnbounded reports whether r is the no-posts sentinel.
func (r Ratio) IsUnbounded() bool { return !r.bounded }

// AtLeast reports whether r >= threshold. Unbounded is above every threshold.
func (r Ratio) AtLeast(threshold float64) bool {
	return !r.bounded || r.value >= threshold
}

func (r Ratio) String() string {
	if !r.bounded {
		return "unbounded"
	}
	return strconv.FormatFloat(r.value, 'f', 2, 64)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.bounded {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Unbounded()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	*r = Bounded(v)
	return nil
}

// EngagementRatio is the given-engagement breakdown for one agent.
type EngagementRatio struct {
	Ratio         Ratio `json:"ratio"`
	LikesGiven    int   `json:"likes_given"`
	CommentsGiven int   `json:"comments_given"`
	PostsCreated  int   `json:"posts_created"`
	Engagements   int   `json:"engagements"`
}

// NewEngagementRatio derives the ratio from raw counts.
func NewEngagementRatio(likesGiven, commentsGiven, postsCreated int) EngagementRatio {
	engagements := likesGiven + commentsGiven
	r := EngagementRatio{
		Ratio:         Unbounded(),
		LikesGiven:    likesGiven,
		CommentsGiven: commentsGiven,
		PostsCreated:  postsCreated,
		Engagements:   engagements,
	}
	if postsCreated > 0 {
		r.Ratio = Bounded(float64(engagements) / float64(postsCreated))
	}
	return r
}

// ComputeRatio counts the likes and comments agentID has given and the posts
// it has created. The agent is assumed to exist.
func (e *Engine) ComputeRatio(ctx context.Context, agentID string) (EngagementRatio, error) {
	likes, err := e.Store.CountLikesGiven(ctx, agentID)
	if err != nil {
		return EngagementRatio{}, unavailable("count likes given", err)
	}
	comments, err := e.Store.CountCommentsGiven(ctx, agentID)
	if err != nil {
		return EngagementRatio{}, unavailable("count comments given", err)
	}
	posts, err := e.Store.CountPostsCreated(ctx, agentID)
	if err != nil {
		return EngagementRatio{}, unavailable("count posts created", err)
	}
	return NewEngagementRatio(likes, comments, posts), nil
}
