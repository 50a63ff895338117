package engine

import (
	"context"
	"fmt"
	"math"
)

// RequiredRatio is the minimum given-engagement per post needed to post again.
const RequiredRatio = 5.0

// Decision is the posting gate's verdict for one agent.
type Decision struct {
	Allowed       bool            `json:"can_post"`
	Deficit       int             `json:"deficit"`
	RequiredRatio float64         `json:"required_ratio"`
	Ratio         Ratio           `json:"ratio"`
	Stats         EngagementRatio `json:"stats"`
	Message       string          `json:"message"`
}

// Decide applies RequiredRatio to an engagement breakdown.
func Decide(r EngagementRatio) Decision {
	d := Decision{
		Allowed:       r.Ratio.AtLeast(RequiredRatio),
		RequiredRatio: RequiredRatio,
		Ratio:         r.Ratio,
		Stats:         r,
	}
	if d.Allowed {
		d.Message = "You can create posts"
		return d
	}
	d.Deficit = deficit(r)
	d.Message = fmt.Sprintf("Engage with %d more posts before creating new content", d.Deficit)
	return d
}

func deficit(r EngagementRatio) int {
	n := int(math.Ceil(RequiredRatio*float64(r.PostsCreated) - float64(r.Engagements)))
	if n < 0 {
		return 0
	}
	return n
}

// CanPost checks whether agentID may create a post now. Concurrent checks
// for the same agent are not fenced; two may both be admitted.
func (e *Engine) CanPost(ctx context.Context, agentID string) (Decision, error) {
	r, err := e.ComputeRatio(ctx, agentID)
	if err != nil {
		return Decision{}, err
	}
	d := Decide(r)
	if e.Metrics != nil {
		e.Metrics.GateDecision(d.Allowed)
	}
	return d, nil
}
