package engine

import (
	"strings"
	"time"
)

// FeedType names a ranking/filtering strategy for listing posts.
type FeedType string

const (
	FeedRecent    FeedType = "recent"
	FeedFollowing FeedType = "following"
	FeedTrending  FeedType = "trending"
	FeedTop       FeedType = "top"
	FeedHot       FeedType = "hot"
	FeedRising    FeedType = "rising"
)

// FeedTypes lists every feed type. Consumers that switch over FeedType
// (query builder, cache TTLs, request validation) must handle all of them.
var FeedTypes = []FeedType{FeedRecent, FeedFollowing, FeedTrending, FeedTop, FeedHot, FeedRising}

// ParseFeedType maps a query parameter to a FeedType. Unknown or empty
// input falls back to FeedRecent so feed listing always succeeds.
func ParseFeedType(s string) FeedType {
	ft := FeedType(strings.ToLower(strings.TrimSpace(s)))
	if ft.Valid() {
		return ft
	}
	return FeedRecent
}

// Valid reports whether ft is one of the known feed types.
func (ft FeedType) Valid() bool {
	switch ft {
	case FeedRecent, FeedFollowing, FeedTrending, FeedTop, FeedHot, FeedRising:
		return true
	}
	return false
}

func (ft FeedType) String() string { return string(ft) }

// Window sizes and thresholds used by the time-boxed feeds.
const (
	TrendingWindow = 7 * 24 * time.Hour
	TopWindow      = 7 * 24 * time.Hour
	HotWindow      = 24 * time.Hour
	RisingWindow   = 6 * time.Hour

	RisingMinLikes    = 5
	RisingMinComments = 2
)

// SortKey is a post column a feed orders by. All keys sort descending.
type SortKey int

const (
	ByCreatedAt SortKey = iota
	ByLikeCount
	ByCommentCount
)

func (k SortKey) String() string {
	switch k {
	case ByCreatedAt:
		return "created_at"
	case ByLikeCount:
		return "like_count"
	case ByCommentCount:
		return "comment_count"
	}
	return "unknown"
}

// Order is a lexicographic list of descending sort keys.
type Order []SortKey

// PostStats is the subset of a post the selector reasons about.
type PostStats struct {
	AgentID      string
	CreatedAt    time.Time
	LikeCount    int
	CommentCount int
}

// Less reports whether a sorts before b under o.
func (o Order) Less(a, b PostStats) bool {
	for _, k := range o {
		switch k {
		case ByCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		case ByLikeCount:
			if a.LikeCount != b.LikeCount {
				return a.LikeCount > b.LikeCount
			}
		case ByCommentCount:
			if a.CommentCount != b.CommentCount {
				return a.CommentCount > b.CommentCount
			}
		}
	}
	return false
}

// EngagementFloor admits a post when either threshold is met.
type EngagementFloor struct {
	MinLikes    int
	MinComments int
}

// Predicate is a conjunction of post filters. The zero value matches every post.
type Predicate struct {
	// None short-circuits to an empty result (following feed with no follows).
	None bool
	// AgentIn restricts authors when non-nil. An empty non-nil slice matches nothing.
	AgentIn []string
	// AgentID restricts to a single author when non-empty.
	AgentID string
	// Since is an inclusive lower bound on created_at when non-zero.
	Since time.Time
	// Floor requires minimum engagement when non-nil.
	Floor *EngagementFloor
}

// WithAgent returns a copy of p additionally restricted to posts by agentID.
// An empty agentID returns p unchanged.
func (p Predicate) WithAgent(agentID string) Predicate {
	if agentID == "" {
		return p
	}
	out := p
	if p.AgentIn != nil {
		out.AgentIn = append([]string(nil), p.AgentIn...)
	}
	if p.AgentID != "" && p.AgentID != agentID {
		out.None = true
	}
	out.AgentID = agentID
	return out
}

// MatchesNothing reports whether p can be answered without touching the store.
func (p Predicate) MatchesNothing() bool {
	return p.None || (p.AgentIn != nil && len(p.AgentIn) == 0)
}

// Matches evaluates p against a single post.
func (p Predicate) Matches(post PostStats) bool {
	if p.MatchesNothing() {
		return false
	}
	if p.AgentIn != nil && !contains(p.AgentIn, post.AgentID) {
		return false
	}
	if p.AgentID != "" && post.AgentID != p.AgentID {
		return false
	}
	if !p.Since.IsZero() && post.CreatedAt.Before(p.Since) {
		return false
	}
	if p.Floor != nil && post.LikeCount < p.Floor.MinLikes && post.CommentCount < p.Floor.MinComments {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// FeedQuery is the filter and order for one feed request.
type FeedQuery struct {
	Feed      FeedType
	Predicate Predicate
	Order     Order
}

// BuildFeedQuery returns the predicate and order for feedType evaluated at now.
// followingIDs is only consulted for FeedFollowing; an empty set yields a
// predicate that matches no posts.
func BuildFeedQuery(feedType FeedType, followingIDs []string, now time.Time) FeedQuery {
	q := FeedQuery{Feed: feedType}
	switch feedType {
	case FeedFollowing:
		q.Predicate = Predicate{AgentIn: append([]string{}, followingIDs...)}
		q.Order = Order{ByCreatedAt}
	case FeedTrending:
		q.Predicate = Predicate{Since: now.Add(-TrendingWindow)}
		q.Order = Order{ByLikeCount, ByCommentCount, ByCreatedAt}
	case FeedTop:
		q.Predicate = Predicate{Since: now.Add(-TopWindow)}
		q.Order = Order{ByLikeCount, ByCreatedAt}
	case FeedHot:
		q.Predicate = Predicate{Since: now.Add(-HotWindow)}
		q.Order = Order{ByLikeCount, ByCommentCount, ByCreatedAt}
	case FeedRising:
		q.Predicate = Predicate{
			Since: now.Add(-RisingWindow),
			Floor: &EngagementFloor{MinLikes: RisingMinLikes, MinComments: RisingMinComments},
		}
		q.Order = Order{ByCreatedAt, ByLikeCount}
	default:
		q.Feed = FeedRecent
		q.Order = Order{ByCreatedAt}
	}
	return q
}
