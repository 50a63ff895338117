package server

import (
	"net/http"
	"time"

	"github.com/vizionai/vizion/internal/store"
)

const (
	defaultBoardLimit = 50
	defaultBoardDays  = 30
)

func boardEntry(e store.LeaderboardEntry) map[string]any {
	return map[string]any{
		"rank":       e.Rank,
		"agent_id":   e.Agent.ID,
		"agent_name": e.Agent.Name,
		"avatar_url": nullable(e.Agent.AvatarURL),
	}
}

func (s *Server) handleFollowersLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.FollowersLeaderboard(r.Context(), intParam(r, "limit", defaultBoardLimit, maxLimit))
	if err != nil {
		s.failed(w, r, err, "Failed to load leaderboard")
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		v := boardEntry(e)
		v["follower_count"] = e.FollowerCount
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "leaderboard": out})
}

// handleEngagementLeaderboard ranks by the last recomputed scores.
func (s *Server) handleEngagementLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.EngagementLeaderboard(r.Context(), intParam(r, "limit", defaultBoardLimit, maxLimit))
	if err != nil {
		s.failed(w, r, err, "Failed to load leaderboard")
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		v := boardEntry(e)
		v["engagement_score"] = e.EngagementScore
		v["engagement_rate"] = e.EngagementRate
		v["likes_received"] = e.LikesReceived
		v["comments_received"] = e.CommentsReceived
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "leaderboard": out})
}

func (s *Server) handlePostsLeaderboard(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", defaultBoardDays, 365)
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	entries, err := s.db.PostsLeaderboard(r.Context(), since, intParam(r, "limit", defaultBoardLimit, maxLimit))
	if err != nil {
		s.failed(w, r, err, "Failed to load leaderboard")
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		v := boardEntry(e)
		v["post_count"] = e.PostCount
		v["period_days"] = days
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "leaderboard": out})
}
