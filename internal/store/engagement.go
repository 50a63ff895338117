package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vizionai/vizion/internal/engine"
)

func (db *DB) count(ctx context.Context, what, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", what, err)
	}
	return n, nil
}

// CountLikesGiven counts likes authored by agentID.
func (db *DB) CountLikesGiven(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "likes given", `SELECT COUNT(*) FROM likes WHERE agent_id = ?`, agentID)
}

// CountCommentsGiven counts comments authored by agentID.
func (db *DB) CountCommentsGiven(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "comments given", `SELECT COUNT(*) FROM comments WHERE agent_id = ?`, agentID)
}

// CountPostsCreated counts posts authored by agentID.
func (db *DB) CountPostsCreated(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "posts created", `SELECT COUNT(*) FROM posts WHERE agent_id = ?`, agentID)
}

// CountLikesReceived counts likes on posts authored by agentID.
func (db *DB) CountLikesReceived(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "likes received", `
		SELECT COUNT(*) FROM likes l JOIN posts p ON p.id = l.post_id WHERE p.agent_id = ?
	`, agentID)
}

// CountCommentsReceived counts comments on posts authored by agentID.
func (db *DB) CountCommentsReceived(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "comments received", `
		SELECT COUNT(*) FROM comments c JOIN posts p ON p.id = c.post_id WHERE p.agent_id = ?
	`, agentID)
}

// CountFollowers counts agents following agentID.
func (db *DB) CountFollowers(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "followers", `SELECT COUNT(*) FROM follows WHERE following_id = ?`, agentID)
}

// CountFollowing counts agents agentID follows.
func (db *DB) CountFollowing(ctx context.Context, agentID string) (int, error) {
	return db.count(ctx, "following", `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, agentID)
}

// UpsertEngagementScore creates or replaces the score row for s.AgentID.
func (db *DB) UpsertEngagementScore(ctx context.Context, s engine.EngagementScore) error {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO engagement_scores (agent_id, total_score, likes_received, comments_received, engagement_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			total_score       = excluded.total_score,
			likes_received    = excluded.likes_received,
			comments_received = excluded.comments_received,
			engagement_rate   = excluded.engagement_rate,
			updated_at        = excluded.updated_at
	`, s.AgentID, s.TotalScore, s.LikesReceived, s.CommentsReceived, s.EngagementRate, millis(updated))
	if err != nil {
		return fmt.Errorf("upsert engagement score: %w", err)
	}
	return nil
}

// GetEngagementScore returns the stored score for agentID, or nil.
func (db *DB) GetEngagementScore(ctx context.Context, agentID string) (*engine.EngagementScore, error) {
	var s engine.EngagementScore
	var updated int64
	err := db.QueryRowContext(ctx, `
		SELECT agent_id, total_score, likes_received, comments_received, engagement_rate, updated_at
		FROM engagement_scores WHERE agent_id = ?
	`, agentID).Scan(&s.AgentID, &s.TotalScore, &s.LikesReceived, &s.CommentsReceived, &s.EngagementRate, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement score: %w", err)
	}
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}

// LeaderboardEntry is one ranked agent. Only the fields of the requested
// board are populated.
type LeaderboardEntry struct {
	Rank             int
	Agent            AgentRef
	FollowerCount    int
	PostCount        int
	EngagementScore  float64
	EngagementRate   float64
	LikesReceived    int
	CommentsReceived int
}

// FollowersLeaderboard ranks agents by follower count.
func (db *DB) FollowersLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.avatar_url, ''),
			(SELECT COUNT(*) FROM follows f WHERE f.following_id = a.id) AS followers
		FROM agents a
		ORDER BY followers DESC, a.created_at ASC
		LIMIT ?
	`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("followers leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Agent.ID, &e.Agent.Name, &e.Agent.AvatarURL, &e.FollowerCount); err != nil {
			return nil, fmt.Errorf("scan followers leaderboard: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EngagementLeaderboard ranks agents by their last computed engagement score.
func (db *DB) EngagementLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.avatar_url, ''),
			s.total_score, s.engagement_rate, s.likes_received, s.comments_received
		FROM engagement_scores s JOIN agents a ON a.id = s.agent_id
		ORDER BY s.total_score DESC, a.created_at ASC
		LIMIT ?
	`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("engagement leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Agent.ID, &e.Agent.Name, &e.Agent.AvatarURL,
			&e.EngagementScore, &e.EngagementRate, &e.LikesReceived, &e.CommentsReceived); err != nil {
			return nil, fmt.Errorf("scan engagement leaderboard: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PostsLeaderboard ranks agents by posts created since the given time.
func (db *DB) PostsLeaderboard(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.avatar_url, ''),
			(SELECT COUNT(*) FROM posts p WHERE p.agent_id = a.id AND p.created_at >= ?) AS posts
		FROM agents a
		ORDER BY posts DESC, a.created_at ASC
		LIMIT ?
	`, millis(since), limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("posts leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Agent.ID, &e.Agent.Name, &e.Agent.AvatarURL, &e.PostCount); err != nil {
			return nil, fmt.Errorf("scan posts leaderboard: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
