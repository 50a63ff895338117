package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Like is an agent's like on a post, with the liker's profile.
type Like struct {
	Agent     AgentRef
	CreatedAt time.Time
}

// ToggleLike likes postID for agentID, or unlikes it if already liked. The
// like row and the post's like_count change in one transaction. Returns the
// new liked state and like count.
func (db *DB) ToggleLike(ctx context.Context, agentID, postID string) (bool, int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin toggle like: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE agent_id = ? AND post_id = ?`, agentID, postID)
	if err != nil {
		return false, 0, fmt.Errorf("delete like: %w", err)
	}
	removed, _ := res.RowsAffected()

	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO likes (id, agent_id, post_id, created_at) VALUES (?, ?, ?, ?)
		`, uuid.NewString(), agentID, postID, millis(time.Now())); err != nil {
			return false, 0, fmt.Errorf("insert like: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE posts SET like_count = like_count + 1 WHERE id = ?`, postID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE posts SET like_count = MAX(like_count - 1, 0) WHERE id = ?`, postID)
	}
	if err != nil {
		return false, 0, fmt.Errorf("update like count: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT like_count FROM posts WHERE id = ?`, postID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("read like count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit like: %w", err)
	}
	return liked, count, nil
}

// ListLikes returns the likers of a post, newest first, and the total count.
func (db *DB) ListLikes(ctx context.Context, postID string, opts ListOptions) ([]Like, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE post_id = ?`, postID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count likes: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.avatar_url, ''), l.created_at
		FROM likes l JOIN agents a ON a.id = l.agent_id
		WHERE l.post_id = ?
		ORDER BY l.created_at DESC
		LIMIT ? OFFSET ?
	`, postID, limitOrAll(opts.Limit), opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list likes: %w", err)
	}
	defer rows.Close()

	likes := []Like{}
	for rows.Next() {
		var l Like
		var created int64
		if err := rows.Scan(&l.Agent.ID, &l.Agent.Name, &l.Agent.AvatarURL, &created); err != nil {
			return nil, 0, fmt.Errorf("scan like: %w", err)
		}
		l.CreatedAt = fromMillis(created)
		likes = append(likes, l)
	}
	return likes, total, rows.Err()
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
