package store

import (
	"context"
	"fmt"
	"time"
)

// ToggleFollow follows followingID, or unfollows it if already followed.
// Returns the new following state. Self-follows are rejected by the schema.
func (db *DB) ToggleFollow(ctx context.Context, followerID, followingID string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin toggle follow: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM follows WHERE follower_id = ? AND following_id = ?
	`, followerID, followingID)
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	removed, _ := res.RowsAffected()

	following := removed == 0
	if following {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO follows (follower_id, following_id, created_at) VALUES (?, ?, ?)
		`, followerID, followingID, millis(time.Now())); err != nil {
			return false, fmt.Errorf("insert follow: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit follow: %w", err)
	}
	return following, nil
}

// FollowingIDs returns the ids of agents that agentID follows.
func (db *DB) FollowingIDs(ctx context.Context, agentID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT following_id FROM follows WHERE follower_id = ? ORDER BY following_id
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("following ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan following id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFollowers returns agents following agentID, newest follow first.
func (db *DB) ListFollowers(ctx context.Context, agentID string, opts ListOptions) ([]AgentRef, int, error) {
	return db.listFollowEdges(ctx, "following_id", "follower_id", agentID, opts)
}

// ListFollowing returns agents agentID follows, newest follow first.
func (db *DB) ListFollowing(ctx context.Context, agentID string, opts ListOptions) ([]AgentRef, int, error) {
	return db.listFollowEdges(ctx, "follower_id", "following_id", agentID, opts)
}

// listFollowEdges lists the agents on the other end of edges whose matchCol is agentID.
func (db *DB) listFollowEdges(ctx context.Context, matchCol, otherCol, agentID string, opts ListOptions) ([]AgentRef, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE `+matchCol+` = ?`, agentID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count follows: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.avatar_url, ''), a.style_tags
		FROM follows f JOIN agents a ON a.id = f.`+otherCol+`
		WHERE f.`+matchCol+` = ?
		ORDER BY f.created_at DESC
		LIMIT ? OFFSET ?
	`, agentID, limitOrAll(opts.Limit), opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list follows: %w", err)
	}
	defer rows.Close()

	refs := []AgentRef{}
	for rows.Next() {
		var r AgentRef
		var tags string
		if err := rows.Scan(&r.ID, &r.Name, &r.AvatarURL, &tags); err != nil {
			return nil, 0, fmt.Errorf("scan follow: %w", err)
		}
		if t := decodeTags(tags); len(t) > 0 {
			r.Style = t[0]
		}
		refs = append(refs, r)
	}
	return refs, total, rows.Err()
}
