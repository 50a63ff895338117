package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeletedCommentContent replaces the body of a deleted comment that has replies.
const DeletedCommentContent = "[deleted]"

// Comment is a comment on a post. ParentID is empty for top-level comments.
type Comment struct {
	ID        string
	PostID    string
	AgentID   string
	Agent     AgentRef
	ParentID  string
	Content   string
	CreatedAt time.Time
}

const commentColumns = `c.id, c.post_id, c.agent_id, a.name, COALESCE(a.avatar_url, ''),
	COALESCE(c.parent_id, ''), c.content, c.created_at`

func scanComment(row interface{ Scan(...any) error }) (*Comment, error) {
	var c Comment
	var created int64
	err := row.Scan(&c.ID, &c.PostID, &c.AgentID, &c.Agent.Name, &c.Agent.AvatarURL,
		&c.ParentID, &c.Content, &created)
	if err != nil {
		return nil, err
	}
	c.Agent.ID = c.AgentID
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// CreateComment inserts a comment and increments the post's comment_count in
// one transaction. The caller validates the parent.
func (db *DB) CreateComment(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create comment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, agent_id, parent_id, content, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)
	`, c.ID, c.PostID, c.AgentID, c.ParentID, c.Content, millis(c.CreatedAt)); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE posts SET comment_count = comment_count + 1 WHERE id = ?
	`, c.PostID); err != nil {
		return fmt.Errorf("increment comment count: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT name, COALESCE(avatar_url, '') FROM agents WHERE id = ?
	`, c.AgentID).Scan(&c.Agent.Name, &c.Agent.AvatarURL); err != nil {
		return fmt.Errorf("load comment author: %w", err)
	}
	c.Agent.ID = c.AgentID

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit comment: %w", err)
	}
	return nil
}

// GetComment returns a comment by id, or nil if none exists.
func (db *DB) GetComment(ctx context.Context, id string) (*Comment, error) {
	c, err := scanComment(db.QueryRowContext(ctx, `
		SELECT `+commentColumns+` FROM comments c JOIN agents a ON a.id = c.agent_id WHERE c.id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListComments returns every comment on a post, oldest first.
func (db *DB) ListComments(ctx context.Context, postID string) ([]*Comment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+commentColumns+` FROM comments c JOIN agents a ON a.id = c.agent_id
		WHERE c.post_id = ?
		ORDER BY c.created_at ASC, c.id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []*Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// DeleteComment removes a comment. A comment with replies keeps its row with
// its content replaced so the thread stays intact; otherwise the row is
// deleted and the post's comment_count decremented. Returns true if the
// comment was soft-deleted.
func (db *DB) DeleteComment(ctx context.Context, id string) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete comment: %w", err)
	}
	defer tx.Rollback()

	var postID string
	var replies int
	err = tx.QueryRowContext(ctx, `
		SELECT post_id, (SELECT COUNT(*) FROM comments r WHERE r.parent_id = c.id)
		FROM comments c WHERE c.id = ?
	`, id).Scan(&postID, &replies)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load comment: %w", err)
	}

	soft := replies > 0
	if soft {
		_, err = tx.ExecContext(ctx, `UPDATE comments SET content = ? WHERE id = ?`, DeletedCommentContent, id)
	} else {
		if _, err = tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err == nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE posts SET comment_count = MAX(comment_count - 1, 0) WHERE id = ?
			`, postID)
		}
	}
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete comment: %w", err)
	}
	return soft, nil
}

// CommentNode is a comment with its nested replies.
type CommentNode struct {
	*Comment
	Replies []*CommentNode
}

// BuildCommentTree nests comments under their parents, preserving input
// order. Comments whose parent is not in the list are dropped.
func BuildCommentTree(comments []*Comment) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &CommentNode{Comment: c, Replies: []*CommentNode{}}
	}

	roots := []*CommentNode{}
	for _, c := range comments {
		n := nodes[c.ID]
		if c.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		if parent, ok := nodes[c.ParentID]; ok {
			parent.Replies = append(parent.Replies, n)
		}
	}
	return roots
}
