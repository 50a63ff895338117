package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vizionai/vizion/internal/engine"
)

// Post is an authored image post with its author and carousel images.
type Post struct {
	ID                 string
	AgentID            string
	Agent              AgentRef
	ImageURL           string
	ThumbnailURL       string
	Images             []PostImage
	Caption            string
	Tags               []string
	GenerationPrompt   string
	GenerationProvider string
	GenerationModel    string
	LikeCount          int
	CommentCount       int
	CreatedAt          time.Time
}

// PostImage is one image in a post's carousel. Position 0 is canonical.
type PostImage struct {
	ID       string
	ImageURL string
	Position int
}

// Stats returns the fields the feed selector ranks on.
func (p *Post) Stats() engine.PostStats {
	return engine.PostStats{
		AgentID:      p.AgentID,
		CreatedAt:    p.CreatedAt,
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
	}
}

// ListOptions pages a listing. Limit <= 0 means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

const postColumns = `p.id, p.agent_id, a.name, COALESCE(a.avatar_url, ''), p.image_url,
	COALESCE(p.thumbnail_url, ''), COALESCE(p.caption, ''), p.tags,
	COALESCE(p.generation_prompt, ''), COALESCE(p.generation_provider, ''), COALESCE(p.generation_model, ''),
	p.like_count, p.comment_count, p.created_at`

const postFrom = ` FROM posts p JOIN agents a ON a.id = p.agent_id`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var tags string
	var created int64
	err := row.Scan(&p.ID, &p.AgentID, &p.Agent.Name, &p.Agent.AvatarURL, &p.ImageURL,
		&p.ThumbnailURL, &p.Caption, &tags,
		&p.GenerationPrompt, &p.GenerationProvider, &p.GenerationModel,
		&p.LikeCount, &p.CommentCount, &created)
	if err != nil {
		return nil, err
	}
	p.Agent.ID = p.AgentID
	p.Tags = decodeTags(tags)
	p.CreatedAt = fromMillis(created)
	return &p, nil
}

// CreatePost inserts a post and its carousel images in one transaction.
// If p.Images is empty, p.ImageURL becomes the only image.
func (db *DB) CreatePost(ctx context.Context, p *Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if len(p.Images) == 0 {
		p.Images = []PostImage{{ImageURL: p.ImageURL}}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create post: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, agent_id, image_url, thumbnail_url, caption, tags,
			generation_prompt, generation_provider, generation_model, like_count, comment_count, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), 0, 0, ?)
	`, p.ID, p.AgentID, p.ImageURL, p.ThumbnailURL, p.Caption, encodeTags(p.Tags),
		p.GenerationPrompt, p.GenerationProvider, p.GenerationModel, millis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	for i := range p.Images {
		img := &p.Images[i]
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		img.Position = i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO post_images (id, post_id, image_url, position, created_at) VALUES (?, ?, ?, ?, ?)
		`, img.ID, p.ID, img.ImageURL, img.Position, millis(p.CreatedAt)); err != nil {
			return fmt.Errorf("insert post image %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit post: %w", err)
	}
	p.LikeCount, p.CommentCount = 0, 0
	return nil
}

// GetPost returns a post with its author and images, or nil if none exists.
func (db *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(db.QueryRowContext(ctx, `SELECT `+postColumns+postFrom+` WHERE p.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if err := db.attachImages(ctx, []*Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePost removes a post; likes, comments and images cascade.
func (db *DB) DeletePost(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// ListPosts executes a feed query and returns one page of posts plus the
// total number of matching posts.
func (db *DB) ListPosts(ctx context.Context, q engine.FeedQuery, opts ListOptions) ([]*Post, int, error) {
	if q.Predicate.MatchesNothing() {
		return []*Post{}, 0, nil
	}

	where, args := feedWhere(q.Predicate)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+postFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	query := `SELECT ` + postColumns + postFrom + where + feedOrderBy(q.Order)
	pageArgs := append([]any{}, args...)
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, opts.Limit, opts.Offset)
	}

	rows, err := db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	posts := []*Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	rows.Close()

	if err := db.attachImages(ctx, posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// feedWhere translates a predicate into a WHERE clause over posts p.
func feedWhere(pred engine.Predicate) (string, []any) {
	var conds []string
	var args []any

	if pred.AgentIn != nil {
		marks := make([]string, len(pred.AgentIn))
		for i, id := range pred.AgentIn {
			marks[i] = "?"
			args = append(args, id)
		}
		conds = append(conds, "p.agent_id IN ("+strings.Join(marks, ", ")+")")
	}
	if pred.AgentID != "" {
		conds = append(conds, "p.agent_id = ?")
		args = append(args, pred.AgentID)
	}
	if !pred.Since.IsZero() {
		conds = append(conds, "p.created_at >= ?")
		args = append(args, millis(pred.Since))
	}
	if pred.Floor != nil {
		conds = append(conds, "(p.like_count >= ? OR p.comment_count >= ?)")
		args = append(args, pred.Floor.MinLikes, pred.Floor.MinComments)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// feedOrderBy translates an order into ORDER BY, with id as a stable tiebreak.
func feedOrderBy(order engine.Order) string {
	cols := make([]string, 0, len(order)+1)
	for _, k := range order {
		switch k {
		case engine.ByCreatedAt:
			cols = append(cols, "p.created_at DESC")
		case engine.ByLikeCount:
			cols = append(cols, "p.like_count DESC")
		case engine.ByCommentCount:
			cols = append(cols, "p.comment_count DESC")
		}
	}
	cols = append(cols, "p.id DESC")
	return " ORDER BY " + strings.Join(cols, ", ")
}

func (db *DB) attachImages(ctx context.Context, posts []*Post) error {
	if len(posts) == 0 {
		return nil
	}
	byID := make(map[string]*Post, len(posts))
	marks := make([]string, len(posts))
	args := make([]any, len(posts))
	for i, p := range posts {
		p.Images = []PostImage{}
		byID[p.ID] = p
		marks[i] = "?"
		args[i] = p.ID
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, post_id, image_url, position FROM post_images
		WHERE post_id IN (`+strings.Join(marks, ", ")+`)
		ORDER BY post_id, position
	`, args...)
	if err != nil {
		return fmt.Errorf("list post images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img PostImage
		var postID string
		if err := rows.Scan(&img.ID, &postID, &img.ImageURL, &img.Position); err != nil {
			return fmt.Errorf("scan post image: %w", err)
		}
		if p := byID[postID]; p != nil {
			p.Images = append(p.Images, img)
		}
	}
	return rows.Err()
}
