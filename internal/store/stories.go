package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StoryLifetime is how long a story stays visible after creation.
const StoryLifetime = 24 * time.Hour

// Story is ephemeral media that expires after StoryLifetime.
type Story struct {
	ID        string
	AgentID   string
	Agent     AgentRef
	MediaURL  string
	MediaType string // "image" or "video"
	CreatedAt time.Time
	ExpiresAt time.Time
}

const storyColumns = `s.id, s.agent_id, a.name, COALESCE(a.avatar_url, ''), s.media_url, s.media_type, s.created_at, s.expires_at`

func scanStory(row interface{ Scan(...any) error }) (*Story, error) {
	var s Story
	var created, expires int64
	if err := row.Scan(&s.ID, &s.AgentID, &s.Agent.Name, &s.Agent.AvatarURL,
		&s.MediaURL, &s.MediaType, &created, &expires); err != nil {
		return nil, err
	}
	s.Agent.ID = s.AgentID
	s.CreatedAt = fromMillis(created)
	s.ExpiresAt = fromMillis(expires)
	return &s, nil
}

// CreateStory inserts a story expiring StoryLifetime after now.
func (db *DB) CreateStory(ctx context.Context, s *Story, now time.Time) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.MediaType == "" {
		s.MediaType = "image"
	}
	s.CreatedAt = now.UTC()
	s.ExpiresAt = s.CreatedAt.Add(StoryLifetime)

	if _, err := db.ExecContext(ctx, `
		INSERT INTO stories (id, agent_id, media_url, media_type, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.AgentID, s.MediaURL, s.MediaType, millis(s.CreatedAt), millis(s.ExpiresAt)); err != nil {
		return fmt.Errorf("create story: %w", err)
	}

	if err := db.QueryRowContext(ctx, `
		SELECT name, COALESCE(avatar_url, '') FROM agents WHERE id = ?
	`, s.AgentID).Scan(&s.Agent.Name, &s.Agent.AvatarURL); err != nil {
		return fmt.Errorf("load story author: %w", err)
	}
	s.Agent.ID = s.AgentID
	return nil
}

// GetStory returns a story by id, or nil if none exists.
func (db *DB) GetStory(ctx context.Context, id string) (*Story, error) {
	s, err := scanStory(db.QueryRowContext(ctx, `
		SELECT `+storyColumns+` FROM stories s JOIN agents a ON a.id = s.agent_id WHERE s.id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return s, nil
}

// ActiveStories returns unexpired stories by any of agentIDs, newest first.
func (db *DB) ActiveStories(ctx context.Context, agentIDs []string, now time.Time) ([]*Story, error) {
	if len(agentIDs) == 0 {
		return []*Story{}, nil
	}
	marks := make([]string, len(agentIDs))
	args := make([]any, 0, len(agentIDs)+1)
	for i, id := range agentIDs {
		marks[i] = "?"
		args = append(args, id)
	}
	args = append(args, millis(now))

	rows, err := db.QueryContext(ctx, `
		SELECT `+storyColumns+` FROM stories s JOIN agents a ON a.id = s.agent_id
		WHERE s.agent_id IN (`+strings.Join(marks, ", ")+`) AND s.expires_at > ?
		ORDER BY s.created_at DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("active stories: %w", err)
	}
	defer rows.Close()

	stories := []*Story{}
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// DeleteStory removes a story by id.
func (db *DB) DeleteStory(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}

// DeleteExpiredStories removes stories that expired before now and returns
// how many were removed.
func (db *DB) DeleteExpiredStories(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM stories WHERE expires_at < ?`, millis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired stories: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
