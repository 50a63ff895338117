package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent is a registered account.
type Agent struct {
	ID           string
	Name         string
	Description  string
	AvatarURL    string
	StyleTags    []string
	APIKeyHash   string
	APIKeyLookup string
	ClaimCode    string
	ClaimToken   string
	Claimed      bool
	Karma        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgentStats are the profile counters shown alongside an agent.
type AgentStats struct {
	Posts     int
	Followers int
	Following int
}

// AgentRef is the short author form embedded in posts, comments and lists.
type AgentRef struct {
	ID        string
	Name      string
	AvatarURL string
	Style     string
}

const agentColumns = `id, name, COALESCE(description, ''), COALESCE(avatar_url, ''), style_tags,
	api_key_hash, api_key_lookup, claim_code, claim_token, claimed, karma, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (*Agent, error) {
	var a Agent
	var tags string
	var claimed int
	var created, updated int64
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.AvatarURL, &tags,
		&a.APIKeyHash, &a.APIKeyLookup, &a.ClaimCode, &a.ClaimToken, &claimed, &a.Karma, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.StyleTags = decodeTags(tags)
	a.Claimed = claimed == 1
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

// CreateAgent inserts a new agent. Returns ErrConflict if the name is taken.
func (db *DB) CreateAgent(ctx context.Context, a *Agent) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StyleTags == nil {
		a.StyleTags = []string{}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, avatar_url, style_tags,
			api_key_hash, api_key_lookup, claim_code, claim_token, claimed, karma, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, a.ID, a.Name, a.Description, a.AvatarURL, encodeTags(a.StyleTags),
		a.APIKeyHash, a.APIKeyLookup, a.ClaimCode, a.ClaimToken, millis(now), millis(now))
	if isUniqueViolation(err) {
		return fmt.Errorf("create agent %q: %w", a.Name, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// GetAgent returns an agent by id, or nil if none exists.
func (db *DB) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a, err := scanAgent(db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// GetAgentByName returns an agent by its unique name, or nil if none exists.
func (db *DB) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	a, err := scanAgent(db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent by name: %w", err)
	}
	return a, nil
}

// GetAgentByKeyLookup returns the agent whose API key digest matches, or nil.
func (db *DB) GetAgentByKeyLookup(ctx context.Context, lookup string) (*Agent, error) {
	a, err := scanAgent(db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE api_key_lookup = ?`, lookup))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent by key: %w", err)
	}
	return a, nil
}

// AgentExists reports whether an agent with id exists.
func (db *DB) AgentExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("agent exists: %w", err)
	}
	return n > 0, nil
}

// ListAgentIDs returns every agent id, oldest first.
func (db *DB) ListAgentIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM agents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list agent ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAgentStats returns post, follower and following counts for an agent.
func (db *DB) GetAgentStats(ctx context.Context, id string) (AgentStats, error) {
	var s AgentStats
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts   WHERE agent_id = ?),
			(SELECT COUNT(*) FROM follows WHERE following_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?)
	`, id, id, id).Scan(&s.Posts, &s.Followers, &s.Following)
	if err != nil {
		return s, fmt.Errorf("agent stats: %w", err)
	}
	return s, nil
}

// ClaimAgent marks the agent holding claimToken as claimed. Returns nil if
// no agent has that token.
func (db *DB) ClaimAgent(ctx context.Context, claimToken string) (*Agent, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE agents SET claimed = 1, updated_at = ? WHERE claim_token = ?
	`, millis(time.Now()), claimToken)
	if err != nil {
		return nil, fmt.Errorf("claim agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	a, err := scanAgent(db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE claim_token = ?`, claimToken))
	if err != nil {
		return nil, fmt.Errorf("reload claimed agent: %w", err)
	}
	return a, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func decodeTags(s string) []string {
	tags := []string{}
	if s == "" {
		return tags
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return []string{}
	}
	return tags
}
