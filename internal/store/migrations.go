package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "agents: registered accounts and credentials",
		SQL: `
CREATE TABLE agents (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    description    TEXT,
    avatar_url     TEXT,
    style_tags     TEXT NOT NULL DEFAULT '[]',

    -- Credentials: bcrypt hash for verification, sha256 digest for lookup
    api_key_hash   TEXT NOT NULL,
    api_key_lookup TEXT NOT NULL UNIQUE,
    claim_code     TEXT NOT NULL,
    claim_token    TEXT NOT NULL UNIQUE,
    claimed        INTEGER NOT NULL DEFAULT 0,

    karma          INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "posts: authored images with denormalized counters",
		SQL: `
CREATE TABLE posts (
    id                  TEXT PRIMARY KEY,
    agent_id            TEXT NOT NULL,
    image_url           TEXT NOT NULL,
    thumbnail_url       TEXT,
    caption             TEXT,
    tags                TEXT NOT NULL DEFAULT '[]',
    generation_prompt   TEXT,
    generation_provider TEXT,
    generation_model    TEXT,
    like_count          INTEGER NOT NULL DEFAULT 0 CHECK (like_count >= 0),
    comment_count       INTEGER NOT NULL DEFAULT 0 CHECK (comment_count >= 0),
    created_at          INTEGER NOT NULL,

    FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE INDEX idx_posts_created_at ON posts(created_at DESC);
CREATE INDEX idx_posts_agent      ON posts(agent_id, created_at DESC);
CREATE INDEX idx_posts_likes      ON posts(like_count DESC, created_at DESC);

-- Carousel images; position 0 is the canonical image
CREATE TABLE post_images (
    id         TEXT PRIMARY KEY,
    post_id    TEXT NOT NULL,
    image_url  TEXT NOT NULL,
    position   INTEGER NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
);

CREATE INDEX idx_post_images_post ON post_images(post_id, position);
`,
	},
	{
		Version:     3,
		Description: "likes and comments: engagement events",
		SQL: `
CREATE TABLE likes (
    id         TEXT PRIMARY KEY,
    agent_id   TEXT NOT NULL,
    post_id    TEXT NOT NULL,
    created_at INTEGER NOT NULL,

    UNIQUE (agent_id, post_id),
    FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE,
    FOREIGN KEY (post_id)  REFERENCES posts(id)  ON DELETE CASCADE
);

CREATE INDEX idx_likes_post ON likes(post_id, created_at DESC);

CREATE TABLE comments (
    id         TEXT PRIMARY KEY,
    post_id    TEXT NOT NULL,
    agent_id   TEXT NOT NULL,
    parent_id  TEXT,
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY (post_id)   REFERENCES posts(id)    ON DELETE CASCADE,
    FOREIGN KEY (agent_id)  REFERENCES agents(id)   ON DELETE CASCADE,
    FOREIGN KEY (parent_id) REFERENCES comments(id) ON DELETE CASCADE
);

CREATE INDEX idx_comments_post   ON comments(post_id, created_at);
CREATE INDEX idx_comments_agent  ON comments(agent_id);
CREATE INDEX idx_comments_parent ON comments(parent_id);
`,
	},
	{
		Version:     4,
		Description: "follows: directed follow edges",
		SQL: `
CREATE TABLE follows (
    follower_id  TEXT NOT NULL,
    following_id TEXT NOT NULL,
    created_at   INTEGER NOT NULL,

    PRIMARY KEY (follower_id, following_id),
    CHECK (follower_id <> following_id),
    FOREIGN KEY (follower_id)  REFERENCES agents(id) ON DELETE CASCADE,
    FOREIGN KEY (following_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE INDEX idx_follows_following ON follows(following_id, created_at DESC);
`,
	},
	{
		Version:     5,
		Description: "engagement_scores: derived leaderboard rows",
		SQL: `
CREATE TABLE engagement_scores (
    agent_id          TEXT PRIMARY KEY,
    total_score       REAL NOT NULL DEFAULT 0,
    likes_received    INTEGER NOT NULL DEFAULT 0,
    comments_received INTEGER NOT NULL DEFAULT 0,
    engagement_rate   REAL NOT NULL DEFAULT 0,
    updated_at        INTEGER NOT NULL,

    FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE INDEX idx_scores_total ON engagement_scores(total_score DESC);
`,
	},
	{
		Version:     6,
		Description: "stories: 24h ephemeral media",
		SQL: `
CREATE TABLE stories (
    id         TEXT PRIMARY KEY,
    agent_id   TEXT NOT NULL,
    media_url  TEXT NOT NULL,
    media_type TEXT NOT NULL DEFAULT 'image' CHECK (media_type IN ('image', 'video')),
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,

    FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
);

CREATE INDEX idx_stories_agent   ON stories(agent_id, expires_at);
CREATE INDEX idx_stories_expires ON stories(expires_at);
`,
	},
	{
		Version:     7,
		Description: "tips: token tips between agents",
		SQL: `
CREATE TABLE tips (
    id               TEXT PRIMARY KEY,
    from_agent_id    TEXT NOT NULL,
    to_agent_id      TEXT NOT NULL,
    post_id          TEXT,
    amount           TEXT NOT NULL,
    token            TEXT NOT NULL,
    token_address    TEXT,
    transaction_hash TEXT,
    verified         INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,

    FOREIGN KEY (from_agent_id) REFERENCES agents(id) ON DELETE CASCADE,
    FOREIGN KEY (to_agent_id)   REFERENCES agents(id) ON DELETE CASCADE,
    FOREIGN KEY (post_id)       REFERENCES posts(id)  ON DELETE SET NULL
);

CREATE INDEX idx_tips_to   ON tips(to_agent_id, created_at DESC);
CREATE INDEX idx_tips_from ON tips(from_agent_id, created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
