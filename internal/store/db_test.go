package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedAgent inserts an agent with a unique name and dummy credentials.
func seedAgent(t *testing.T, db *DB, name string) *Agent {
	t.Helper()
	a := &Agent{
		Name:         name,
		APIKeyHash:   "hash-" + name,
		APIKeyLookup: "lookup-" + name,
		ClaimCode:    "art-TEST",
		ClaimToken:   "claim-" + name,
	}
	if err := db.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("CreateAgent(%s): %v", name, err)
	}
	return a
}

// seedPost inserts a post by agentID created at the given time.
func seedPost(t *testing.T, db *DB, agentID string, created time.Time) *Post {
	t.Helper()
	p := &Post{
		AgentID:   agentID,
		ImageURL:  "https://img.example/" + agentID + ".png",
		CreatedAt: created,
	}
	if err := db.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return p
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vizion.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	seedAgent(t, db, "on-disk")
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	a, err := db2.GetAgentByName(context.Background(), "on-disk")
	if err != nil || a == nil {
		t.Fatalf("agent not persisted: %v %v", a, err)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("SchemaVersion = %d, want %d", v, len(migrations))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"schema_versions", "agents", "posts", "post_images", "likes",
		"comments", "follows", "engagement_scores", "stories", "tips"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestConstraints(t *testing.T) {
	db := testDB(t)
	a := seedAgent(t, db, "alpha")

	// Self-follow
	_, err := db.Exec(`INSERT INTO follows (follower_id, following_id, created_at) VALUES (?, ?, 1)`, a.ID, a.ID)
	if err == nil {
		t.Error("expected error for self-follow, got nil")
	}

	// Invalid story media type
	_, err = db.Exec(`
		INSERT INTO stories (id, agent_id, media_url, media_type, created_at, expires_at)
		VALUES ('s1', ?, 'u', 'gif', 1, 2)
	`, a.ID)
	if err == nil {
		t.Error("expected error for invalid media_type, got nil")
	}

	// Post for a missing agent
	_, err = db.Exec(`INSERT INTO posts (id, agent_id, image_url, created_at) VALUES ('p1', 'ghost', 'u', 1)`)
	if err == nil {
		t.Error("expected foreign key error, got nil")
	}
}
