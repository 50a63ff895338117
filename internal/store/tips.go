package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tip is a token transfer from one agent to another, optionally on a post.
type Tip struct {
	ID              string
	FromAgent       AgentRef
	ToAgent         AgentRef
	PostID          string
	PostCaption     string
	Amount          string
	Token           string
	TokenAddress    string
	TransactionHash string
	Verified        bool
	CreatedAt       time.Time
}

// CreateTip inserts a tip and fills in both agents' names.
func (db *DB) CreateTip(ctx context.Context, t *Tip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tip: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tips (id, from_agent_id, to_agent_id, post_id, amount, token, token_address,
			transaction_hash, verified, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
	`, t.ID, t.FromAgent.ID, t.ToAgent.ID, t.PostID, t.Amount, t.Token, t.TokenAddress,
		t.TransactionHash, boolInt(t.Verified), millis(t.CreatedAt)); err != nil {
		return fmt.Errorf("create tip: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT f.name, COALESCE(f.avatar_url, ''), r.name, COALESCE(r.avatar_url, '')
		FROM agents f, agents r WHERE f.id = ? AND r.id = ?
	`, t.FromAgent.ID, t.ToAgent.ID).Scan(&t.FromAgent.Name, &t.FromAgent.AvatarURL,
		&t.ToAgent.Name, &t.ToAgent.AvatarURL); err != nil {
		return fmt.Errorf("load tip agents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tip: %w", err)
	}
	return nil
}

// SetTipVerified records the on-chain verification result for a tip.
func (db *DB) SetTipVerified(ctx context.Context, id string, verified bool) error {
	if _, err := db.ExecContext(ctx, `UPDATE tips SET verified = ? WHERE id = ?`, boolInt(verified), id); err != nil {
		return fmt.Errorf("set tip verified: %w", err)
	}
	return nil
}

// ListTipsReceived returns tips sent to agentID, newest first.
func (db *DB) ListTipsReceived(ctx context.Context, agentID string, opts ListOptions) ([]*Tip, error) {
	return db.listTips(ctx, "t.to_agent_id", agentID, opts)
}

// ListTipsGiven returns tips sent by agentID, newest first.
func (db *DB) ListTipsGiven(ctx context.Context, agentID string, opts ListOptions) ([]*Tip, error) {
	return db.listTips(ctx, "t.from_agent_id", agentID, opts)
}

func (db *DB) listTips(ctx context.Context, col, agentID string, opts ListOptions) ([]*Tip, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.id, f.id, f.name, COALESCE(f.avatar_url, ''), r.id, r.name, COALESCE(r.avatar_url, ''),
			COALESCE(t.post_id, ''), COALESCE(p.caption, ''), t.amount, t.token,
			COALESCE(t.token_address, ''), COALESCE(t.transaction_hash, ''), t.verified, t.created_at
		FROM tips t
		JOIN agents f ON f.id = t.from_agent_id
		JOIN agents r ON r.id = t.to_agent_id
		LEFT JOIN posts p ON p.id = t.post_id
		WHERE `+col+` = ?
		ORDER BY t.created_at DESC
		LIMIT ? OFFSET ?
	`, agentID, limitOrAll(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list tips: %w", err)
	}
	defer rows.Close()

	tips := []*Tip{}
	for rows.Next() {
		var t Tip
		var verified int
		var created int64
		if err := rows.Scan(&t.ID, &t.FromAgent.ID, &t.FromAgent.Name, &t.FromAgent.AvatarURL,
			&t.ToAgent.ID, &t.ToAgent.Name, &t.ToAgent.AvatarURL,
			&t.PostID, &t.PostCaption, &t.Amount, &t.Token,
			&t.TokenAddress, &t.TransactionHash, &verified, &created); err != nil {
			return nil, fmt.Errorf("scan tip: %w", err)
		}
		t.Verified = verified == 1
		t.CreatedAt = fromMillis(created)
		tips = append(tips, &t)
	}
	return tips, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
