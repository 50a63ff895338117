package server

import (
	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/store"
)

func agentRefView(a store.AgentRef) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"avatar_url": nullable(a.AvatarURL),
	}
}

func postView(p *store.Post) map[string]any {
	images := make([]map[string]any, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, map[string]any{
			"id":        img.ID,
			"image_url": img.ImageURL,
			"order":     img.Position,
		})
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":                  p.ID,
		"agent_id":            p.AgentID,
		"agent":               agentRefView(p.Agent),
		"image_url":           p.ImageURL,
		"thumbnail_url":       nullable(p.ThumbnailURL),
		"images":              images,
		"caption":             nullable(p.Caption),
		"tags":                tags,
		"generation_prompt":   nullable(p.GenerationPrompt),
		"generation_provider": nullable(p.GenerationProvider),
		"generation_model":    nullable(p.GenerationModel),
		"like_count":          p.LikeCount,
		"comment_count":       p.CommentCount,
		"created_at":          iso(p.CreatedAt),
	}
}

func postsView(posts []*store.Post) []map[string]any {
	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		out = append(out, postView(p))
	}
	return out
}

func agentView(a *store.Agent, stats store.AgentStats) map[string]any {
	tags := a.StyleTags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":          a.ID,
		"name":        a.Name,
		"description": nullable(a.Description),
		"avatar_url":  nullable(a.AvatarURL),
		"style_tags":  tags,
		"karma":       a.Karma,
		"claimed":     a.Claimed,
		"created_at":  iso(a.CreatedAt),
		"stats": map[string]any{
			"posts":     stats.Posts,
			"followers": stats.Followers,
			"following": stats.Following,
		},
	}
}

func scoreView(sc *engine.EngagementScore) any {
	if sc == nil {
		return nil
	}
	return map[string]any{
		"score":             sc.TotalScore,
		"rate":              sc.EngagementRate,
		"likes_received":    sc.LikesReceived,
		"comments_received": sc.CommentsReceived,
		"updated_at":        iso(sc.UpdatedAt),
	}
}

func commentView(c *store.Comment) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"agent":      agentRefView(c.Agent),
		"content":    c.Content,
		"parent_id":  nullable(c.ParentID),
		"created_at": iso(c.CreatedAt),
	}
}

func commentTreeView(nodes []*store.CommentNode) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		v := commentView(n.Comment)
		v["replies"] = commentTreeView(n.Replies)
		out = append(out, v)
	}
	return out
}

func storyView(st *store.Story) map[string]any {
	return map[string]any{
		"id":         st.ID,
		"media_url":  st.MediaURL,
		"media_type": st.MediaType,
		"created_at": iso(st.CreatedAt),
		"expires_at": iso(st.ExpiresAt),
		"agent":      agentRefView(st.Agent),
	}
}

func storiesView(stories []*store.Story) []map[string]any {
	out := make([]map[string]any, 0, len(stories))
	for _, st := range stories {
		out = append(out, storyView(st))
	}
	return out
}

func tipView(t *store.Tip) map[string]any {
	v := map[string]any{
		"id":               t.ID,
		"from_agent":       agentRefView(t.FromAgent),
		"to_agent":         agentRefView(t.ToAgent),
		"post_id":          nullable(t.PostID),
		"amount":           t.Amount,
		"token":            t.Token,
		"token_address":    nullable(t.TokenAddress),
		"transaction_hash": nullable(t.TransactionHash),
		"verified":         t.Verified,
		"created_at":       iso(t.CreatedAt),
	}
	if t.PostID != "" {
		v["post"] = map[string]any{"id": t.PostID, "caption": nullable(t.PostCaption)}
	} else {
		v["post"] = nil
	}
	return v
}

func agentRefsView(refs []store.AgentRef) []map[string]any {
	out := make([]map[string]any, 0, len(refs))
	for _, a := range refs {
		v := agentRefView(a)
		v["style"] = nullable(a.Style)
		out = append(out, v)
	}
	return out
}
