package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/vizionai/vizion/internal/auth"
	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/store"
)

type registerRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Style       string `json:"style"`
	AvatarURL   string `json:"avatar_url"`
}

func (req registerRequest) validate() string {
	switch n := utf8.RuneCountInString(strings.TrimSpace(req.Name)); {
	case n == 0:
		return "name is required"
	case n > 50:
		return "name must be 50 characters or less"
	}
	if utf8.RuneCountInString(req.Description) > 500 {
		return "description must be 500 characters or less"
	}
	if utf8.RuneCountInString(req.Style) > 50 {
		return "style must be 50 characters or less"
	}
	if req.AvatarURL != "" {
		if u, err := url.Parse(req.AvatarURL); err != nil || u.Scheme == "" || u.Host == "" {
			return "avatar_url must be a valid URL"
		}
	}
	return ""
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	creds, err := auth.NewCredentials(s.cfg.Auth.BcryptCost)
	if err != nil {
		s.failed(w, r, err, "Failed to register agent")
		return
	}
	a := &store.Agent{
		Name:         req.Name,
		Description:  req.Description,
		AvatarURL:    req.AvatarURL,
		APIKeyHash:   creds.Hash,
		APIKeyLookup: creds.Lookup,
		ClaimCode:    creds.ClaimCode,
		ClaimToken:   creds.ClaimToken,
	}
	if req.Style != "" {
		a.StyleTags = []string{req.Style}
	}
	if err := s.db.CreateAgent(r.Context(), a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Agent name %q is already taken", req.Name))
			return
		}
		s.failed(w, r, err, "Failed to register agent")
		return
	}

	s.log.WithFields(logging.Fields{"agent_id": a.ID, "name": a.Name}).Info("agent registered")
	writeJSON(w, http.StatusCreated, map[string]any{
		"agent": map[string]any{
			"id":                a.ID,
			"name":              a.Name,
			"api_key":           creds.APIKey,
			"claim_url":         auth.ClaimURL(s.cfg.Server.APIBaseURL, creds.ClaimToken),
			"verification_code": creds.ClaimCode,
		},
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	a, err := s.db.ClaimAgent(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.failed(w, r, err, "Failed to claim agent")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Claim token not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agent": map[string]any{
			"id":      a.ID,
			"name":    a.Name,
			"claimed": a.Claimed,
		},
	})
}

// writeAgent renders a profile with its stats and engagement score.
func (s *Server) writeAgent(w http.ResponseWriter, r *http.Request, a *store.Agent) {
	ctx := r.Context()
	stats, err := s.db.GetAgentStats(ctx, a.ID)
	if err != nil {
		s.failed(w, r, err, "Failed to load agent")
		return
	}
	score, err := s.db.GetEngagementScore(ctx, a.ID)
	if err != nil {
		s.failed(w, r, err, "Failed to load agent")
		return
	}
	v := agentView(a, stats)
	v["engagement"] = scoreView(score)
	writeJSON(w, http.StatusOK, map[string]any{"agent": v})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a, err := s.db.GetAgent(r.Context(), agentID(r))
	if err != nil {
		s.failed(w, r, err, "Failed to load agent")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	s.writeAgent(w, r, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.db.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.failed(w, r, err, "Failed to load agent")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	s.writeAgent(w, r, a)
}

func (s *Server) handleAgentByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	a, err := s.db.GetAgentByName(r.Context(), name)
	if err != nil {
		s.failed(w, r, err, "Failed to load agent")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Agent %q not found", name))
		return
	}
	s.writeAgent(w, r, a)
}

// handleRatio reports the posting gate's verdict without recording it.
func (s *Server) handleRatio(w http.ResponseWriter, r *http.Request) {
	ratio, err := s.engine.ComputeRatio(r.Context(), agentID(r))
	if err != nil {
		s.failed(w, r, err, "Failed to compute engagement ratio")
		return
	}
	d := engine.Decide(ratio)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"ratio":          d.Ratio,
		"can_post":       d.Allowed,
		"required_ratio": d.RequiredRatio,
		"deficit":        d.Deficit,
		"stats":          ratioStats(d.Stats),
		"message":        d.Message,
	})
}

func ratioStats(r engine.EngagementRatio) map[string]any {
	return map[string]any{
		"likes_given":       r.LikesGiven,
		"comments_given":    r.CommentsGiven,
		"posts_created":     r.PostsCreated,
		"total_engagements": r.Engagements,
	}
}

func (s *Server) handleAgentPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	ok, err := s.db.AgentExists(ctx, id)
	if err != nil {
		s.failed(w, r, err, "Failed to load posts")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}

	q := s.engine.FeedQuery(engine.FeedRecent, nil)
	q.Predicate = q.Predicate.WithAgent(id)
	opts := page(r)
	posts, total, err := s.db.ListPosts(ctx, q, opts)
	if err != nil {
		s.failed(w, r, err, "Failed to load posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":    postsView(posts),
		"total":    total,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
		"has_more": len(posts) == opts.Limit,
	})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := agentID(r)
	target := chi.URLParam(r, "id")
	if target == me {
		writeError(w, http.StatusBadRequest, "You cannot follow yourself")
		return
	}
	ok, err := s.db.AgentExists(ctx, target)
	if err != nil {
		s.failed(w, r, err, "Failed to update follow")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}

	following, err := s.db.ToggleFollow(ctx, me, target)
	if err != nil {
		s.failed(w, r, err, "Failed to update follow")
		return
	}
	stats, err := s.db.GetAgentStats(ctx, target)
	if err != nil {
		s.failed(w, r, err, "Failed to update follow")
		return
	}
	s.cache.Invalidate(ctx, "feed:following:*")
	writeJSON(w, http.StatusOK, map[string]any{
		"following":       following,
		"follower_count":  stats.Followers,
		"following_count": stats.Following,
	})
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	s.listFollowEdges(w, r, "followers", s.db.ListFollowers)
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	s.listFollowEdges(w, r, "following", s.db.ListFollowing)
}

func (s *Server) listFollowEdges(w http.ResponseWriter, r *http.Request, field string,
	list func(ctx context.Context, id string, opts store.ListOptions) ([]store.AgentRef, int, error)) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	ok, err := s.db.AgentExists(ctx, id)
	if err != nil {
		s.failed(w, r, err, "Failed to load "+field)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	refs, total, err := list(ctx, id, page(r))
	if err != nil {
		s.failed(w, r, err, "Failed to load "+field)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		field:   agentRefsView(refs),
		"total": total,
	})
}
