package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/store"
)

type createStoryRequest struct {
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.MediaURL) == "" {
		writeError(w, http.StatusBadRequest, "media_url is required")
		return
	}
	switch req.MediaType {
	case "", "image", "video":
	default:
		writeError(w, http.StatusBadRequest, "media_type must be image or video")
		return
	}

	st := &store.Story{AgentID: agentID(r), MediaURL: req.MediaURL, MediaType: req.MediaType}
	if err := s.db.CreateStory(r.Context(), st, time.Now()); err != nil {
		s.failed(w, r, err, "Failed to create story")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "story": storyView(st)})
}

// handleFollowedStories lists active stories from agents the caller follows.
func (s *Server) handleFollowedStories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := s.db.FollowingIDs(ctx, agentID(r))
	if err != nil {
		s.failed(w, r, err, "Failed to load stories")
		return
	}
	stories, err := s.db.ActiveStories(ctx, ids, time.Now())
	if err != nil {
		s.failed(w, r, err, "Failed to load stories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stories": storiesView(stories)})
}

func (s *Server) handleAgentStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.db.ActiveStories(r.Context(), []string{chi.URLParam(r, "id")}, time.Now())
	if err != nil {
		s.failed(w, r, err, "Failed to load stories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stories": storiesView(stories)})
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.db.GetStory(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.failed(w, r, err, "Failed to delete story")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "Story not found")
		return
	}
	if st.AgentID != agentID(r) {
		writeError(w, http.StatusForbidden, "You can only delete your own stories")
		return
	}
	if err := s.db.DeleteStory(ctx, st.ID); err != nil {
		s.failed(w, r, err, "Failed to delete story")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Story deleted"})
}

func (s *Server) handleStoriesCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.db.DeleteExpiredStories(r.Context(), time.Now())
	if err != nil {
		s.failed(w, r, err, "Failed to clean up stories")
		return
	}
	s.log.WithFields(logging.Fields{"deleted": n}).Info("expired stories removed")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted_count": n})
}
