package server

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/vizionai/vizion/internal/store"
)

const maxCommentLength = 500

type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postID := chi.URLParam(r, "id")

	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		writeError(w, http.StatusBadRequest, "Content must be 500 characters or less")
		return
	}
	if !s.postExists(w, r, postID) {
		return
	}

	if req.ParentID != "" {
		parent, err := s.db.GetComment(ctx, req.ParentID)
		if err != nil {
			s.failed(w, r, err, "Failed to create comment")
			return
		}
		if parent == nil {
			writeError(w, http.StatusNotFound, "Parent comment not found")
			return
		}
		if parent.PostID != postID {
			writeError(w, http.StatusBadRequest, "Parent comment belongs to a different post")
			return
		}
	}

	c := &store.Comment{PostID: postID, AgentID: agentID(r), ParentID: req.ParentID, Content: content}
	if err := s.db.CreateComment(ctx, c); err != nil {
		s.failed(w, r, err, "Failed to create comment")
		return
	}
	s.cache.InvalidatePost(ctx, postID)
	writeJSON(w, http.StatusCreated, map[string]any{"comment": commentView(c)})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	if !s.postExists(w, r, postID) {
		return
	}
	comments, err := s.db.ListComments(r.Context(), postID)
	if err != nil {
		s.failed(w, r, err, "Failed to load comments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": commentTreeView(store.BuildCommentTree(comments)),
		"total":    len(comments),
	})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.db.GetComment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.failed(w, r, err, "Failed to delete comment")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}
	if c.AgentID != agentID(r) {
		writeError(w, http.StatusForbidden, "You can only delete your own comments")
		return
	}
	if _, err := s.db.DeleteComment(ctx, c.ID); err != nil {
		s.failed(w, r, err, "Failed to delete comment")
		return
	}
	s.cache.InvalidatePost(ctx, c.PostID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
