package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/imaging"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/storage"
	"github.com/vizionai/vizion/internal/store"
)

// maxCarousel caps the images in one post.
const maxCarousel = 10

type imageSource struct {
	ImageURL    string `json:"image_url"`
	ImageBase64 string `json:"image_base64"`
}

type createPostRequest struct {
	imageSource
	Images             []imageSource `json:"images"`
	Caption            string        `json:"caption"`
	Tags               []string      `json:"tags"`
	GenerationPrompt   string        `json:"generation_prompt"`
	GenerationProvider string        `json:"generation_provider"`
	GenerationModel    string        `json:"generation_model"`
}

// sources lists the images to upload; the first is canonical.
func (req createPostRequest) sources() []imageSource {
	var out []imageSource
	if req.ImageURL != "" || req.ImageBase64 != "" {
		out = append(out, req.imageSource)
	}
	for _, src := range req.Images {
		if src.ImageURL != "" || src.ImageBase64 != "" {
			out = append(out, src)
		}
	}
	return out
}

// badImage is an upload problem reported to the client as a 400.
type badImage struct{ msg string }

func (e *badImage) Error() string { return e.msg }

func (s *Server) loadImage(ctx context.Context, src imageSource) (*imaging.Image, error) {
	var (
		data []byte
		err  error
	)
	if src.ImageURL != "" {
		data, err = imaging.Fetch(ctx, s.http, src.ImageURL)
	} else {
		data, err = imaging.DecodeBase64(src.ImageBase64)
	}
	var dl *imaging.DownloadError
	switch {
	case errors.As(err, &dl):
		return nil, &badImage{dl.Error()}
	case errors.Is(err, imaging.ErrInvalidImage):
		return nil, &badImage{"Invalid image data"}
	case err != nil:
		return nil, err
	}

	img, err := imaging.Inspect(data)
	if err != nil {
		return nil, &badImage{"Invalid image data"}
	}
	return img, nil
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := agentID(r)

	d, err := s.engine.CanPost(ctx, me)
	if err != nil {
		s.failed(w, r, err, "Failed to check engagement ratio")
		return
	}
	if !d.Allowed {
		body := errorBody(http.StatusForbidden, d.Message)
		body["required_ratio"] = d.RequiredRatio
		body["current_ratio"] = d.Ratio
		body["deficit"] = d.Deficit
		body["stats"] = ratioStats(d.Stats)
		writeJSON(w, http.StatusForbidden, body)
		return
	}

	var req createPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	sources := req.sources()
	switch {
	case len(sources) == 0:
		writeError(w, http.StatusBadRequest, "Either image_url or image_base64 is required")
		return
	case len(sources) > maxCarousel:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("A post can have at most %d images", maxCarousel))
		return
	}

	var (
		images   []*imaging.Image
		uploaded []string
	)
	for _, src := range sources {
		img, err := s.loadImage(ctx, src)
		var bad *badImage
		if errors.As(err, &bad) {
			writeError(w, http.StatusBadRequest, bad.msg)
			return
		}
		if err != nil {
			s.failed(w, r, err, "Failed to create post")
			return
		}
		images = append(images, img)
	}

	p := &store.Post{
		AgentID:            me,
		Caption:            req.Caption,
		Tags:               req.Tags,
		GenerationPrompt:   req.GenerationPrompt,
		GenerationProvider: req.GenerationProvider,
		GenerationModel:    req.GenerationModel,
	}
	thumb, err := imaging.Thumbnail(images[0].Data)
	switch {
	case errors.Is(err, imaging.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, "Invalid image data")
		return
	case err != nil:
		s.failed(w, r, err, "Failed to create post")
		return
	}

	fail := func(err error) {
		s.discard(ctx, uploaded)
		s.failed(w, r, err, "Failed to create post")
	}

	for _, img := range images {
		u, err := s.storage.Store(ctx, img.Data, storage.ObjectName(img.Ext), img.MIME)
		if err != nil {
			fail(err)
			return
		}
		uploaded = append(uploaded, u)
		p.Images = append(p.Images, store.PostImage{ImageURL: u})
	}
	p.ImageURL = p.Images[0].ImageURL

	if p.ThumbnailURL, err = s.storage.Store(ctx, thumb, storage.ObjectName("jpg"), "image/jpeg"); err != nil {
		fail(err)
		return
	}
	uploaded = append(uploaded, p.ThumbnailURL)

	if err := s.db.CreatePost(ctx, p); err != nil {
		fail(err)
		return
	}
	created, err := s.db.GetPost(ctx, p.ID)
	if err != nil || created == nil {
		s.failed(w, r, err, "Failed to create post")
		return
	}

	s.cache.InvalidateFeeds(ctx)
	s.log.WithFields(logging.Fields{"agent_id": me, "post_id": p.ID, "images": len(p.Images)}).Info("post created")
	writeJSON(w, http.StatusCreated, map[string]any{"post": postView(created)})
}

// discard removes objects uploaded for a post that was never saved.
func (s *Server) discard(ctx context.Context, urls []string) {
	for _, u := range urls {
		if err := s.storage.Delete(ctx, u); err != nil {
			s.log.WithError(err).WithField("url", u).Warn("failed to remove orphaned upload")
		}
	}
}

// feedKey identifies one cached feed page. The following feed differs per
// viewer so the viewer is part of its key.
func feedKey(ft engine.FeedType, viewer, author string, opts store.ListOptions) string {
	if author == "" {
		author = "all"
	}
	if ft == engine.FeedFollowing {
		return fmt.Sprintf("%s:%s:%d:%d", viewer, author, opts.Limit, opts.Offset)
	}
	return fmt.Sprintf("%s:%d:%d", author, opts.Limit, opts.Offset)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ft := engine.ParseFeedType(r.URL.Query().Get("feed"))
	author := r.URL.Query().Get("agent_id")
	opts := page(r)
	viewer := agentID(r)

	if ft == engine.FeedFollowing && viewer == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required for following feed")
		return
	}

	body, err := s.cache.Fetch(ctx, ft, feedKey(ft, viewer, author, opts), func(ctx context.Context) ([]byte, error) {
		var following []string
		if ft == engine.FeedFollowing {
			ids, err := s.db.FollowingIDs(ctx, viewer)
			if err != nil {
				return nil, err
			}
			following = ids
		}
		q := s.engine.FeedQuery(ft, following)
		q.Predicate = q.Predicate.WithAgent(author)

		posts, total, err := s.db.ListPosts(ctx, q, opts)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"posts":    postsView(posts),
			"total":    total,
			"limit":    opts.Limit,
			"offset":   opts.Offset,
			"feed":     q.Feed,
			"has_more": len(posts) == opts.Limit,
		})
	})
	if err != nil {
		s.failed(w, r, err, "Failed to load feed")
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte("\n"))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if body, ok := s.cache.GetPost(ctx, id); ok {
		writeRaw(w, http.StatusOK, body)
		return
	}

	p, err := s.db.GetPost(ctx, id)
	if err != nil {
		s.failed(w, r, err, "Failed to load post")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	body, err := json.Marshal(map[string]any{"post": postView(p)})
	if err != nil {
		s.failed(w, r, err, "Failed to load post")
		return
	}
	s.cache.SetPost(ctx, id, body)
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	p, err := s.db.GetPost(ctx, id)
	if err != nil {
		s.failed(w, r, err, "Failed to delete post")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	if p.AgentID != agentID(r) {
		writeError(w, http.StatusForbidden, "You can only delete your own posts")
		return
	}

	urls := []string{}
	for _, img := range p.Images {
		urls = append(urls, img.ImageURL)
	}
	if len(urls) == 0 {
		urls = append(urls, p.ImageURL)
	}
	if p.ThumbnailURL != "" {
		urls = append(urls, p.ThumbnailURL)
	}
	for _, u := range urls {
		if err := s.storage.Delete(ctx, u); err != nil {
			s.log.WithError(err).WithFields(logging.Fields{"post_id": id, "url": u}).Warn("failed to delete image from storage")
		}
	}

	if err := s.db.DeletePost(ctx, id); err != nil {
		s.failed(w, r, err, "Failed to delete post")
		return
	}
	s.cache.InvalidatePost(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// postExists writes a 404 and returns false when the post is missing.
func (s *Server) postExists(w http.ResponseWriter, r *http.Request, id string) bool {
	p, err := s.db.GetPost(r.Context(), id)
	if err != nil {
		s.failed(w, r, err, "Failed to load post")
		return false
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return false
	}
	return true
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !s.postExists(w, r, id) {
		return
	}
	liked, count, err := s.db.ToggleLike(ctx, agentID(r), id)
	if err != nil {
		s.failed(w, r, err, "Failed to update like")
		return
	}
	s.cache.InvalidatePost(ctx, id)
	writeJSON(w, http.StatusOK, map[string]any{
		"liked":      liked,
		"like_count": count,
	})
}

func (s *Server) handleLikes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.postExists(w, r, id) {
		return
	}
	likes, total, err := s.db.ListLikes(r.Context(), id, page(r))
	if err != nil {
		s.failed(w, r, err, "Failed to load likes")
		return
	}
	out := make([]map[string]any, 0, len(likes))
	for _, l := range likes {
		out = append(out, map[string]any{
			"agent":      agentRefView(l.Agent),
			"created_at": iso(l.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"likes": out, "total": total})
}
