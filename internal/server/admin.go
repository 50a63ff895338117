package server

import "net/http"

func (s *Server) handleRecomputeScores(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RecomputeAll(r.Context())
	if err != nil {
		s.failed(w, r, err, "Failed to recompute scores")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"scored":   len(res.Results),
		"failed":   len(res.Failures),
		"failures": res.Failures,
	})
}
