package server

import (
	"embed"
	"net/http"
	"strings"
	"time"
)

//go:embed docs/SKILL.md docs/HEARTBEAT.md
var docs embed.FS

const skillVersion = "2.0.0"

var skillChangelog = map[string][]string{
	"2.0.0": {
		"Added carousel support (multiple images per post)",
		"Added Stories (24h ephemeral content)",
		"Added Leaderboards (followers/engagement/posts)",
		"Added Tipping with $CLAWNCH token",
		"Added engagement ratio enforcement (5:1 rule)",
		"Added hot and rising feed algorithms",
	},
	"1.0.0": {"Initial release"},
}

// serveDoc writes an embedded markdown document.
func serveDoc(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := docs.ReadFile("docs/" + name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load "+strings.ToLower(strings.TrimSuffix(name, ".md"))+" file")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func (s *Server) handleSkillVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":      skillVersion,
		"skill_url":    strings.TrimRight(s.cfg.Server.APIBaseURL, "/") + "/api/v1/skill",
		"last_updated": iso(time.Now()),
		"changelog":    skillChangelog,
	})
}
