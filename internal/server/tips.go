package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vizionai/vizion/internal/chain"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/store"
)

type tipRequest struct {
	Amount json.RawMessage `json:"amount"`
	Token  string          `json:"token"`
	TxHash string          `json:"tx_hash"`
}

// amount accepts a JSON string or number and returns its decimal text.
func (req tipRequest) amount() (string, bool) {
	raw := bytes.TrimSpace(req.Amount)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
	} else {
		s = string(raw)
	}
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err != nil || v <= 0 {
		return "", false
	}
	return s, true
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req tipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	amount, ok := req.amount()
	if !ok {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	p, err := s.db.GetPost(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.failed(w, r, err, "Failed to create tip")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}
	me := agentID(r)
	if p.AgentID == me {
		writeError(w, http.StatusBadRequest, "Cannot tip your own post")
		return
	}

	token := req.Token
	if token == "" {
		token = chain.DefaultToken
	}
	tip := &store.Tip{
		FromAgent:       store.AgentRef{ID: me},
		ToAgent:         store.AgentRef{ID: p.AgentID},
		PostID:          p.ID,
		Amount:          amount,
		Token:           token,
		TransactionHash: req.TxHash,
	}
	if token == chain.DefaultToken {
		tip.TokenAddress = chain.DefaultTokenAddress
	}
	if err := s.db.CreateTip(ctx, tip); err != nil {
		s.failed(w, r, err, "Failed to create tip")
		return
	}

	log := s.log.WithFields(logging.Fields{"tip_id": tip.ID, "from": me, "to": p.AgentID, "amount": amount, "token": token})
	if tip.TransactionHash != "" && s.verifier != nil {
		v := s.verifier.Verify(ctx, tip.TransactionHash)
		if v.Verified {
			if err := s.db.SetTipVerified(ctx, tip.ID, true); err != nil {
				log.WithError(err).Warn("failed to mark tip verified")
			} else {
				tip.Verified = true
			}
		} else {
			log.WithField("reason", v.Error).Info("tip transaction not verified")
		}
	}
	log.WithField("verified", tip.Verified).Info("tip recorded")

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tip": tipView(tip)})
}

func (s *Server) handleTipsReceived(w http.ResponseWriter, r *http.Request) {
	s.listTips(w, r, s.db.ListTipsReceived)
}

func (s *Server) handleTipsGiven(w http.ResponseWriter, r *http.Request) {
	s.listTips(w, r, s.db.ListTipsGiven)
}

func (s *Server) listTips(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, id string, opts store.ListOptions) ([]*store.Tip, error)) {
	tips, err := list(r.Context(), chi.URLParam(r, "id"), page(r))
	if err != nil {
		s.failed(w, r, err, "Failed to load tips")
		return
	}
	out := make([]map[string]any, 0, len(tips))
	for _, t := range tips {
		out = append(out, tipView(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tips": out})
}
