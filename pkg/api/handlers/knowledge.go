package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"groupchat/pkg/logger"
	"groupchat/pkg/store"
	"groupchat/pkg/utils"
)

// RegisterKnowledge mounts the knowledge-base seeding endpoint.
func (h *Handlers) RegisterKnowledge(r *mux.Router) {
	r.HandleFunc("/api/knowledge/init", h.initKnowledge).Methods(http.MethodPost)
}

type knowledgeDoc struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type initKnowledgeRequest struct {
	Base string         `json:"base"`
	Docs []knowledgeDoc `json:"docs"`
}

// initKnowledge loads documents into a named knowledge base for the
// store-backed retriever.
func (h *Handlers) initKnowledge(w http.ResponseWriter, r *http.Request) {
	var req initKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Base == "" || len(req.Docs) == 0 {
		utils.JSONError(w, "missing base or docs", http.StatusBadRequest)
		return
	}
	count := 0
	for _, d := range req.Docs {
		if d.ID == "" || strings.TrimSpace(d.Text) == "" {
			continue
		}
		if err := store.PutDoc(req.Base, d.ID, d.Text); err != nil {
			logger.Error("knowledge_put_failed", "base", req.Base, "doc", d.ID, "error", err)
			utils.JSONError(w, "failed to store document", http.StatusInternalServerError)
			return
		}
		count++
	}
	logger.Info("knowledge_seeded", "base", req.Base, "docs", count)
	utils.JSONWrite(w, map[string]any{"success": true, "count": count}, http.StatusOK)
}
