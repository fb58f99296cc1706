package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"groupchat/pkg/history"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/store"
	"groupchat/pkg/telemetry"
	"groupchat/pkg/utils"
)

// RegisterHistory mounts the transcript endpoints.
func (h *Handlers) RegisterHistory(r *mux.Router) {
	r.HandleFunc("/api/history", h.getHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/history", h.saveHistory).Methods(http.MethodPost)
	r.HandleFunc("/api/history", h.clearHistory).Methods(http.MethodDelete)
}

func (h *Handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		utils.JSONError(w, "missing groupId", http.StatusBadRequest)
		return
	}
	msgs, err := store.GetHistory(groupID)
	if err != nil {
		logger.Error("history_get_failed", "group", groupID, "error", err)
		utils.JSONWrite(w, history.GetResponse{Success: false, Error: "failed to load history"}, http.StatusInternalServerError)
		return
	}
	telemetry.HistoryLoads.Inc()
	utils.JSONWrite(w, history.GetResponse{Success: true, Messages: msgs}, http.StatusOK)
}

func (h *Handlers) saveHistory(w http.ResponseWriter, r *http.Request) {
	var req history.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GroupID == "" {
		utils.JSONError(w, "missing groupId", http.StatusBadRequest)
		return
	}
	if req.Messages == nil {
		req.Messages = []models.StoredMessage{}
	}
	if err := store.SaveHistory(req.GroupID, req.Messages); err != nil {
		logger.Error("history_save_failed", "group", req.GroupID, "error", err)
		utils.JSONError(w, "failed to save history", http.StatusInternalServerError)
		return
	}
	telemetry.HistorySaves.Inc()
	logger.Debug("history_saved", "group", req.GroupID, "messages", len(req.Messages))
	utils.JSONWrite(w, map[string]bool{"success": true}, http.StatusOK)
}

func (h *Handlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		utils.JSONError(w, "missing groupId", http.StatusBadRequest)
		return
	}
	if err := store.ClearHistory(groupID); err != nil {
		logger.Error("history_clear_failed", "group", groupID, "error", err)
		utils.JSONError(w, "failed to clear history", http.StatusInternalServerError)
		return
	}
	logger.Info("history_cleared", "group", groupID)
	utils.JSONWrite(w, map[string]bool{"success": true}, http.StatusOK)
}
