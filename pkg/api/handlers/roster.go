package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"groupchat/pkg/utils"
)

// RegisterRoster mounts the read-only roster endpoints clients use to
// discover personas and groups.
func (h *Handlers) RegisterRoster(r *mux.Router) {
	r.HandleFunc("/api/init", h.getInit).Methods(http.MethodGet)
	r.HandleFunc("/api/roster", h.getRoster).Methods(http.MethodGet)
	r.HandleFunc("/api/groups/{id}", h.getGroup).Methods(http.MethodGet)
}

// getInit is the bootstrap payload a web client loads once: groups,
// characters and the configured user name.
func (h *Handlers) getInit(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, map[string]any{
		"success":    true,
		"groups":     h.deps.Roster.Groups,
		"characters": h.deps.Roster.Personas,
		"userName":   h.deps.Config.Chat.UserName,
	}, http.StatusOK)
}

func (h *Handlers) getRoster(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, map[string]any{
		"personas": h.deps.Roster.Personas,
		"groups":   h.deps.Roster.Groups,
	}, http.StatusOK)
}

func (h *Handlers) getGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	g, ok := h.deps.Roster.Group(id)
	if !ok {
		utils.JSONError(w, "group not found", http.StatusNotFound)
		return
	}
	utils.JSONWrite(w, map[string]any{
		"group":   g,
		"members": h.deps.Roster.Members(g),
	}, http.StatusOK)
}
