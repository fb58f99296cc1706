package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"groupchat/pkg/chat"
	"groupchat/pkg/llm"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/telemetry"
	"groupchat/pkg/utils"
)

// RegisterScheduler mounts the speaker-selection endpoint.
func (h *Handlers) RegisterScheduler(r *mux.Router) {
	r.HandleFunc("/api/scheduler", h.handleScheduler).Methods(http.MethodPost)
}

// handleScheduler asks the scheduler model which members should reply.
// Any failure is reported as success=false; the client falls back to the
// full roster.
func (h *Handlers) handleScheduler(w http.ResponseWriter, r *http.Request) {
	var req chat.SchedulerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" || len(req.Members) == 0 {
		utils.JSONError(w, "缺少用户消息内容", http.StatusBadRequest)
		return
	}

	// explicit mentions beat the model: a message naming members gets
	// answers from exactly those members, in mention order
	if ids := mentionedMembers(req.Message, req.Members); len(ids) > 0 {
		logger.Debug("scheduler_mentions", "speakers", ids)
		utils.JSONWrite(w, chat.SchedulerResponse{Success: true, Speakers: ids}, http.StatusOK)
		return
	}

	entry, key, err := h.deps.Registry.Resolve(h.deps.Config.Scheduler.Model)
	if err != nil {
		logger.Warn("scheduler_model_unavailable", "error", err)
		utils.JSONWrite(w, chat.SchedulerResponse{Success: false, Error: err.Error()}, http.StatusOK)
		return
	}

	cli := llm.NewClient(entry.BaseURL, key)
	content, err := cli.Complete(r.Context(), llm.ChatRequest{
		Model: entry.Model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: schedulerPrompt(req)},
			{Role: "user", Content: req.Message},
		},
	})
	if err != nil {
		logger.Warn("scheduler_call_failed", "error", err)
		telemetry.UpstreamErrors.WithLabelValues("scheduler").Inc()
		utils.JSONWrite(w, chat.SchedulerResponse{Success: false, Error: err.Error()}, http.StatusOK)
		return
	}

	ids, err := parseSpeakerIDs(content, req.Members)
	if err != nil {
		logger.Warn("scheduler_parse_failed", "error", err, "raw", content)
		utils.JSONWrite(w, chat.SchedulerResponse{Success: false, Error: err.Error()}, http.StatusOK)
		return
	}
	logger.Debug("scheduler_picked", "speakers", ids)
	utils.JSONWrite(w, chat.SchedulerResponse{Success: true, Speakers: ids}, http.StatusOK)
}

func schedulerPrompt(req chat.SchedulerRequest) string {
	var b strings.Builder
	b.WriteString("你是群聊的调度员，负责决定哪些成员应该回复用户的最新消息。\n群成员：\n")
	for _, m := range req.Members {
		fmt.Fprintf(&b, "- id: %s，名字：%s，性格：%s\n", m.ID, m.Name, m.Personality)
	}
	if len(req.History) > 0 {
		b.WriteString("最近的对话：\n")
		for _, e := range models.CapHistory(req.History) {
			b.WriteString(e.Content + "\n")
		}
	}
	b.WriteString("根据消息内容选出应该发言的成员并排好顺序。")
	b.WriteString("只输出一个 JSON 数组，元素是成员的 id，例如 [\"ai1\",\"ai2\"]。不要输出其他内容。")
	return b.String()
}

// mentionedMembers returns the members whose names appear in the
// message (with or without a leading @), ordered by first mention.
func mentionedMembers(message string, members []chat.SchedulerMember) []string {
	type hit struct {
		id  string
		pos int
	}
	var hits []hit
	for _, m := range members {
		if m.Name == "" {
			continue
		}
		pos := strings.Index(message, "@"+m.Name)
		if pos < 0 {
			pos = strings.Index(message, m.Name)
		}
		if pos >= 0 {
			hits = append(hits, hit{id: m.ID, pos: pos})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.id)
	}
	return out
}

// parseSpeakerIDs extracts the id array from the model output, dropping
// ids that are not in the member list and deduplicating.
func parseSpeakerIDs(content string, members []chat.SchedulerMember) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in scheduler output")
	}
	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse scheduler output: %w", err)
	}
	known := make(map[string]bool, len(members))
	byName := make(map[string]string, len(members))
	for _, m := range members {
		known[m.ID] = true
		byName[m.Name] = m.ID
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		id := strings.TrimSpace(v)
		if !known[id] {
			// models sometimes answer with names instead of ids
			if mapped, ok := byName[id]; ok {
				id = mapped
			} else {
				continue
			}
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
