// Package handlers implements the HTTP API of the chat server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"groupchat/pkg/chat"
	"groupchat/pkg/config"
	"groupchat/pkg/knowledge"
	"groupchat/pkg/llm"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/sse"
	"groupchat/pkg/telemetry"
	"groupchat/pkg/utils"
)

// Deps carries what the handlers need.
type Deps struct {
	Registry  *llm.Registry
	Retriever knowledge.Retriever
	Config    *config.Config
	Roster    *config.Roster
}

// Handlers binds the dependency set to the route functions.
type Handlers struct {
	deps Deps
}

func New(deps Deps) *Handlers { return &Handlers{deps: deps} }

// RegisterChat mounts the chat streaming endpoints.
func (h *Handlers) RegisterChat(r *mux.Router) {
	r.HandleFunc("/api/chat", h.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/rag-chat", h.handleRAGChat).Methods(http.MethodPost)
}

func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	h.serveTurn(w, r, false)
}

func (h *Handlers) handleRAGChat(w http.ResponseWriter, r *http.Request) {
	h.serveTurn(w, r, true)
}

// serveTurn proxies one persona turn to the upstream model as a frame
// stream. Failures after the stream starts become informational frames,
// never HTTP errors: the client renders them as the persona's reply.
func (h *Handlers) serveTurn(w http.ResponseWriter, r *http.Request, rag bool) {
	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sw, err := sse.NewWriter(w)
	if err != nil {
		utils.JSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// even validation failures are frames: the client always has
	// something to display as the persona's reply
	if strings.TrimSpace(req.Message) == "" {
		w.WriteHeader(http.StatusBadRequest)
		sw.Send("缺少用户消息内容")
		return
	}

	entry, key, err := h.deps.Registry.Resolve(req.Model)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrUnsupportedModel):
			logger.Warn("chat_unsupported_model", "model", req.Model)
			telemetry.UpstreamErrors.WithLabelValues("unsupported_model").Inc()
			sw.Send("不支持的模型类型，请更换模型")
		case errors.Is(err, llm.ErrMissingAPIKey):
			logger.Warn("chat_missing_api_key", "model", req.Model, "env", entry.APIKeyEnv)
			telemetry.UpstreamErrors.WithLabelValues("missing_api_key").Inc()
			sw.Send(fmt.Sprintf("未配置 API Key，请先设置环境变量 %s", entry.APIKeyEnv))
		default:
			telemetry.UpstreamErrors.WithLabelValues("resolve").Inc()
			sw.Send("生成过程中出错，请稍后重试")
		}
		return
	}

	system := h.buildSystemPrompt(r.Context(), req, rag)
	msgs := spliceMessages(req, system)

	cli := llm.NewClient(entry.BaseURL, key)
	streamed := false
	err = cli.StreamChat(r.Context(), llm.ChatRequest{Model: entry.Model, Messages: msgs}, func(delta string) error {
		streamed = true
		return sw.Send(delta)
	})
	if err != nil {
		if r.Context().Err() != nil {
			logger.Info("chat_client_gone", "model", req.Model, "persona", req.AIName)
			telemetry.Turns.WithLabelValues("cancelled").Inc()
			return
		}
		logger.Error("chat_upstream_failed", "model", req.Model, "persona", req.AIName, "error", err)
		telemetry.UpstreamErrors.WithLabelValues("stream").Inc()
		telemetry.Turns.WithLabelValues("error").Inc()
		if !streamed {
			sw.Send("生成过程中出错，请稍后重试")
		}
		return
	}
	telemetry.Turns.WithLabelValues("ok").Inc()
	logger.Debug("chat_turn_served", "model", req.Model, "persona", req.AIName, "rag", rag)
}

// buildSystemPrompt assembles the persona's instructions. RAG turns get
// retrieved passages appended as reference material.
func (h *Handlers) buildSystemPrompt(ctx context.Context, req chat.TurnRequest, rag bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是群聊中的一位成员，名字是%s。", req.AIName)
	if req.Personality != "" {
		fmt.Fprintf(&b, "你的性格：%s。", req.Personality)
	}
	if len(req.Members) > 0 {
		fmt.Fprintf(&b, "群里的成员有：%s，以及用户%s。", strings.Join(req.Members, "、"), req.UserName)
	}
	b.WriteString("请以你的身份自然地参与对话，回答保持简短口语化。")
	b.WriteString("直接说出内容，不要在开头加上自己的名字和冒号。")
	if req.CustomPrompt != "" {
		b.WriteString("\n" + req.CustomPrompt)
	}

	if rag && h.deps.Retriever != nil {
		topK := h.deps.Config.Knowledge.TopK
		passages, err := h.deps.Retriever.Retrieve(ctx, req.Knowledge, req.Message, topK)
		if err != nil {
			logger.Warn("rag_retrieve_failed", "base", req.Knowledge, "error", err)
		} else if len(passages) > 0 {
			b.WriteString("\n以下是相关的参考资料，回答时可以参考：\n")
			for _, p := range passages {
				b.WriteString("- " + p + "\n")
			}
		}
	}
	return b.String()
}

// spliceMessages builds the upstream message list: system prompt, the
// capped history, and the user message inserted index slots from the end.
func spliceMessages(req chat.TurnRequest, system string) []llm.ChatMessage {
	hist := models.CapHistory(req.History)
	body := make([]llm.ChatMessage, 0, len(hist)+1)
	for _, e := range hist {
		body = append(body, llm.ChatMessage{Role: e.Role, Content: e.Content})
	}
	userMsg := llm.ChatMessage{Role: "user", Content: req.Message}
	if req.Index <= 0 || req.Index > len(body) {
		body = append(body, userMsg)
	} else {
		pos := len(body) - req.Index
		body = append(body[:pos], append([]llm.ChatMessage{userMsg}, body[pos:]...)...)
	}
	out := make([]llm.ChatMessage, 0, len(body)+1)
	out = append(out, llm.ChatMessage{Role: "system", Content: system})
	return append(out, body...)
}
