package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"groupchat/pkg/chat"
	"groupchat/pkg/config"
	"groupchat/pkg/llm"
	"groupchat/pkg/models"
)

// fakeUpstream serves an OpenAI-compatible streaming completion.
func fakeUpstream(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
			f.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		f.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandlers(t *testing.T, upstream string) *Handlers {
	t.Helper()
	t.Setenv("TEST_API_KEY", "test-key")
	cfg := config.Default()
	cfg.Scheduler.Model = "test-model"
	reg := llm.NewRegistry(map[string]config.ModelEntry{
		"test-model": {Model: "test-model", BaseURL: upstream, APIKeyEnv: "TEST_API_KEY"},
	})
	return New(Deps{Registry: reg, Config: cfg, Roster: config.DefaultRoster()})
}

func chatRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	h.RegisterChat(r)
	h.RegisterScheduler(r)
	return r
}

func TestChatRejectsEmptyMessageAsFrame(t *testing.T) {
	h := newTestHandlers(t, "http://unused")
	r := chatRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"  ","model":"test-model","aiName":"悟空"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	// a 400, but still a frame the client can display
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
	if !strings.Contains(w.Body.String(), `data: {"content":"缺少用户消息内容"}`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestChatUnsupportedModelIsInformationalFrame(t *testing.T) {
	h := newTestHandlers(t, "http://unused")
	r := chatRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"你好","model":"no-such-model","aiName":"悟空"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "不支持的模型类型，请更换模型") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestChatStreamsUpstreamDeltas(t *testing.T) {
	up := fakeUpstream(t, "你", "好")
	h := newTestHandlers(t, up.URL)
	r := chatRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message":"在吗","model":"test-model","aiName":"悟空","userName":"我"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data: {"content":"你"}`) || !strings.Contains(body, `data: {"content":"好"}`) {
		t.Fatalf("deltas not forwarded as frames: %s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestSpliceMessages(t *testing.T) {
	hist := make([]models.ChatEntry, 0, 5)
	for i := 1; i <= 5; i++ {
		hist = append(hist, models.ChatEntry{Role: "assistant", Content: fmt.Sprintf("e%d", i)})
	}
	req := chat.TurnRequest{Message: "用户消息", History: hist, Index: 2}
	msgs := spliceMessages(req, "sys")

	if msgs[0].Role != "system" {
		t.Fatalf("first message should be the system prompt: %+v", msgs[0])
	}
	// five history entries plus the user message inserted two slots from
	// the end: e1 e2 e3 user e4 e5
	if len(msgs) != 7 {
		t.Fatalf("got %d messages, want 7", len(msgs))
	}
	if msgs[4].Role != "user" || msgs[4].Content != "用户消息" {
		t.Fatalf("user message at wrong slot: %+v", msgs)
	}
	if msgs[5].Content != "e4" || msgs[6].Content != "e5" {
		t.Fatalf("tail entries shifted wrong: %+v", msgs[5:])
	}
}

func TestSpliceMessagesAppendsAtIndexZero(t *testing.T) {
	req := chat.TurnRequest{
		Message: "hi",
		History: []models.ChatEntry{{Role: "assistant", Content: "e1"}},
		Index:   0,
	}
	msgs := spliceMessages(req, "sys")
	if msgs[len(msgs)-1].Content != "hi" {
		t.Fatalf("user message should be last: %+v", msgs)
	}
}

func TestSpliceMessagesFullIndexInsertsBeforeHistory(t *testing.T) {
	// index equal to the history length: the fresh-group second turn,
	// where everything in history arrived after the user spoke
	req := chat.TurnRequest{
		Message: "大家好",
		History: []models.ChatEntry{{Role: "assistant", Content: "悟空：俺来也"}},
		Index:   1,
	}
	msgs := spliceMessages(req, "sys")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].Role != "user" || msgs[1].Content != "大家好" {
		t.Fatalf("user message should come before the reply: %+v", msgs)
	}
	if msgs[2].Content != "悟空：俺来也" {
		t.Fatalf("reply should follow the user message: %+v", msgs)
	}
}

func TestSpliceMessagesOutOfRangeIndexAppends(t *testing.T) {
	req := chat.TurnRequest{
		Message: "hi",
		History: []models.ChatEntry{{Role: "assistant", Content: "e1"}},
		Index:   9,
	}
	msgs := spliceMessages(req, "sys")
	if msgs[len(msgs)-1].Content != "hi" {
		t.Fatalf("user message should be last: %+v", msgs)
	}
}

func TestParseSpeakerIDs(t *testing.T) {
	members := []chat.SchedulerMember{
		{ID: "ai1", Name: "悟空"},
		{ID: "ai2", Name: "八戒"},
	}
	cases := []struct {
		in   string
		want []string
	}{
		{`["ai2","ai1"]`, []string{"ai2", "ai1"}},
		{"好的，我选：\n```json\n[\"ai1\"]\n```", []string{"ai1"}},
		{`["悟空","ai2"]`, []string{"ai1", "ai2"}},
		{`["ai1","ai1","ghost"]`, []string{"ai1"}},
	}
	for _, c := range cases {
		got, err := parseSpeakerIDs(c.in, members)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("parse %q = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("parse %q = %v, want %v", c.in, got, c.want)
			}
		}
	}
	if _, err := parseSpeakerIDs("没有数组", members); err == nil {
		t.Fatal("expected an error for output without an array")
	}
}
