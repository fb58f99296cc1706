package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"groupchat/pkg/client"
	"groupchat/pkg/config"
	"groupchat/pkg/models"
)

type fakeRemote struct {
	mu     sync.Mutex
	stored map[string][]models.StoredMessage
	down   bool
	pushes int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{stored: map[string][]models.StoredMessage{}}
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.down {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodGet:
			gid := r.URL.Query().Get("groupId")
			json.NewEncoder(w).Encode(GetResponse{Success: true, Messages: f.stored[gid]})
		case http.MethodPost:
			var req SaveRequest
			json.NewDecoder(r.Body).Decode(&req)
			f.stored[req.GroupID] = req.Messages
			f.pushes++
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		case http.MethodDelete:
			delete(f.stored, r.URL.Query().Get("groupId"))
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		}
	})
	return mux
}

func newTestBridge(t *testing.T, remote *fakeRemote) (*Bridge, *Local) {
	t.Helper()
	srv := httptest.NewServer(remote.handler())
	t.Cleanup(srv.Close)
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	return NewBridge(client.New(srv.URL), local, config.DefaultRoster(), "default"), local
}

func TestHydratePrefersRemoteAndResolvesSenders(t *testing.T) {
	remote := newFakeRemote()
	remote.stored["default"] = []models.StoredMessage{
		{ID: 1, SenderName: "我", IsAI: false, Content: "你好"},
		{ID: 2, SenderName: "悟空", IsAI: true, Content: "俺来也"},
		{ID: 3, SenderName: "故人", IsAI: true, Content: "旧成员"},
	}
	b, _ := newTestBridge(t, remote)

	msgs := b.Hydrate(context.Background())
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].Sender.PersonaID != "ai1" {
		t.Fatalf("known persona not resolved: %+v", msgs[1].Sender)
	}
	// a sender no longer in the roster keeps its name, with no persona id
	if msgs[2].Sender.PersonaID != "" || msgs[2].Sender.Name != "故人" {
		t.Fatalf("unknown sender mishandled: %+v", msgs[2].Sender)
	}
}

func TestHydrateFallsBackToLocalCache(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	b, local := newTestBridge(t, remote)

	cached := []models.StoredMessage{{ID: 1, SenderName: "我", Content: "离线消息"}}
	if err := local.Save("default", cached); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	msgs := b.Hydrate(context.Background())
	if len(msgs) != 1 || msgs[0].Content != "离线消息" {
		t.Fatalf("cache fallback failed: %+v", msgs)
	}
}

func TestHydrateFailsOpen(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	b, _ := newTestBridge(t, remote)

	msgs := b.Hydrate(context.Background())
	if len(msgs) != 0 {
		t.Fatalf("expected empty transcript, got %+v", msgs)
	}
}

func TestSyncSuppressedBeforeHydration(t *testing.T) {
	remote := newFakeRemote()
	b, _ := newTestBridge(t, remote)

	b.Sync([]models.Message{{ID: 1, Sender: models.Sender{Name: "我"}, Content: "hi"}})
	time.Sleep(50 * time.Millisecond)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if remote.pushes != 0 {
		t.Fatalf("push happened before hydration: %d", remote.pushes)
	}
}

func TestSyncPushesAfterHydration(t *testing.T) {
	remote := newFakeRemote()
	b, local := newTestBridge(t, remote)
	b.Hydrate(context.Background())

	b.Sync([]models.Message{
		{ID: 1, Sender: models.Sender{Name: "我"}, Content: "你好"},
		{ID: 2, Sender: models.Sender{PersonaID: "ai1", Name: "悟空"}, Content: "在", IsAI: true},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		remote.mu.Lock()
		n := remote.pushes
		remote.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("push never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs, _, err := local.Load("default")
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	if len(msgs) != 2 || msgs[1].SenderName != "悟空" || !msgs[1].IsAI {
		t.Fatalf("cache contents wrong: %+v", msgs)
	}
}

func TestClear(t *testing.T) {
	remote := newFakeRemote()
	remote.stored["default"] = []models.StoredMessage{{ID: 1, SenderName: "我", Content: "x"}}
	b, local := newTestBridge(t, remote)
	b.Hydrate(context.Background())
	local.Save("default", []models.StoredMessage{{ID: 1, SenderName: "我", Content: "x"}})

	if err := b.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if msgs := b.Hydrate(context.Background()); len(msgs) != 0 {
		t.Fatalf("remote not cleared: %+v", msgs)
	}
	if msgs, _, _ := local.Load("default"); len(msgs) != 0 {
		t.Fatalf("cache not cleared: %+v", msgs)
	}
}
