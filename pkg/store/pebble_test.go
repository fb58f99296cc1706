package store

import (
	"testing"

	"groupchat/pkg/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	p, err := OpenPebble(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	Open(p)
	t.Cleanup(func() { Close() })
}

func TestHistoryRoundTrip(t *testing.T) {
	openTestStore(t)

	msgs := []models.StoredMessage{
		{ID: 1, SenderName: "我", IsAI: false, Content: "你好"},
		{ID: 2, SenderName: "悟空", IsAI: true, Content: "俺老孙来也"},
	}
	if err := SaveHistory("g1", msgs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := GetHistory("g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[1].SenderName != "悟空" || !got[1].IsAI {
		t.Fatalf("unexpected message: %+v", got[1])
	}
}

func TestGetHistoryMissingGroup(t *testing.T) {
	openTestStore(t)

	got, err := GetHistory("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestClearHistory(t *testing.T) {
	openTestStore(t)

	if err := SaveHistory("g1", []models.StoredMessage{{ID: 1, SenderName: "我", Content: "hi"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ClearHistory("g1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err := GetHistory("g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("history not cleared: %+v", got)
	}
}

func TestKnowledgeDocs(t *testing.T) {
	openTestStore(t)

	if err := PutDoc("travel", "d1", "泰山位于山东"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := PutDoc("travel", "d2", "黄山以奇松闻名"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := PutDoc("food", "d1", "火锅"); err != nil {
		t.Fatalf("put: %v", err)
	}
	docs, err := ListDocs("travel")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
}
