package history

import (
	"context"
	"net/url"
	"sync"
	"time"

	"groupchat/pkg/client"
	"groupchat/pkg/config"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
)

// StaleAfter bounds how old a local cache may be before the remote copy
// wins during hydration.
const StaleAfter = 24 * time.Hour

// GetResponse is the wire shape of GET /api/history.
type GetResponse struct {
	Success  bool                   `json:"success"`
	Messages []models.StoredMessage `json:"messages"`
	Error    string                 `json:"error,omitempty"`
}

// SaveRequest is the wire shape of POST /api/history.
type SaveRequest struct {
	GroupID  string                 `json:"groupId"`
	Messages []models.StoredMessage `json:"messages"`
}

// Bridge keeps a group's transcript in three places: the live session,
// the local file cache, and the server store. Pushes are suppressed
// until hydration finishes so a half-started client cannot clobber the
// stored transcript with an empty one.
type Bridge struct {
	http    *client.Client
	local   *Local
	roster  *config.Roster
	groupID string

	mu       sync.Mutex
	hydrated bool
}

func NewBridge(httpc *client.Client, local *Local, roster *config.Roster, groupID string) *Bridge {
	return &Bridge{http: httpc, local: local, roster: roster, groupID: groupID}
}

// Hydrate loads the transcript, preferring the server copy and falling
// back to a fresh-enough local cache. All failures are soft: worst case
// the chat starts empty.
func (b *Bridge) Hydrate(ctx context.Context) []models.Message {
	stored := b.load(ctx)

	b.mu.Lock()
	b.hydrated = true
	b.mu.Unlock()

	out := make([]models.Message, 0, len(stored))
	for i, m := range stored {
		sender := models.Sender{Name: m.SenderName}
		if m.IsAI {
			if p, ok := b.roster.PersonaByName(m.SenderName); ok {
				sender = models.PersonaSender(p)
			}
		}
		id := m.ID
		if id == 0 {
			id = i + 1
		}
		out = append(out, models.Message{ID: id, Sender: sender, Content: m.Content, IsAI: m.IsAI})
	}
	return out
}

func (b *Bridge) load(ctx context.Context) []models.StoredMessage {
	var resp GetResponse
	err := b.http.GetJSON(ctx, "/api/history?groupId="+url.QueryEscape(b.groupID), &resp)
	if err == nil && resp.Success {
		logger.Info("history_hydrated", "group", b.groupID, "source", "remote", "messages", len(resp.Messages))
		return resp.Messages
	}
	if err != nil {
		logger.Warn("history_remote_unavailable", "group", b.groupID, "error", err)
	}

	if b.local != nil {
		msgs, mtime, lerr := b.local.Load(b.groupID)
		if lerr != nil {
			logger.Warn("history_cache_unreadable", "group", b.groupID, "error", lerr)
		} else if len(msgs) > 0 && time.Since(mtime) < StaleAfter {
			logger.Info("history_hydrated", "group", b.groupID, "source", "cache", "messages", len(msgs))
			return msgs
		}
	}
	return nil
}

// MirrorLocal writes the transcript to the local cache only. Cheap
// enough to call on every visible change; the remote push waits for
// Sync at cycle end.
func (b *Bridge) MirrorLocal(msgs []models.Message) {
	if b.local == nil {
		return
	}
	if err := b.local.Save(b.groupID, models.Project(msgs)); err != nil {
		logger.Warn("history_cache_write_failed", "group", b.groupID, "error", err)
	}
}

// Sync persists the current transcript: local cache synchronously, the
// server push fire-and-forget. A bridge that never hydrated refuses to
// push.
func (b *Bridge) Sync(msgs []models.Message) {
	b.mu.Lock()
	ok := b.hydrated
	b.mu.Unlock()
	if !ok {
		logger.Warn("history_sync_skipped", "group", b.groupID, "reason", "not_hydrated")
		return
	}

	stored := models.Project(msgs)
	if b.local != nil {
		if err := b.local.Save(b.groupID, stored); err != nil {
			logger.Warn("history_cache_write_failed", "group", b.groupID, "error", err)
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var resp struct {
			Success bool `json:"success"`
		}
		if err := b.http.PostJSON(ctx, "/api/history", SaveRequest{GroupID: b.groupID, Messages: stored}, &resp); err != nil {
			logger.Warn("history_push_failed", "group", b.groupID, "error", err)
			return
		}
		logger.Debug("history_pushed", "group", b.groupID, "messages", len(stored))
	}()
}

// Clear wipes the transcript everywhere.
func (b *Bridge) Clear(ctx context.Context) error {
	if b.local != nil {
		if err := b.local.Clear(b.groupID); err != nil {
			logger.Warn("history_cache_clear_failed", "group", b.groupID, "error", err)
		}
	}
	var resp struct {
		Success bool `json:"success"`
	}
	return b.http.Delete(ctx, "/api/history?groupId="+url.QueryEscape(b.groupID), &resp)
}
