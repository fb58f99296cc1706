// Package chat drives a multi-persona group conversation against the
// server's chat endpoints.
package chat

import (
	"sync"

	"groupchat/pkg/models"
)

// Session is the authoritative message list of one group conversation.
// All mutation goes through it; listeners get a fresh snapshot of the
// whole list after every change.
type Session struct {
	mu        sync.Mutex
	messages  []models.Message
	nextID    int
	listeners []func([]models.Message)
}

func NewSession() *Session {
	return &Session{nextID: 1}
}

// OnChange registers a listener. It is invoked synchronously inside the
// session lock, so listeners must be quick and must not call back in.
func (s *Session) OnChange(fn func([]models.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notifyLocked() {
	snap := s.snapshotLocked()
	for _, fn := range s.listeners {
		fn(snap)
	}
}

func (s *Session) snapshotLocked() []models.Message {
	return append([]models.Message(nil), s.messages...)
}

// Messages returns a snapshot of the current list.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Append adds a message and returns its assigned id.
func (s *Session) Append(sender models.Sender, content string, isAI bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.messages = append(s.messages, models.Message{
		ID:      id,
		Sender:  sender,
		Content: content,
		IsAI:    isAI,
	})
	s.notifyLocked()
	return id
}

// SetContent replaces the content of the message with the given id.
func (s *Session) SetContent(id int, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.notifyLocked()
			return
		}
	}
}

// Fail replaces a message's content and flags it as an error.
func (s *Session) Fail(id int, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.messages[i].IsError = true
			s.notifyLocked()
			return
		}
	}
}

// Cancel marks a message as cancelled, keeping whatever content arrived.
func (s *Session) Cancel(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Cancelled = true
			s.notifyLocked()
			return
		}
	}
}

// Replace swaps the entire list, renumbering ids. Used when hydrating
// from stored history.
func (s *Session) Replace(msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]models.Message, len(msgs))
	copy(s.messages, msgs)
	maxID := 0
	for i := range s.messages {
		if s.messages[i].ID == 0 {
			s.messages[i].ID = maxID + 1
		}
		if s.messages[i].ID > maxID {
			maxID = s.messages[i].ID
		}
	}
	s.nextID = maxID + 1
	s.notifyLocked()
}

// Clear drops all messages.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.nextID = 1
	s.notifyLocked()
}
