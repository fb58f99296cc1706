package models

// HistoryLimit caps the rolling conversation context sent upstream.
const HistoryLimit = 10

// ChatEntry is one turn of the rolling history in the upstream wire shape.
type ChatEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// CapHistory returns the most recent HistoryLimit entries of h. The
// returned slice aliases h; callers append to a fresh copy when they
// need to grow it.
func CapHistory(h []ChatEntry) []ChatEntry {
	if len(h) > HistoryLimit {
		return h[len(h)-HistoryLimit:]
	}
	return h
}
