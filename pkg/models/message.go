package models

// Sender identifies who produced a message: the human user or a persona.
// PersonaID is empty for the human user.
type Sender struct {
	PersonaID string `json:"personaId,omitempty"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
}

// HumanSender builds a Sender record for the local user.
func HumanSender(name, avatar string) Sender {
	return Sender{Name: name, Avatar: avatar}
}

// PersonaSender builds a Sender record for an AI persona.
func PersonaSender(p Persona) Sender {
	return Sender{PersonaID: p.ID, Name: p.Name, Avatar: p.Avatar}
}

// Message is one entry of a group's authoritative message list. Content of
// an AI message grows in place while its reply streams in.
type Message struct {
	ID        int    `json:"id"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	IsAI      bool   `json:"isAI"`
	IsError   bool   `json:"isError,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// StoredMessage is the simplified projection persisted to the server-side
// history store and the local cache.
type StoredMessage struct {
	ID         int    `json:"id"`
	SenderName string `json:"senderName"`
	IsAI       bool   `json:"isAI"`
	Content    string `json:"content"`
}

// Project reduces a message list to its stored projection.
func Project(msgs []Message) []StoredMessage {
	out := make([]StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, StoredMessage{ID: m.ID, SenderName: m.Sender.Name, IsAI: m.IsAI, Content: m.Content})
	}
	return out
}
