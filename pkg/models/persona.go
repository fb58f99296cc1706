package models

// Persona describes one AI character that can take part in a group chat.
type Persona struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Model        string `json:"model" yaml:"model"`
	Personality  string `json:"personality" yaml:"personality"`
	CustomPrompt string `json:"customPrompt,omitempty" yaml:"custom_prompt,omitempty"`
	Avatar       string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	UseRAG       bool   `json:"useRAG,omitempty" yaml:"use_rag,omitempty"`
	Knowledge    string `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
}

// Group is a named roster of personas plus the human user.
type Group struct {
	ID                    string   `json:"id" yaml:"id"`
	Name                  string   `json:"name" yaml:"name"`
	Description           string   `json:"description,omitempty" yaml:"description,omitempty"`
	Members               []string `json:"members" yaml:"members"` // persona IDs, roster order
	IsGroupDiscussionMode bool     `json:"isGroupDiscussionMode" yaml:"group_discussion_mode"`
}

// SchedulerTag marks the personality of the hidden persona that picks
// speakers; it never joins a roster as a speaking member.
const SchedulerTag = "scheduler"
