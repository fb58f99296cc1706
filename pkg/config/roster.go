package config

import (
	"fmt"
	"os"

	"groupchat/pkg/models"
	"gopkg.in/yaml.v3"
)

// Roster is the set of personas and groups the server chats with. It is
// normally loaded from a YAML file next to the config; without one the
// built-in cast is used.
type Roster struct {
	Personas []models.Persona `yaml:"personas"`
	Groups   []models.Group   `yaml:"groups"`
}

// LoadRoster reads a roster file, or returns the built-in roster when
// path is empty.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return DefaultRoster(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Roster
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that every group member references a known persona and
// ids are unique.
func (r *Roster) Validate() error {
	seen := make(map[string]bool, len(r.Personas))
	for _, p := range r.Personas {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("persona missing id or name: %+v", p)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate persona id %q", p.ID)
		}
		seen[p.ID] = true
	}
	for _, g := range r.Groups {
		if g.ID == "" {
			return fmt.Errorf("group missing id: %+v", g)
		}
		for _, m := range g.Members {
			if !seen[m] {
				return fmt.Errorf("group %q references unknown persona %q", g.ID, m)
			}
		}
	}
	return nil
}

// Persona looks a persona up by id.
func (r *Roster) Persona(id string) (models.Persona, bool) {
	for _, p := range r.Personas {
		if p.ID == id {
			return p, true
		}
	}
	return models.Persona{}, false
}

// PersonaByName looks a persona up by display name.
func (r *Roster) PersonaByName(name string) (models.Persona, bool) {
	for _, p := range r.Personas {
		if p.Name == name {
			return p, true
		}
	}
	return models.Persona{}, false
}

// Group looks a group up by id.
func (r *Roster) Group(id string) (models.Group, bool) {
	for _, g := range r.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return models.Group{}, false
}

// Members resolves a group's member ids to personas, keeping roster
// order. Scheduler personas never speak, so they are filtered out even
// when a roster file lists one as a member.
func (r *Roster) Members(g models.Group) []models.Persona {
	out := make([]models.Persona, 0, len(g.Members))
	for _, id := range g.Members {
		if p, ok := r.Persona(id); ok && p.Personality != models.SchedulerTag {
			out = append(out, p)
		}
	}
	return out
}

// DefaultRoster is the built-in cast used when no roster file is given.
func DefaultRoster() *Roster {
	return &Roster{
		Personas: []models.Persona{
			{
				ID:          "ai1",
				Name:        "悟空",
				Model:       "qwen-plus",
				Personality: "聪明、勇敢、直率，说话简短有力",
				Avatar:      "🐵",
			},
			{
				ID:          "ai2",
				Name:        "八戒",
				Model:       "qwen-plus",
				Personality: "幽默、贪吃、乐观，喜欢开玩笑",
				Avatar:      "🐷",
			},
			{
				ID:          "ai3",
				Name:        "沙僧",
				Model:       "qwen-plus",
				Personality: "沉稳、可靠、话不多，回答务实",
				Avatar:      "🧑‍🦲",
			},
		},
		Groups: []models.Group{
			{
				ID:                    "default",
				Name:                  "取经群",
				Description:           "默认群聊",
				Members:               []string{"ai1", "ai2", "ai3"},
				IsGroupDiscussionMode: false,
			},
		},
	}
}
