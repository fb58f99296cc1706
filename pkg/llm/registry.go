// Package llm talks to OpenAI-compatible chat endpoints.
package llm

import (
	"fmt"
	"os"

	"groupchat/pkg/config"
)

// ErrUnsupportedModel is returned when a requested model is not registered.
var ErrUnsupportedModel = fmt.Errorf("llm: unsupported model")

// ErrMissingAPIKey is returned when the registered key env var is unset.
var ErrMissingAPIKey = fmt.Errorf("llm: missing api key")

// Registry maps logical model names onto endpoints and key env vars.
type Registry struct {
	entries map[string]config.ModelEntry
}

// NewRegistry builds a registry from config entries layered over the
// built-in defaults.
func NewRegistry(entries map[string]config.ModelEntry) *Registry {
	r := &Registry{entries: map[string]config.ModelEntry{}}
	for name, e := range defaultEntries() {
		r.entries[name] = e
	}
	for name, e := range entries {
		r.entries[name] = e
	}
	return r
}

func defaultEntries() map[string]config.ModelEntry {
	return map[string]config.ModelEntry{
		"qwen-plus": {
			Model:     "qwen-plus",
			BaseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
			APIKeyEnv: "DASHSCOPE_API_KEY",
		},
		"qwen-turbo": {
			Model:     "qwen-turbo",
			BaseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
			APIKeyEnv: "DASHSCOPE_API_KEY",
		},
		"deepseek-chat": {
			Model:     "deepseek-chat",
			BaseURL:   "https://api.deepseek.com/v1",
			APIKeyEnv: "DEEPSEEK_API_KEY",
		},
		"text-embedding-v3": {
			Model:     "text-embedding-v3",
			BaseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
			APIKeyEnv: "DASHSCOPE_API_KEY",
		},
	}
}

// Resolve returns the endpoint entry and API key for a logical model name.
func (r *Registry) Resolve(name string) (config.ModelEntry, string, error) {
	e, ok := r.entries[name]
	if !ok {
		return config.ModelEntry{}, "", fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}
	key := os.Getenv(e.APIKeyEnv)
	if key == "" {
		return e, "", fmt.Errorf("%w: env %s is empty", ErrMissingAPIKey, e.APIKeyEnv)
	}
	return e, key, nil
}

// Known reports whether a model name is registered, without touching keys.
func (r *Registry) Known(name string) bool {
	_, ok := r.entries[name]
	return ok
}
