package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
storage:
  backend: pebble
  path: /tmp/db
chat:
  user_name: 小明
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Chat.UserName != "小明" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("GROUPCHAT_PORT", "7070")
	t.Setenv("GROUPCHAT_STORAGE_BACKEND", "redis")
	t.Setenv("GROUPCHAT_CORS_ORIGINS", "http://a.example, http://b.example")
	LoadEnvOverrides(cfg)
	if cfg.Server.Port != 7070 {
		t.Fatalf("env port override lost: %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "redis" {
		t.Fatalf("env backend override lost: %s", cfg.Storage.Backend)
	}
	if len(cfg.Security.CORS.AllowedOrigins) != 2 || cfg.Security.CORS.AllowedOrigins[1] != "http://b.example" {
		t.Fatalf("cors origins wrong: %v", cfg.Security.CORS.AllowedOrigins)
	}
}

func TestAddr(t *testing.T) {
	c := Default()
	c.Server.Addr = "127.0.0.1"
	c.Server.Port = 8081
	if got := c.Addr(); got != "127.0.0.1:8081" {
		t.Fatalf("addr = %q", got)
	}
	c.Server.Addr = "::1"
	if got := c.Addr(); got != "[::1]:8081" {
		t.Fatalf("ipv6 addr = %q", got)
	}
}

func TestRosterValidate(t *testing.T) {
	r := DefaultRoster()
	if err := r.Validate(); err != nil {
		t.Fatalf("default roster invalid: %v", err)
	}

	r.Groups[0].Members = append(r.Groups[0].Members, "ghost")
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for unknown member")
	}
}

func TestRosterLookups(t *testing.T) {
	r := DefaultRoster()
	if _, ok := r.Persona("ai1"); !ok {
		t.Fatal("ai1 missing")
	}
	if _, ok := r.PersonaByName("八戒"); !ok {
		t.Fatal("八戒 missing")
	}
	g, ok := r.Group("default")
	if !ok {
		t.Fatal("default group missing")
	}
	members := r.Members(g)
	if len(members) != 3 || members[0].ID != "ai1" {
		t.Fatalf("members wrong: %+v", members)
	}
}
