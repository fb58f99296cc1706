package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
	TLS  struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"tls"`
}

// StorageConfig selects and parameterizes the history store backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "pebble" (default) or "redis"
	Path    string `yaml:"path"`    // pebble data dir
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// SchedulerConfig names the persona used to pick speakers in scheduled
// mode and the model it runs on.
type SchedulerConfig struct {
	Model       string `yaml:"model"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// KnowledgeConfig selects the retrieval backend for RAG-enabled personas.
type KnowledgeConfig struct {
	Backend string `yaml:"backend"` // "store" (default) or "qdrant"
	Qdrant  struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		APIKey     string `yaml:"api_key"`
		Collection string `yaml:"collection"`
		UseTLS     bool   `yaml:"use_tls"`
	} `yaml:"qdrant"`
	EmbedModel string `yaml:"embed_model"`
	TopK       int    `yaml:"top_k"`
}

// ChatConfig tunes orchestration pacing. Zero values fall back to the
// production defaults; tests shrink them.
type ChatConfig struct {
	UserName      string `yaml:"user_name"`
	TurnDelayMS   int    `yaml:"turn_delay_ms"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
	LocalDir      string `yaml:"local_dir"` // local transcript cache dir
}

// SecurityConfig mirrors the middleware knobs.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

// ModelEntry maps a logical model name onto an OpenAI-compatible endpoint.
type ModelEntry struct {
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Config is the root of the YAML config file.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Storage   StorageConfig         `yaml:"storage"`
	Models    map[string]ModelEntry `yaml:"models"`
	Scheduler SchedulerConfig       `yaml:"scheduler"`
	Knowledge KnowledgeConfig       `yaml:"knowledge"`
	Chat      ChatConfig            `yaml:"chat"`
	Security  SecurityConfig        `yaml:"security"`
	Logging   struct {
		Level string `yaml:"level"`
		Sink  string `yaml:"sink"`
	} `yaml:"logging"`
}

// Addr returns the listen address, combining Addr and Port.
func (c *Config) Addr() string {
	host := c.Server.Addr
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}

// LoadEnvOverrides applies GROUPCHAT_* environment variables on top of c.
func LoadEnvOverrides(c *Config) {
	if v := os.Getenv("GROUPCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GROUPCHAT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("GROUPCHAT_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("GROUPCHAT_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("GROUPCHAT_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("GROUPCHAT_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := os.Getenv("GROUPCHAT_USER_NAME"); v != "" {
		c.Chat.UserName = v
	}
	if v := os.Getenv("GROUPCHAT_LOCAL_DIR"); v != "" {
		c.Chat.LocalDir = v
	}
	if v := os.Getenv("GROUPCHAT_SCHEDULER_MODEL"); v != "" {
		c.Scheduler.Model = v
	}
	if v := os.Getenv("GROUPCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GROUPCHAT_LOG_SINK"); v != "" {
		c.Logging.Sink = v
	}
	if v := os.Getenv("GROUPCHAT_CORS_ORIGINS"); v != "" {
		c.Security.CORS.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("GROUPCHAT_IP_WHITELIST"); v != "" {
		c.Security.IPWhitelist = splitList(v)
	}
	if v := os.Getenv("GROUPCHAT_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Security.RateLimit.RPS = f
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CommandFlags carries the parsed CLI flags.
type CommandFlags struct {
	ConfigPath string
	Addr       string
	Port       int
	DBPath     string
}

// ParseCommandFlags parses the process flag set.
func ParseCommandFlags() *CommandFlags {
	f := &CommandFlags{}
	flag.StringVar(&f.ConfigPath, "config", "", "path to YAML config file")
	flag.StringVar(&f.Addr, "addr", "", "listen address")
	flag.IntVar(&f.Port, "port", 0, "listen port")
	flag.StringVar(&f.DBPath, "db", "", "pebble data directory")
	flag.Parse()
	return f
}

// ApplyFlags overlays non-zero flag values onto c. Flags win over both
// the file and the environment.
func ApplyFlags(c *Config, f *CommandFlags) {
	if f.Addr != "" {
		c.Server.Addr = f.Addr
	}
	if f.Port != 0 {
		c.Server.Port = f.Port
	}
	if f.DBPath != "" {
		c.Storage.Path = f.DBPath
	}
}

// ResolveConfigPath picks the config file: flag, then GROUPCHAT_CONFIG,
// then ./config.yaml if present. Empty means run on defaults.
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if v := os.Getenv("GROUPCHAT_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// Default returns a Config with the production defaults filled in.
func Default() *Config {
	c := &Config{}
	c.Server.Addr = "0.0.0.0"
	c.Server.Port = 8080
	c.Storage.Backend = "pebble"
	c.Storage.Path = "./data"
	c.Scheduler.Model = "qwen-plus"
	c.Scheduler.MaxAttempts = 1
	c.Knowledge.Backend = "store"
	c.Knowledge.EmbedModel = "text-embedding-v3"
	c.Knowledge.TopK = 3
	c.Chat.UserName = "我"
	c.Chat.TurnDelayMS = 1000
	c.Chat.ReadTimeoutMS = 10000
	c.Security.RateLimit.RPS = 50
	c.Security.RateLimit.Burst = 100
	c.Logging.Level = "info"
	return c
}
