package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"groupchat/internal/app"
	"groupchat/pkg/config"
	"groupchat/pkg/logger"
	"groupchat/pkg/shutdown"
)

func main() {
	// optional; real deployments set env directly
	_ = godotenv.Load()

	flags := config.ParseCommandFlags()

	cfg := config.Default()
	if path := config.ResolveConfigPath(flags.ConfigPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		merge(cfg, loaded)
	}
	config.LoadEnvOverrides(cfg)
	config.ApplyFlags(cfg, flags)

	logger.InitWithLevel(cfg.Logging.Level)

	roster, err := config.LoadRoster(os.Getenv("GROUPCHAT_ROSTER"))
	if err != nil {
		logger.Error("roster_load_failed", "error", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, roster)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx := shutdown.SetupSignalHandler()
	if err := a.Run(ctx); err != nil {
		logger.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

// merge overlays non-zero fields of the loaded file onto the defaults.
func merge(dst, src *config.Config) {
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.TLS.CertFile != "" {
		dst.Server.TLS = src.Server.TLS
	}
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Path != "" {
		dst.Storage.Path = src.Storage.Path
	}
	if src.Storage.Redis.Addr != "" {
		dst.Storage.Redis = src.Storage.Redis
	}
	if src.Models != nil {
		dst.Models = src.Models
	}
	if src.Scheduler.Model != "" {
		dst.Scheduler.Model = src.Scheduler.Model
	}
	if src.Knowledge.Backend != "" {
		dst.Knowledge = src.Knowledge
	}
	if src.Chat.UserName != "" {
		dst.Chat.UserName = src.Chat.UserName
	}
	if src.Chat.TurnDelayMS != 0 {
		dst.Chat.TurnDelayMS = src.Chat.TurnDelayMS
	}
	if src.Chat.ReadTimeoutMS != 0 {
		dst.Chat.ReadTimeoutMS = src.Chat.ReadTimeoutMS
	}
	if src.Chat.LocalDir != "" {
		dst.Chat.LocalDir = src.Chat.LocalDir
	}
	if len(src.Security.CORS.AllowedOrigins) > 0 {
		dst.Security.CORS = src.Security.CORS
	}
	if src.Security.RateLimit.RPS != 0 {
		dst.Security.RateLimit = src.Security.RateLimit
	}
	if len(src.Security.IPWhitelist) > 0 {
		dst.Security.IPWhitelist = src.Security.IPWhitelist
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Sink != "" {
		dst.Logging.Sink = src.Logging.Sink
	}
}
