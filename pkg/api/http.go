// Package api assembles the HTTP surface of the chat server.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"groupchat/pkg/api/handlers"
	"groupchat/pkg/logger"
	"groupchat/pkg/security"
	"groupchat/pkg/telemetry"
)

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the full route tree: API endpoints behind the edge
// middleware, plus metrics and docs.
func NewRouter(deps handlers.Deps) http.Handler {
	h := handlers.New(deps)

	r := mux.NewRouter()
	h.RegisterChat(r)
	h.RegisterScheduler(r)
	h.RegisterHistory(r)
	h.RegisterKnowledge(r)
	h.RegisterRoster(r)

	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(http.StripPrefix("/docs/", http.FileServer(http.Dir("docs"))))
	r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/docs/openapi.yaml"),
	))

	sec := security.SecConfig{
		AllowedOrigins: deps.Config.Security.CORS.AllowedOrigins,
		RPS:            deps.Config.Security.RateLimit.RPS,
		Burst:          deps.Config.Security.RateLimit.Burst,
		IPWhitelist:    deps.Config.Security.IPWhitelist,
	}
	return telemetry.Middleware(security.Middleware(sec, logRequests(r)))
}
