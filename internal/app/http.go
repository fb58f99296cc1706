package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"groupchat/pkg/logger"
	"groupchat/pkg/store"
	"groupchat/pkg/utils"
)

// serveHTTP runs the listener until ctx is cancelled. Write timeouts are
// left unset so reply streams can run long.
func (a *App) serveHTTP(ctx context.Context, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.JSONWrite(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !store.Ready() {
			utils.JSONError(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		utils.JSONWrite(w, map[string]string{"status": "ready"}, http.StatusOK)
	})
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", "addr", srv.Addr)
		var err error
		if a.cfg.Server.TLS.CertFile != "" && a.cfg.Server.TLS.KeyFile != "" {
			err = srv.ListenAndServeTLS(a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("http_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
		return err
	}
	return nil
}
