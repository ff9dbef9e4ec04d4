package httpserver

import (
	"net/http"
	"time"

	"simrelease/internal/platform/config"
)

// New builds the API server from cfg. A zero WriteTimeout leaves responses
// unbounded.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
