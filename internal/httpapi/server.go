package httpapi

import (
	"net/http"
	"time"

	"pooltemp/internal/config"
)

// NewServer wraps handler in request logging. WriteTimeout stays unset since
// GET / blocks for up to the receive timeout.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
