package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults for this service. The write timeout
// is generous: decision endpoints hold the request open while several Solana
// RPC round trips complete.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
