package driver

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewServer wraps handler in an http.Server. Request contexts derive from a
// base context that is cancelled when Shutdown starts, so long-lived streams
// such as /api/playback/events return instead of holding Shutdown open.
func NewServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
