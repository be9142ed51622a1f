package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vocdoni/ballotbox/api"
	"github.com/vocdoni/ballotbox/election"
	"github.com/vocdoni/ballotbox/log"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	ctrl   *election.Controller
	API    *api.API
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	host   string
	port   int
}

// NewAPI creates a new APIService instance.
func NewAPI(ctrl *election.Controller, host string, port int, disableLogging bool) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API logging is disabled")
	}
	return &APIService{
		ctrl: ctrl,
		host: host,
		port: port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start. The server is shut down when
// ctx is canceled or Stop is called.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	a, err := api.New(&api.APIConfig{
		Host:       as.host,
		Port:       as.port,
		Controller: as.ctrl,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.API = a
	if tcp, ok := a.Addr().(*net.TCPAddr); ok {
		as.port = tcp.Port
	}

	ctx, as.cancel = context.WithCancel(ctx)
	as.done = make(chan struct{})
	go func(host string, port int, done chan struct{}) {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to shut down API server", "error", err.Error())
			return
		}
		log.Infow("API server stopped", "host", host, "port", port)
	}(as.host, as.port, as.done)
	return nil
}

// Stop halts the API server and waits until the in-flight requests are
// served, or the shutdown timeout expires.
func (as *APIService) Stop() {
	as.mu.Lock()
	cancel, done := as.cancel, as.done
	as.cancel, as.done = nil, nil
	as.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// HostPort returns the host and port of the API server. Once started, the
// port is the one actually bound.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.host, as.port
}
