package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CallbackPath is the loopback path the login flow hands to the provider as
// its redirect target.
const CallbackPath = "/auth/callback"

// CallbackServer catches the provider redirect on a loopback port during the
// login flow. It does not interpret the redirect; it hands the full URL back
// to the caller so the same extraction cascade handles it that handles
// browser-side redirects.
type CallbackServer struct {
	server     *http.Server
	port       int
	resultChan chan string
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// NewCallbackServer creates a new callback server on the given port.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:       port,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start starts the callback server.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	if !s.isPortAvailable() {
		return fmt.Errorf("port %d is already in use", s.port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.running = true

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errorChan <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop gracefully stops the callback server.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil

	return err
}

// WaitForRedirect waits for the provider redirect and returns its full URL.
func (s *CallbackServer) WaitForRedirect(timeout time.Duration) (string, error) {
	select {
	case raw := <-s.resultChan:
		return raw, nil
	case err := <-s.errorChan:
		return "", err
	case <-time.After(timeout):
		return "", fmt.Errorf("timeout waiting for login redirect")
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendResult("http://" + r.Host + r.URL.RequestURI())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Sign-in received</h1><p>You can close this window and return to the terminal.</p></body></html>")
}

func (s *CallbackServer) sendResult(raw string) {
	select {
	case s.resultChan <- raw:
	default:
		log.Warn("login redirect channel is full, redirect dropped")
	}
}

func (s *CallbackServer) isPortAvailable() bool {
	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
