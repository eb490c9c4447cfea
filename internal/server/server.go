// Package server exposes the monitor controller over HTTP and streams live
// beat and status events over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/chaz8081/notabot/internal/ble"
	"github.com/chaz8081/notabot/internal/monitor"
	"github.com/chaz8081/notabot/internal/rate"
)

// Controller is the part of monitor.Controller the server drives.
type Controller interface {
	Status() monitor.Status
	Scan(ctx context.Context) ([]ble.Device, error)
	Devices() []ble.Device
	SelectIndex(i int) error
	SelectPeripheral(ref ble.PeripheralRef) error
	Connect(ctx context.Context) error
	Start() error
	Stop()
	Toggle() error
	Disconnect()
	History() []rate.Sample
}

// SelectRequest is the body of POST /select. Index wins when both are set.
type SelectRequest struct {
	Index   *int   `json:"index,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type endpoint struct {
	path    string
	method  string
	handler http.HandlerFunc
}

// Server serves the REST API and the /ws event stream.
type Server struct {
	ctl Controller
	hub *Hub
	ctx context.Context

	router *mux.Router
	srv    *http.Server

	mu            sync.Mutex
	cancelConnect context.CancelFunc // non-nil while a connect is pending
	connectSeq    uint64
}

// New builds the router. Background work such as connecting runs under ctx.
func New(ctx context.Context, ctl Controller, hub *Hub) *Server {
	s := &Server{ctl: ctl, hub: hub, ctx: ctx, router: mux.NewRouter()}

	endpoints := []endpoint{
		{"/status", http.MethodGet, s.handleStatus},
		{"/devices", http.MethodGet, s.handleDevices},
		{"/scan", http.MethodPost, s.handleScan},
		{"/select", http.MethodPost, s.handleSelect},
		{"/connect", http.MethodPost, s.handleConnect},
		{"/disconnect", http.MethodPost, s.handleDisconnect},
		{"/start", http.MethodPost, s.handleStart},
		{"/stop", http.MethodPost, s.handleStop},
		{"/toggle", http.MethodPost, s.handleToggle},
		{"/history", http.MethodGet, s.handleHistory},
	}
	for _, e := range endpoints {
		s.router.HandleFunc(e.path, e.handler).Methods(e.method)
	}
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Use(loggingMiddleware)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	slog.Info("[HTTP] listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown stops the listener and any pending connect.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	if s.cancelConnect != nil {
		s.cancelConnect()
		s.cancelConnect = nil
	}
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("[HTTP] request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("[HTTP] encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrNoSuchDevice):
		status = http.StatusNotFound
	case errors.Is(err, monitor.ErrNotConnected),
		errors.Is(err, monitor.ErrDemoMode),
		errors.Is(err, ble.ErrCharacteristicNotFound):
		status = http.StatusConflict
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Devices())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	devices, err := s.ctl.Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	var err error
	switch {
	case req.Index != nil:
		err = s.ctl.SelectIndex(*req.Index)
	case req.Address != "":
		err = s.ctl.SelectPeripheral(ble.PeripheralRef{Name: req.Name, Address: req.Address})
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "index or address required"})
		return
	}
	if err != nil {
		// The registry refuses a new selection while a connection is up.
		status := http.StatusConflict
		if errors.Is(err, monitor.ErrNoSuchDevice) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

// handleConnect starts connecting in the background; progress is visible on
// /status and /ws. A request made while a connect is still pending leaves it
// running.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.cancelConnect != nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusAccepted, s.ctl.Status())
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelConnect = cancel
	s.connectSeq++
	seq := s.connectSeq
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			if s.connectSeq == seq {
				s.cancelConnect = nil
			}
			s.mu.Unlock()
		}()
		if err := s.ctl.Connect(ctx); err != nil {
			slog.Warn("[HTTP] connect ended", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, s.ctl.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.cancelConnect != nil {
		s.cancelConnect()
		s.cancelConnect = nil
	}
	s.mu.Unlock()
	s.ctl.Disconnect()
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Start(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.Stop()
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Toggle(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.History())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[HTTP] websocket upgrade failed", "error", err)
		return
	}
	// Greet with the current status before the hub starts writing.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Event{Type: EventStatus, Payload: s.ctl.Status(), At: time.Now()}); err != nil {
		conn.Close()
		return
	}
	s.hub.Add(conn)

	// Reads only detect the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Remove(conn)
			return
		}
	}
}
