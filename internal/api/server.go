package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/menta2k/camera-capture/internal/logger"
	"github.com/menta2k/camera-capture/pkg/capture"
	"github.com/menta2k/camera-capture/pkg/output"
	"github.com/menta2k/camera-capture/pkg/types"
)

// Server represents the HTTP control API for a capture session
type Server struct {
	router    *mux.Router
	session   *capture.Session
	events    *EventBroadcaster
	defaults  types.CaptureRequest
	mediaWait time.Duration
	upgrader  websocket.Upgrader
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMediaWait bounds how long a camera roll capture waits for the media
// index before responding without a mediaUri. Zero disables the wait.
func WithMediaWait(d time.Duration) ServerOption {
	return func(s *Server) { s.mediaWait = d }
}

// NewServer creates a new API server. defaults fills the capture request
// fields a client leaves out; events may be nil, which disables the
// websocket stream.
func NewServer(session *capture.Session, events *EventBroadcaster, defaults types.CaptureRequest, opts ...ServerOption) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		session:   session,
		events:    events,
		defaults:  defaults,
		mediaWait: 5 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/capture", s.handleCapture).Methods("POST")

	api.HandleFunc("/camera/state", s.handleState).Methods("GET")
	api.HandleFunc("/camera/facing", s.handleSetFacing).Methods("PUT")
	api.HandleFunc("/camera/flash", s.handleSetFlash).Methods("PUT")
	api.HandleFunc("/camera/torch", s.handleSetTorch).Methods("PUT")
	api.HandleFunc("/camera/quality", s.handleSetQuality).Methods("PUT")
	api.HandleFunc("/camera/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/camera/resume", s.handleResume).Methods("POST")

	api.HandleFunc("/sizes", s.handleSizes).Methods("GET")
	api.HandleFunc("/constants", s.handleConstants).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves the API on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithComponent("api").Info().Str("addr", srv.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.WithComponent("api").Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusFor maps a capture error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoDevice), errors.Is(err, types.ErrInvalidState):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithComponent("api").Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	req := s.defaults
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: %v", types.ErrInvalidArgument, err))
		return
	}

	desc, err := s.session.Capture(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := *desc
	if resp.Media != nil && resp.MediaURI == "" {
		resp.MediaURI = s.awaitMediaURI(r.Context(), &resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// awaitMediaURI waits for the media index to answer, bounded by the request
// and the configured media wait
func (s *Server) awaitMediaURI(ctx context.Context, desc *output.Descriptor) string {
	if uri, ok := desc.Media.URI(); ok || s.mediaWait <= 0 {
		return uri
	}
	ctx, cancel := context.WithTimeout(ctx, s.mediaWait)
	defer cancel()
	uri, err := desc.Media.Wait(ctx)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Str("path", desc.Path).Msg("media URI not available")
		return ""
	}
	return uri
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

// valueRequest is the body of the camera setting endpoints
type valueRequest struct {
	Value string `json:"value"`
}

// handleSetting decodes a setting, applies it and reports whether it took
// effect immediately or was queued until the camera opens
func (s *Server) handleSetting(w http.ResponseWriter, r *http.Request, apply func(string) (<-chan struct{}, error)) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", types.ErrInvalidArgument, err))
		return
	}

	done, err := apply(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	select {
	case <-done:
		status = http.StatusOK
	default:
	}
	writeJSON(w, status, s.session.State())
}

func (s *Server) handleSetFacing(w http.ResponseWriter, r *http.Request) {
	s.handleSetting(w, r, func(value string) (<-chan struct{}, error) {
		facing, err := types.ParseFacing(value)
		if err != nil {
			return nil, err
		}
		return s.session.SetFacing(facing)
	})
}

func (s *Server) handleSetFlash(w http.ResponseWriter, r *http.Request) {
	s.handleSetting(w, r, func(value string) (<-chan struct{}, error) {
		mode, err := types.ParseFlashMode(value)
		if err != nil {
			return nil, err
		}
		return s.session.SetFlashMode(mode)
	})
}

func (s *Server) handleSetTorch(w http.ResponseWriter, r *http.Request) {
	s.handleSetting(w, r, func(value string) (<-chan struct{}, error) {
		mode, err := types.ParseTorchMode(value)
		if err != nil {
			return nil, err
		}
		return s.session.SetTorchMode(mode)
	})
}

func (s *Server) handleSetQuality(w http.ResponseWriter, r *http.Request) {
	s.handleSetting(w, r, func(value string) (<-chan struct{}, error) {
		tier, err := types.ParseQualityTier(value)
		if err != nil {
			return nil, err
		}
		return s.session.SetCaptureQuality(tier)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Pause(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Resume(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.session.State())
}

func (s *Server) handleSizes(w http.ResponseWriter, r *http.Request) {
	sizes, err := s.session.SupportedSizes()
	if err != nil {
		writeError(w, err)
		return
	}
	names := make([]string, len(sizes))
	for i, size := range sizes {
		names[i] = size.String()
	}
	writeJSON(w, http.StatusOK, names)
}

// Constants is the table of enum names and their wire values
type Constants struct {
	Type           map[string]types.Facing        `json:"Type"`
	FlashMode      map[string]types.FlashMode     `json:"FlashMode"`
	TorchMode      map[string]types.TorchMode     `json:"TorchMode"`
	CaptureTarget  map[string]types.CaptureTarget `json:"CaptureTarget"`
	CaptureMode    map[string]types.CaptureMode   `json:"CaptureMode"`
	CaptureQuality map[string]types.QualityTier   `json:"CaptureQuality"`
}

// ExportConstants returns the enum tables clients use to build requests
func ExportConstants() Constants {
	c := Constants{
		Type: map[string]types.Facing{
			"front": types.FacingFront,
			"back":  types.FacingBack,
		},
		FlashMode: map[string]types.FlashMode{
			"off":  types.FlashModeOff,
			"on":   types.FlashModeOn,
			"auto": types.FlashModeAuto,
		},
		TorchMode: map[string]types.TorchMode{
			"off":  types.TorchModeOff,
			"on":   types.TorchModeOn,
			"auto": types.TorchModeAuto,
		},
		CaptureTarget: map[string]types.CaptureTarget{
			"memory":     types.TargetMemory,
			"disk":       types.TargetDisk,
			"cameraRoll": types.TargetCameraRoll,
			"temp":       types.TargetTemp,
		},
		CaptureMode: map[string]types.CaptureMode{
			"still": types.ModeStill,
			"video": types.ModeVideo,
		},
		CaptureQuality: make(map[string]types.QualityTier),
	}
	for _, tier := range types.QualityTiers() {
		c.CaptureQuality[string(tier)] = tier
	}
	return c
}

func (s *Server) handleConstants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ExportConstants())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}

	log := logger.WithComponent("api")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsub := s.events.Subscribe()
	defer unsub()

	// drain client frames so a disconnect ends the stream
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.session.State()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"camera": snap.Camera,
	})
}
