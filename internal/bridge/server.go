package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"go.aimuz.me/dawn/config"
	"go.aimuz.me/dawn/hotkey"
	"go.aimuz.me/dawn/internal/app"
	"go.aimuz.me/dawn/internal/types"
	"go.aimuz.me/dawn/models"
	"go.aimuz.me/dawn/serverpool"
)

const (
	maxBody         = 1 << 20
	defaultHistory  = 50
	shutdownTimeout = 3 * time.Second
)

// Service is the session service as seen by the bridge.
type Service interface {
	Status(ctx context.Context) (app.Status, error)
	Settings(ctx context.Context) (*config.Config, error)
	UpdateSettings(ctx context.Context, fn func(c *config.Config)) (*config.Config, error)
	Rebind(ctx context.Context, mode hotkey.Mode, display string) (hotkey.Binding, error)
	SwitchModel(ctx context.Context, modelID string) error
	ListModels() []models.Info
	DownloadModel(ctx context.Context, modelID string) error
	DeleteModel(modelID string) error
	History(n int) ([]types.Transcription, error)
}

// Server serves the HTTP API and the event websocket.
type Server struct {
	svc  Service
	hub  *Hub
	save func(*config.Config) error
	mux  *http.ServeMux

	// downloads outlive the request that started them
	bg     context.Context
	cancel context.CancelFunc
}

// NewServer creates a Server. Settings changes are persisted with
// config.Config.Save.
func NewServer(svc Service, hub *Hub) *Server {
	bg, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:    svc,
		hub:    hub,
		save:   (*config.Config).Save,
		mux:    http.NewServeMux(),
		bg:     bg,
		cancel: cancel,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /ws", s.hub)

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("PUT /api/hotkeys/{mode}", s.handleRebind)

	s.mux.HandleFunc("POST /api/phrases", s.handleAddPhrase)
	s.mux.HandleFunc("PUT /api/phrases/{id}", s.handleUpdatePhrase)
	s.mux.HandleFunc("DELETE /api/phrases/{id}", s.handleRemovePhrase)

	s.mux.HandleFunc("GET /api/models", s.handleListModels)
	s.mux.HandleFunc("POST /api/models/current", s.handleSwitchModel)
	s.mux.HandleFunc("POST /api/models/{id}/download", s.handleDownload)
	s.mux.HandleFunc("DELETE /api/models/{id}", s.handleDeleteModel)

	s.mux.HandleFunc("GET /api/history", s.handleHistory)
}

// ServeHTTP implements http.Handler. Requests that change state must carry
// a JSON content type, which browsers cannot send cross-origin without a
// preflight.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		if r.ContentLength != 0 || r.Header.Get("Content-Type") != "" {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				writeError(w, http.StatusUnsupportedMediaType, errors.New("content type must be application/json"))
				return
			}
		} else if r.Header.Get("Origin") != "" && !localOrigin(r) {
			writeError(w, http.StatusForbidden, errors.New("origin not allowed"))
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("bridge listening", "addr", addr)

	select {
	case err := <-errc:
		s.cancel()
		return fmt.Errorf("serve bridge: %w", err)
	case <-ctx.Done():
	}

	s.cancel()
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown bridge: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Status & settings
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutSettings merges the JSON body onto the current settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	var decodeErr error
	cfg, err := s.svc.UpdateSettings(r.Context(), func(c *config.Config) {
		next := c.Clone()
		if decodeErr = json.Unmarshal(body, next); decodeErr == nil {
			*c = *next
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if decodeErr != nil {
		writeError(w, http.StatusBadRequest, decodeErr)
		return
	}
	s.persist(w, cfg, http.StatusOK, cfg)
}

type rebindRequest struct {
	Display string `json:"display"`
}

type rebindResponse struct {
	Binding hotkey.Binding `json:"binding"`
	Warning string         `json:"warning,omitempty"`
}

func (s *Server) handleRebind(w http.ResponseWriter, r *http.Request) {
	mode, err := hotkey.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var req rebindRequest
	if !decode(w, r, &req) {
		return
	}

	b, err := s.svc.Rebind(r.Context(), mode, req.Display)
	resp := rebindResponse{Binding: b}
	var perr *hotkey.BindingParseError
	switch {
	case errors.As(err, &perr):
		resp.Warning = perr.Error()
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	cfg, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.persist(w, cfg, http.StatusOK, resp)
}

// ─────────────────────────────────────────────────────────────────────────────
// Phrase replacements
// ─────────────────────────────────────────────────────────────────────────────

type phraseRequest struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

func (s *Server) handleAddPhrase(w http.ResponseWriter, r *http.Request) {
	var req phraseRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		pair   types.PhrasePair
		addErr error
	)
	cfg, err := s.svc.UpdateSettings(r.Context(), func(c *config.Config) {
		pair, addErr = c.AddPhrase(req.Original, req.Replacement)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if addErr != nil {
		writeError(w, http.StatusBadRequest, addErr)
		return
	}
	s.persist(w, cfg, http.StatusCreated, pair)
}

func (s *Server) handleUpdatePhrase(w http.ResponseWriter, r *http.Request) {
	var req phraseRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	var opErr error
	cfg, err := s.svc.UpdateSettings(r.Context(), func(c *config.Config) {
		opErr = c.UpdatePhrase(id, types.PhrasePair{Original: req.Original, Replacement: req.Replacement})
	})
	s.finishPhrase(w, cfg, err, opErr)
}

func (s *Server) handleRemovePhrase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var opErr error
	cfg, err := s.svc.UpdateSettings(r.Context(), func(c *config.Config) {
		opErr = c.RemovePhrase(id)
	})
	s.finishPhrase(w, cfg, err, opErr)
}

func (s *Server) finishPhrase(w http.ResponseWriter, cfg *config.Config, err, opErr error) {
	switch {
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(opErr, config.ErrPhraseNotFound):
		writeError(w, http.StatusNotFound, opErr)
	case opErr != nil:
		writeError(w, http.StatusBadRequest, opErr)
	default:
		s.persist(w, cfg, http.StatusOK, cfg.PhraseReplacements)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Models
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListModels())
}

type switchRequest struct {
	ModelID string `json:"modelId"`
}

func (s *Server) handleSwitchModel(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := models.ValidateID(req.ModelID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.SwitchModel(r.Context(), req.ModelID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	cfg, err := s.svc.Settings(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.persist(w, cfg, http.StatusOK, map[string]string{"modelId": req.ModelID})
}

// handleDownload starts a download and returns immediately. Progress and
// failures arrive as websocket events.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := models.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	go func() {
		if err := s.svc.DownloadModel(s.bg, id); err != nil {
			slog.Error("download model", "model", id, "error", err)
			return
		}
		slog.Info("model downloaded", "model", id)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"modelId": id})
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := models.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.DeleteModel(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := defaultHistory
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		n = parsed
	}
	items, err := s.svc.History(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []types.Transcription{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) persist(w http.ResponseWriter, cfg *config.Config, status int, v any) {
	if err := s.save(cfg); err != nil {
		slog.Error("save config", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, status, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, serverpool.ErrModelNotInstalled), errors.Is(err, models.ErrNotInstalled):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBundled), errors.Is(err, models.ErrDownloadInProgress), errors.Is(err, app.ErrModelInUse):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
