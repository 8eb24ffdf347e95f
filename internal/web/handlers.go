package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/engine"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config  *config.Config
	manager *engine.Manager
	saver   *engine.Autosaver
	hub     *EventHub
	log     *zap.Logger
}

func NewHandlers(cfg *config.Config, manager *engine.Manager, saver *engine.Autosaver, hub *EventHub, log *zap.Logger) *Handlers {
	return &Handlers{
		config:  cfg,
		manager: manager,
		saver:   saver,
		hub:     hub,
		log:     log,
	}
}

func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(h.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/adventure", func(r chi.Router) {
			r.Post("/start", h.StartAdventure)
			r.Post("/action", h.SubmitAction)
			r.Post("/pause", h.PauseAdventure)
			r.Post("/resume", h.ResumeAdventure)
			r.Post("/delete", h.DeleteAdventure)
			r.Get("/status", h.GetStatus)
			r.Get("/list", h.ListAdventures)
			r.Get("/detail", h.GetDetail)
			r.Get("/events", h.EventStream)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/purge", h.Purge)
		})
	})

	return r
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "maoxian",
		"clients": h.hub.ClientCount(),
	}
	if h.saver != nil {
		body["autosave"] = h.saver.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

type startRequest struct {
	OwnerID string `json:"owner_id"`
	Theme   string `json:"theme,omitempty"`
}

func (h *Handlers) StartAdventure(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	rec, err := h.manager.Start(r.Context(), req.OwnerID, req.Theme)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"adventure": rec,
		"narrative": rec.Transcript[len(rec.Transcript)-1].Content,
	})
}

type actionRequest struct {
	OwnerID string `json:"owner_id"`
	Action  string `json:"action"`
}

func (h *Handlers) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	res, err := h.manager.SubmitAction(r.Context(), req.OwnerID, req.Action)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if res.NoOp {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"no_op": true,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"narrative":         res.Narrative,
		"completed":         res.Completed,
		"completion_reason": res.Reason,
		"turn_count":        res.Record.TurnCount,
		"lifecycle_state":   res.Record.State,
	})
}

type ownerRequest struct {
	OwnerID     string `json:"owner_id"`
	AdventureID string `json:"adventure_id,omitempty"`
}

func (h *Handlers) PauseAdventure(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	rec, err := h.manager.Pause(r.Context(), req.OwnerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"adventure": rec})
}

func (h *Handlers) ResumeAdventure(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	rec, err := h.manager.Resume(r.Context(), req.OwnerID, req.AdventureID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"adventure": rec})
}

func (h *Handlers) DeleteAdventure(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	deleted, err := h.manager.Delete(r.Context(), req.OwnerID, req.AdventureID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	snap, err := h.manager.Status(r.Context(), ownerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner_id":             snap.OwnerID,
		"current_adventure_id": snap.CurrentAdventureID,
		"adventure_count":      snap.AdventureCount,
		"active":               snap.Active,
		"idle_seconds":         int(snap.IdleFor.Seconds()),
	})
}

func (h *Handlers) ListAdventures(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.manager.List(r.Context(), ownerID, page, pageSize)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":     result.Items,
		"page":      result.Page,
		"page_size": result.PageSize,
		"total":     result.Total,
	})
}

func (h *Handlers) GetDetail(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "owner_id is required")
		return
	}

	rec, err := h.manager.Detail(r.Context(), ownerID, r.URL.Query().Get("adventure_id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"adventure": rec})
}

func (h *Handlers) Purge(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	summary, err := h.manager.Purge(r.Context(), req.OwnerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owners_purged":     summary.Owners,
		"adventures_purged": summary.Adventures,
	})
}

// EventStream upgrades the connection and subscribes it to lifecycle events.
func (h *Handlers) EventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:   generateClientID(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}

	h.hub.register <- client

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"id":   client.ID,
		"time": time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	go client.readPump()
}

// writeEngineError maps the engine's error taxonomy to HTTP responses. Each
// kind carries a stable machine-readable code so clients can branch on it.
func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNoActiveSession):
		writeError(w, http.StatusConflict, "no_active_session", "no adventure is currently active; start or resume one first")
	case errors.Is(err, engine.ErrNoResumableAdventure):
		writeError(w, http.StatusNotFound, "no_resumable_adventure", "no paused adventure is available to resume")
	case errors.Is(err, engine.ErrAdventureNotFound):
		writeError(w, http.StatusNotFound, "adventure_not_found", "the requested adventure does not exist")
	case errors.Is(err, engine.ErrSessionTimedOut):
		writeError(w, http.StatusConflict, "session_timed_out", "the session was idle too long and has been paused; resume to continue")
	case errors.Is(err, engine.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "no text provider is configured")
	case errors.Is(err, engine.ErrProviderFailure):
		writeError(w, http.StatusBadGateway, "provider_failure", "the story provider failed; the adventure was paused, resume to retry")
	case errors.Is(err, engine.ErrStorageFailure):
		writeError(w, http.StatusInternalServerError, "storage_failure", "failed to persist adventure state")
	default:
		h.log.Error("unhandled engine error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": code,
		"msg":   message,
	})
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
