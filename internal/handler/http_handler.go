package handler

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/studiolink/studiolink/internal/diag"
	"github.com/studiolink/studiolink/internal/domain"
	"github.com/studiolink/studiolink/internal/service"
	pkglog "github.com/studiolink/studiolink/pkg/log"
)

// HTTPHandler serves the HTTP control surface: publish, health, stats,
// and the diagnostic log backlog.
type HTTPHandler struct {
	service service.CoordinatorService
	backlog *diag.Backlog
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc service.CoordinatorService, backlog *diag.Backlog) *HTTPHandler {
	return &HTTPHandler{
		service: svc,
		backlog: backlog,
	}
}

// RegisterRoutes registers the HTTP routes.
func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/publish", h.handlePublish).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/debug/logs", h.handleLogs).Methods(http.MethodGet)
}

func (h *HTTPHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req domain.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Payload) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload is required"})
		return
	}

	notified, err := h.service.HandlePublish(r.Context(), req.Target, req.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	l := pkglog.Ctx(r.Context())
	l.Info().
		Str(pkglog.FieldTarget, req.Target).
		Int(pkglog.FieldDelivered, notified).
		Msg("event published via http")

	writeJSON(w, http.StatusOK, &domain.PublishResponse{
		Success:         true,
		ClientsNotified: notified,
	})
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Stats(r.Context()))
}

func (h *HTTPHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := h.backlog.Lines()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lines": lines,
		"count": len(lines),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
