package drive

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

type Handler struct {
	files         Files
	ingestService *IngestService
	inbox         string
	now           func() time.Time
}

func NewHandler(files Files, ingestService *IngestService) *Handler {
	return &Handler{
		files:         files,
		ingestService: ingestService,
		now:           time.Now,
	}
}

// WithInbox sets the folder ingested when no path is given
func (h *Handler) WithInbox(path string) *Handler {
	h.inbox = path
	return h
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods(http.MethodGet)
	router.HandleFunc("/api/drive/ingest/verification", h.ingest(SheetVerification)).Methods(http.MethodPost)
	router.HandleFunc("/api/drive/ingest/losses", h.ingest(SheetLosses)).Methods(http.MethodPost)
	router.HandleFunc("/api/drive/ingest/observations", h.ingest(SheetObservations)).Methods(http.MethodPost)
	router.HandleFunc("/api/drive/ingest/folder", h.IngestFolder).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("drive: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")

	if folderPath := query.Get("path"); folderPath != "" {
		var err error
		folderID, err = h.files.FindFolderByPath(r.Context(), folderPath)
		if errors.Is(err, ErrFolderNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	files, err := h.files.ListFiles(r.Context(), folderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []*File{}
	}
	writeJSON(w, http.StatusOK, files)
}

// ingestDate parses the optional date parameter, defaulting to today
func (h *Handler) ingestDate(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		now := h.now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, raw)
}

func (h *Handler) ingest(kind SheetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID := r.URL.Query().Get("fileId")
		if fileID == "" {
			writeError(w, http.StatusBadRequest, "fileId parameter is required")
			return
		}
		date, err := h.ingestDate(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}

		report, err := h.ingestService.IngestFile(r.Context(), fileID, kind, date)
		if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrMalformedSheet) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "ingestion failed: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (h *Handler) IngestFolder(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = h.inbox
	}
	if path == "" {
		writeError(w, http.StatusBadRequest, "path parameter is required")
		return
	}
	date, err := h.ingestDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	reports, err := h.ingestService.IngestFolder(r.Context(), path, date)
	if errors.Is(err, ErrFolderNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
