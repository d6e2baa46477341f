package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/service"
	"github.com/vibeacademy/vidarr/internal/storage"
)

// uploadMemoryLimit is the in-memory buffer for multipart parsing; anything
// beyond spills to disk.
const uploadMemoryLimit = 32 << 20

// UploadHandler receives raw recordings into project artifact directories.
// Uploads stream straight through the multipart reader into an atomic
// sandbox write; they are registered on the chi router directly because
// Huma's request model buffers bodies.
type UploadHandler struct {
	projects *service.ProjectService
	store    *storage.ProjectStore
	logger   *slog.Logger
	maxBytes int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(projects *service.ProjectService, store *storage.ProjectStore, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{projects: projects, store: store, logger: logger}
}

// WithMaxSize caps the request body size. Zero means unlimited.
func (h *UploadHandler) WithMaxSize(maxBytes int64) *UploadHandler {
	h.maxBytes = maxBytes
	return h
}

// Register registers the upload routes.
func (h *UploadHandler) Register(router chi.Router) {
	router.Post("/api/v1/projects/{id}/upload/{kind}", h.Upload)
	router.Post("/api/v1/projects/{id}/upload-complete", h.Complete)
}

// Upload writes one raw input file. kind selects the target:
// "screen" and "webcam" keep the client's container extension under the
// raw_* prefix (the convert stage normalizes and deletes them); "combined"
// is the canvas-mode recording and lands as combined.webm.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	kind := chi.URLParam(r, "kind")

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		http.Error(w, "parsing multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `multipart field "file" is required`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	target, err := targetName(kind, header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sandbox, err := h.store.Project(project.FolderName)
	if err != nil {
		http.Error(w, "opening artifact directory", http.StatusInternalServerError)
		return
	}

	if project.Status == models.ProjectStatusCreated {
		if err := h.projects.BeginUpload(r.Context(), project.ID); err != nil {
			h.logger.Warn("marking upload start", "project", project.Name, "error", err)
		}
	}

	if err := sandbox.AtomicWriteReader(target, file); err != nil {
		http.Error(w, "writing upload: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("raw input uploaded",
		"project", project.Name,
		"kind", kind,
		"file", target,
		"size", header.Size,
	)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"file":%q}`, target)
}

// Complete marks the raw inputs finished. The frontend follows up with the
// start operation.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	if err := h.projects.FinishUpload(r.Context(), project.ID); err != nil {
		http.Error(w, "finishing upload: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"converting"}`)
}

func (h *UploadHandler) loadProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid project ID", http.StatusBadRequest)
		return nil, false
	}
	project, err := h.projects.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrProjectNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
		} else {
			http.Error(w, "loading project", http.StatusInternalServerError)
		}
		return nil, false
	}
	return project, true
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// targetName maps an upload kind and client filename to the artifact name.
func targetName(kind, filename string) (string, error) {
	switch kind {
	case "screen", "webcam":
		ext := strings.ToLower(filepath.Ext(filename))
		if !extPattern.MatchString(ext) {
			ext = ".webm"
		}
		if kind == "screen" {
			return storage.RawScreenPrefix + ext, nil
		}
		return storage.RawWebcamPrefix + ext, nil
	case "combined":
		return storage.FileCombined, nil
	default:
		return "", fmt.Errorf("unknown upload kind %q: want screen, webcam, or combined", kind)
	}
}
