// Package taskapi exposes the conversion task queue over HTTP: submit a
// PDF (by URL, inline base64, or multipart upload), poll status, list
// history. The API only enqueues; workers do the conversion.
package taskapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/markmuse/markmuse/taskq"
)

// maxUploadBytes caps multipart uploads; large PDFs should be fetched by
// URL instead of pushed through the API.
const maxUploadBytes = 100 << 20

// API serves the task endpoints.
type API struct {
	queue  *taskq.Q
	logger *slog.Logger
}

// New creates the API around a queue.
func New(queue *taskq.Q, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{queue: queue, logger: logger}
}

// Router builds the chi router with standard middleware.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/submit", a.handleSubmit)
		r.Post("/upload", a.handleUpload)
		r.Get("/", a.handleList)
		r.Get("/{id}", a.handleGet)
	})
	r.Get("/health", a.handleHealth)
	return r
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	payload := taskq.ConvertPayload{
		URL:        req.URL,
		FileBase64: req.FileBase64,
		Filename:   req.Filename,
		Enhance:    req.Enhance,
		Parallel:   req.Parallel,
	}
	a.enqueue(w, r, payload)
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	// Sniff the real content type; the client's Content-Type header and
	// the filename extension are both advisory.
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Errorf("expected a PDF, got %s", mt.String()))
		return
	}

	filename := r.FormValue("filename")
	if filename == "" {
		filename = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}

	payload := taskq.ConvertPayload{
		FileBase64: base64.StdEncoding.EncodeToString(data),
		Filename:   filename,
		Enhance:    r.FormValue("enhance") == "true",
	}
	a.enqueue(w, r, payload)
}

func (a *API) enqueue(w http.ResponseWriter, r *http.Request, payload taskq.ConvertPayload) {
	encoded, err := taskq.EncodeConvertPayload(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := a.queue.Enqueue(r.Context(), taskq.KindConvertPDF, encoded)
	if err != nil {
		a.logger.Error("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("enqueue failed"))
		return
	}

	a.logger.Info("task submitted", "task_id", id,
		"request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id, Status: taskq.StatusPending})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := a.queue.Get(r.Context(), id)
	if err != nil {
		a.logger.Error("task lookup failed", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("lookup failed"))
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("task %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(task))
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	tasks, err := a.queue.List(r.Context(), limit, offset)
	if err != nil {
		a.logger.Error("task list failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list failed"))
		return
	}
	total, err := a.queue.Count(r.Context())
	if err != nil {
		a.logger.Error("task count failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list failed"))
		return
	}

	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = viewOf(t)
	}
	writeJSON(w, http.StatusOK, ListResponse{Tasks: views, Total: total, Limit: limit, Offset: offset})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := a.queue.Count(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("queue unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func viewOf(t *taskq.Task) TaskView {
	return TaskView{
		TaskID:      t.ID,
		Kind:        t.Kind,
		Status:      t.Status,
		Progress:    t.Progress,
		ProgressMsg: t.ProgressMsg,
		Result:      t.Result,
		Error:       t.Error,
		Attempts:    t.Attempts,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
