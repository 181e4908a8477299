package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"task-tracker/internal/auth"
	"task-tracker/internal/models"
	"task-tracker/internal/storage"

	"github.com/gorilla/mux"
)

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// CreateTask handles POST /api/tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Authorization token missing or malformed.")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if req.Title == nil || *req.Title == "" {
		h.fail(w, http.StatusBadRequest, "Title is required.")
		return
	}

	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	task, err := h.db.CreateTask(identity.UserID, *req.Title, description)
	if err != nil {
		h.internalError(w, "create task", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Task created successfully.",
		"task":    task,
	})
}

// ListTasks handles GET /api/tasks. Stats are recomputed from the rows on
// every call; nothing incremental is kept server-side.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Authorization token missing or malformed.")
		return
	}

	tasks, err := h.db.ListTasksByUser(identity.UserID)
	if err != nil {
		h.internalError(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	total, err := h.db.CountTasks(identity.UserID)
	if err != nil {
		h.internalError(w, "count tasks", err)
		return
	}
	completed, err := h.db.CountCompletedTasks(identity.UserID)
	if err != nil {
		h.internalError(w, "count completed tasks", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tasks":   tasks,
		"stats": models.Stats{
			Total:     total,
			Completed: completed,
			Pending:   total - completed,
		},
	})
}

// GetTask handles GET /api/tasks/{id}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	_, task, ok := h.lookupTask(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"task":    task,
	})
}

// UpdateTask handles PUT /api/tasks/{id}. Fields omitted from the body
// keep their current values; the storage layer always writes all three.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, existing, ok := h.lookupTask(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	title := existing.Title
	if req.Title != nil {
		title = *req.Title
	}
	description := existing.Description
	if req.Description != nil {
		description = *req.Description
	}
	completed := existing.Completed
	if req.Completed != nil {
		completed = *req.Completed
	}

	task, err := h.db.UpdateTask(existing.ID, identity.UserID, title, description, completed)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(w, http.StatusNotFound, "Task not found.")
			return
		}
		h.internalError(w, "update task", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Task updated successfully.",
		"task":    task,
	})
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, existing, ok := h.lookupTask(w, r)
	if !ok {
		return
	}

	deleted, err := h.db.DeleteTask(existing.ID, identity.UserID)
	if err != nil {
		h.internalError(w, "delete task", err)
		return
	}
	if !deleted {
		h.fail(w, http.StatusNotFound, "Task not found.")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Task deleted successfully.",
	})
}

// ToggleTask handles PATCH /api/tasks/{id}/toggle. The flip is a read
// followed by a full update, not an atomic storage primitive, so a
// concurrent update between the two statements can be overwritten.
func (h *Handlers) ToggleTask(w http.ResponseWriter, r *http.Request) {
	identity, existing, ok := h.lookupTask(w, r)
	if !ok {
		return
	}

	task, err := h.db.UpdateTask(existing.ID, identity.UserID, existing.Title, existing.Description, !existing.Completed)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(w, http.StatusNotFound, "Task not found.")
			return
		}
		h.internalError(w, "toggle task", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Task toggled successfully.",
		"task":    task,
	})
}

// lookupTask resolves the path id into an owned task. Non-numeric ids,
// missing rows and rows owned by someone else all answer 404; the caller
// can't tell which it was.
func (h *Handlers) lookupTask(w http.ResponseWriter, r *http.Request) (auth.Identity, *models.Task, bool) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Authorization token missing or malformed.")
		return auth.Identity{}, nil, false
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.fail(w, http.StatusNotFound, "Task not found.")
		return auth.Identity{}, nil, false
	}

	task, err := h.db.GetTask(id, identity.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(w, http.StatusNotFound, "Task not found.")
			return auth.Identity{}, nil, false
		}
		h.internalError(w, "get task", err)
		return auth.Identity{}, nil, false
	}

	return identity, task, true
}
