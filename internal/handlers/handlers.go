package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"task-tracker/internal/auth"
	"task-tracker/internal/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Context key type to avoid collisions.
type contextKey string

// identityContextKey is the context key for the verified caller identity.
const identityContextKey contextKey = "identity"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db   *storage.DB
	auth *auth.Authenticator
	log  *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, authn *auth.Authenticator, log *zap.Logger) *Handlers {
	return &Handlers{db: db, auth: authn, log: log}
}

// Routes builds the API router. Auth endpoints are public; everything
// under /api/tasks and the profile route require a bearer token.
func (h *Handlers) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.Handle("/api/auth/profile", h.AuthMiddleware(http.HandlerFunc(h.Profile))).Methods(http.MethodGet)

	tasks := r.PathPrefix("/api/tasks").Subrouter()
	tasks.Use(h.AuthMiddleware)
	tasks.HandleFunc("", h.ListTasks).Methods(http.MethodGet)
	tasks.HandleFunc("", h.CreateTask).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}", h.GetTask).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}", h.UpdateTask).Methods(http.MethodPut)
	tasks.HandleFunc("/{id}", h.DeleteTask).Methods(http.MethodDelete)
	tasks.HandleFunc("/{id}/toggle", h.ToggleTask).Methods(http.MethodPatch)

	return r
}

// IdentityFromContext retrieves the verified identity from request context.
func IdentityFromContext(r *http.Request) (auth.Identity, bool) {
	id, ok := r.Context().Value(identityContextKey).(auth.Identity)
	return id, ok
}

// AuthMiddleware requires a valid bearer token and injects the embedded
// identity into the request context. Expired tokens get 401, anything
// structurally wrong or badly signed gets 403.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			h.fail(w, http.StatusUnauthorized, "Authorization token missing or malformed.")
			return
		}

		identity, err := h.auth.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				h.fail(w, http.StatusUnauthorized, "Token has expired.")
				return
			}
			h.fail(w, http.StatusForbidden, "Invalid token.")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORSMiddleware allows cross-origin requests from the given origins.
// Requests without an Origin header (curl, server-to-server) pass through.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o != "" {
			allowed[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Health is a trivial liveness route.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "API is running"})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, "All fields are required.")
		return
	}

	user, err := h.auth.Register(req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			h.fail(w, http.StatusConflict, "Email is already registered.")
			return
		}
		h.internalError(w, "register", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User registered successfully.",
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.fail(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	user, token, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.fail(w, http.StatusUnauthorized, "Invalid credentials.")
			return
		}
		h.internalError(w, "login", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful.",
		"user":    user,
		"token":   token,
	})
}

// Profile handles GET /api/auth/profile. The token is trusted for
// identity, but the profile itself is re-read from the store, so a
// deleted account yields 404 here.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r)
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Authorization token missing or malformed.")
		return
	}

	user, err := h.db.GetUserByID(identity.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(w, http.StatusNotFound, "User not found.")
			return
		}
		h.internalError(w, "profile", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encoding response", zap.Error(err))
	}
}

func (h *Handlers) fail(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// internalError logs the real failure server-side and sends the client a
// generic 500. Storage errors never reach the response body.
func (h *Handlers) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error("handler error", zap.String("op", op), zap.Error(err))
	h.fail(w, http.StatusInternalServerError, "Internal server error.")
}
