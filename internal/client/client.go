// Package client is a REST client for the task-tracker API. It keeps the
// same session-scoped state the web frontend does: the bearer token
// (persisted to a token file so a new process resumes the session until
// the token expires) and a cached task list with a derived stats triple.
//
// Mutations update the cache in place from the server's returned object
// and recompute the stats locally by scanning the cache. That derivation
// is independent of the one the backend computes on listing; the two only
// coincide for sure right after FetchTasks. The client is not safe for
// concurrent use.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"task-tracker/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client talks to a task-tracker server on behalf of one account.
type Client struct {
	baseURL   string
	http      *http.Client
	tokenPath string

	token string
	user  *models.User
	tasks []models.Task
	stats models.Stats
}

// New creates a Client for the API at baseURL. If tokenPath is non-empty
// and the file exists, the stored token is loaded so the previous session
// resumes; whether it is still valid is only known once the server answers.
func New(baseURL, tokenPath string) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		tokenPath: tokenPath,
	}
	if tokenPath != "" {
		if data, err := os.ReadFile(tokenPath); err == nil {
			c.token = strings.TrimSpace(string(data))
		}
	}
	return c
}

// IsAuthenticated reports whether the client holds a token.
func (c *Client) IsAuthenticated() bool { return c.token != "" }

// User returns the user from the last successful Login or Profile call.
func (c *Client) User() *models.User { return c.user }

// Tasks returns the cached task list.
func (c *Client) Tasks() []models.Task { return c.tasks }

// Stats returns the cached stats triple.
func (c *Client) Stats() models.Stats { return c.stats }

// Register creates a new account. It does not log in.
func (c *Client) Register(name, email, password string) (*models.User, error) {
	env, err := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if err != nil {
		return nil, err
	}
	return env.User, nil
}

// Login authenticates and stores the session token, persisting it to the
// token file when one is configured.
func (c *Client) Login(email, password string) (*models.User, error) {
	env, err := c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
	if err != nil {
		return nil, err
	}

	c.token = env.Token
	c.user = env.User
	if c.tokenPath != "" {
		if err := os.WriteFile(c.tokenPath, []byte(env.Token), 0o600); err != nil {
			return nil, fmt.Errorf("persisting token: %w", err)
		}
	}
	return env.User, nil
}

// Logout discards the session client-side. The token itself stays valid
// until it expires; the server keeps no session record to delete.
func (c *Client) Logout() {
	c.token = ""
	c.user = nil
	c.tasks = nil
	c.stats = models.Stats{}
	if c.tokenPath != "" {
		os.Remove(c.tokenPath)
	}
}

// Profile fetches the current user's profile.
func (c *Client) Profile() (*models.User, error) {
	env, err := c.do(http.MethodGet, "/api/auth/profile", nil)
	if err != nil {
		return nil, err
	}
	c.user = env.User
	return env.User, nil
}

// FetchTasks refetches the full task list and replaces both the cache and
// the stats with the server's derivation.
func (c *Client) FetchTasks() ([]models.Task, models.Stats, error) {
	env, err := c.do(http.MethodGet, "/api/tasks", nil)
	if err != nil {
		return nil, models.Stats{}, err
	}
	c.tasks = env.Tasks
	if env.Stats != nil {
		c.stats = *env.Stats
	}
	return c.tasks, c.stats, nil
}

// CreateTask creates a task and prepends the server's canonical object to
// the cache.
func (c *Client) CreateTask(title, description string) (*models.Task, error) {
	env, err := c.do(http.MethodPost, "/api/tasks", map[string]string{
		"title": title, "description": description,
	})
	if err != nil {
		return nil, err
	}
	c.tasks = append([]models.Task{*env.Task}, c.tasks...)
	c.recomputeStats()
	return env.Task, nil
}

// GetTask fetches a single task without touching the cache.
func (c *Client) GetTask(id int64) (*models.Task, error) {
	env, err := c.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil)
	if err != nil {
		return nil, err
	}
	return env.Task, nil
}

// UpdateTask replaces a task's fields and updates the cached copy.
func (c *Client) UpdateTask(id int64, title, description string, completed bool) (*models.Task, error) {
	env, err := c.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d", id), map[string]any{
		"title": title, "description": description, "completed": completed,
	})
	if err != nil {
		return nil, err
	}
	c.replaceCached(*env.Task)
	return env.Task, nil
}

// DeleteTask deletes a task and drops it from the cache.
func (c *Client) DeleteTask(id int64) error {
	if _, err := c.do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), nil); err != nil {
		return err
	}
	kept := c.tasks[:0]
	for _, t := range c.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	c.tasks = kept
	c.recomputeStats()
	return nil
}

// ToggleTask flips a task's completed flag and updates the cached copy.
func (c *Client) ToggleTask(id int64) (*models.Task, error) {
	env, err := c.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/toggle", id), nil)
	if err != nil {
		return nil, err
	}
	c.replaceCached(*env.Task)
	return env.Task, nil
}

func (c *Client) replaceCached(task models.Task) {
	for i := range c.tasks {
		if c.tasks[i].ID == task.ID {
			c.tasks[i] = task
			break
		}
	}
	c.recomputeStats()
}

// recomputeStats derives the stats triple from the cached list. This is
// the client-side counterpart of the backend's COUNT queries and can
// drift from it until the next FetchTasks.
func (c *Client) recomputeStats() {
	completed := 0
	for _, t := range c.tasks {
		if t.Completed {
			completed++
		}
	}
	c.stats = models.Stats{
		Total:     len(c.tasks),
		Completed: completed,
		Pending:   len(c.tasks) - completed,
	}
}

// envelope is the server's uniform response wrapper.
type envelope struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	User    *models.User  `json:"user"`
	Token   string        `json:"token"`
	Task    *models.Task  `json:"task"`
	Tasks   []models.Task `json:"tasks"`
	Stats   *models.Stats `json:"stats"`
}

func (c *Client) do(method, path string, body any) (*envelope, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}
