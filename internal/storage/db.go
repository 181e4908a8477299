package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"task-tracker/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or is owned by a
// different user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateEmail is returned when an insert hits the unique email
// constraint. The constraint is the actual duplicate guarantee; the
// application-level pre-check only exists for a friendlier message.
var ErrDuplicateEmail = errors.New("storage: email already registered")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Probe pings the database up to attempts times, sleeping delay between
// failures. It gates process startup only; request paths never retry.
func (db *DB) Probe(attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.conn.Ping(); err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateUser inserts a new user with an already-hashed password.
func (db *DB) CreateUser(name, email, passwordHash string) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (name, email, password_hash) VALUES (?, ?, ?)",
		name, email, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.User{ID: id, Name: name, Email: email}, nil
}

// GetUserByEmail retrieves a user by email, including the password hash.
// Only the authenticator should call this.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash FROM users WHERE email = ? LIMIT 1",
		email,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID without the password hash.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email FROM users WHERE id = ? LIMIT 1",
		id,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateTask inserts a new task for a user. Timestamps and the completed
// default are set by the schema.
func (db *DB) CreateTask(userID int64, title, description string) (*models.Task, error) {
	result, err := db.conn.Exec(
		"INSERT INTO tasks (user_id, title, description) VALUES (?, ?, ?)",
		userID, title, description,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetTask(id, userID)
}

// GetTask retrieves a single task, filtered by owner. A task belonging to
// another user yields ErrNotFound, same as a missing row.
func (db *DB) GetTask(taskID, userID int64) (*models.Task, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, title, description, completed, created_at, updated_at
		 FROM tasks WHERE id = ? AND user_id = ? LIMIT 1`,
		taskID, userID,
	)

	var t models.Task
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListTasksByUser retrieves all tasks for a user, newest first.
func (db *DB) ListTasksByUser(userID int64) ([]models.Task, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, title, description, completed, created_at, updated_at
		 FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// UpdateTask replaces title, description and completed on an owned task
// and refreshes updated_at. All three fields must be supplied; callers
// merge with the existing row if only some changed.
func (db *DB) UpdateTask(taskID, userID int64, title, description string, completed bool) (*models.Task, error) {
	result, err := db.conn.Exec(
		`UPDATE tasks SET title = ?, description = ?, completed = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		title, description, completed, taskID, userID,
	)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return db.GetTask(taskID, userID)
}

// DeleteTask removes an owned task. It reports whether a row was removed.
func (db *DB) DeleteTask(taskID, userID int64) (bool, error) {
	result, err := db.conn.Exec(
		"DELETE FROM tasks WHERE id = ? AND user_id = ?",
		taskID, userID,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountTasks returns the total number of tasks owned by a user.
func (db *DB) CountTasks(userID int64) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE user_id = ?",
		userID,
	).Scan(&count)
	return count, err
}

// CountCompletedTasks returns the number of completed tasks owned by a user.
func (db *DB) CountCompletedTasks(userID int64) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE user_id = ? AND completed = TRUE",
		userID,
	).Scan(&count)
	return count, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
