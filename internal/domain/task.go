package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a solving task
type TaskStatus string

// Possible task status values
const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusReady      TaskStatus = "ready"
	TaskStatusError      TaskStatus = "error"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptySiteKey       = errors.New("site key cannot be empty")
	ErrEmptyPageURL       = errors.New("page URL cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrTerminalTransition = errors.New("task already reached a terminal status")
	ErrEmptyToken         = errors.New("token cannot be empty for a ready task")
	ErrEmptyErrorMessage  = errors.New("error message cannot be empty for a failed task")
)

// Task represents one queued request to obtain a solved challenge token
// for a given site key and page URL. It tracks the request parameters,
// the current lifecycle status, and the outcome of the solve.
//
// Transitions are one-directional: a task is created in processing and
// moves exactly once to ready or error. Ready tasks carry a token and a
// solve time; failed tasks carry an error message.
type Task struct {
	ID        uuid.UUID  `json:"id"`
	SiteKey   string     `json:"site_key"`
	PageURL   string     `json:"page_url"`
	Proxy     *Proxy     `json:"proxy,omitempty"`
	Status    TaskStatus `json:"status"`
	Token     string     `json:"token,omitempty"`
	SolveTime float64    `json:"solve_time,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewTask creates a new Task with the given site key, page URL, and optional
// proxy. It generates a new UUID for the task ID, sets the status to
// processing, and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewTask(siteKey, pageURL string, proxy *Proxy) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		SiteKey:   siteKey,
		PageURL:   pageURL,
		Proxy:     proxy,
		Status:    TaskStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.SiteKey == "" {
		return ErrEmptySiteKey
	}

	if t.PageURL == "" {
		return ErrEmptyPageURL
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	return nil
}

// MarkReady transitions the task to the ready status, recording the solved
// token and the elapsed solve time in seconds. It refreshes UpdatedAt.
// Returns ErrTerminalTransition if the task already left processing.
func (t *Task) MarkReady(token string, solveTime float64) error {
	if t.IsTerminal() {
		return ErrTerminalTransition
	}

	if token == "" {
		return ErrEmptyToken
	}

	t.Status = TaskStatusReady
	t.Token = token
	t.SolveTime = solveTime
	t.Error = ""
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkError transitions the task to the error status with a human-readable
// failure reason. It refreshes UpdatedAt.
// Returns ErrTerminalTransition if the task already left processing.
func (t *Task) MarkError(message string) error {
	if t.IsTerminal() {
		return ErrTerminalTransition
	}

	if message == "" {
		return ErrEmptyErrorMessage
	}

	t.Status = TaskStatusError
	t.Error = message
	t.Token = ""
	t.SolveTime = 0
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether the task reached a status from which no
// further transition occurs.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusReady || t.Status == TaskStatusError
}

// ProxyClass returns the proxy-class label used for statistics
// segmentation: the proxy's class when a proxy is attached, or
// "no_proxy" otherwise.
func (t *Task) ProxyClass() string {
	if t.Proxy == nil {
		return ProxyClassNone
	}
	return t.Proxy.Class
}

// isValidTaskStatus checks if the provided status is a valid TaskStatus
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusProcessing, TaskStatusReady, TaskStatusError:
		return true
	default:
		return false
	}
}
