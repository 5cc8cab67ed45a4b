package taskapi

import "time"

// SubmitRequest is the JSON body of POST /tasks/submit.
type SubmitRequest struct {
	URL        string `json:"url,omitempty"`
	FileBase64 string `json:"file_base64,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Enhance    bool   `json:"enhance,omitempty"`
	Parallel   int    `json:"parallel,omitempty"`
}

// SubmitResponse acknowledges an accepted task.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskView is the API representation of a task's state.
type TaskView struct {
	TaskID      string    `json:"task_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	ProgressMsg string    `json:"progress_msg,omitempty"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListResponse is a page of tasks.
type ListResponse struct {
	Tasks  []TaskView `json:"tasks"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type errorResponse struct {
	Error string `json:"error"`
}
