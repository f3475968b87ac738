// internal/models/task.go
package models

import "time"

// TaskRecord is written once per received task round.
type TaskRecord struct {
	ID              int64     `json:"id"`
	CreatedAt       time.Time `json:"createdAt"`
	BuildID         string    `json:"buildId"`
	Identity        string    `json:"identity"`
	Email           string    `json:"email"`
	Task            string    `json:"task"`
	Round           int       `json:"round"`
	Nonce           string    `json:"nonce"`
	Brief           string    `json:"brief"`
	AttachmentsJSON string    `json:"attachmentsJson,omitempty"`
	ChecksJSON      string    `json:"checksJson,omitempty"`
	EvaluationURL   string    `json:"evaluationUrl"`
	SecretHash      string    `json:"-"`
}

// RepoSubmission is written once per successful publish.
type RepoSubmission struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	BuildID   string    `json:"buildId"`
	Identity  string    `json:"identity"`
	Email     string    `json:"email"`
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	Nonce     string    `json:"nonce"`
	RepoURL   string    `json:"repo_url"`
	CommitSHA string    `json:"commit_sha"`
	PagesURL  string    `json:"pages_url"`
}

// TaskStatus answers the task status endpoint.
type TaskStatus struct {
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Status    string `json:"status"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

const StatusCompleted = "completed"

// StatusFromSubmission maps a stored submission to its public status.
func StatusFromSubmission(s *RepoSubmission) TaskStatus {
	return TaskStatus{
		Task:      s.Task,
		Round:     s.Round,
		Status:    StatusCompleted,
		RepoURL:   s.RepoURL,
		CommitSHA: s.CommitSHA,
		PagesURL:  s.PagesURL,
	}
}
