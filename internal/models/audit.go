// internal/models/audit.go
package models

import "time"

// BuildRun summarises one finished pipeline run for auditing and alerting.
type BuildRun struct {
	BuildID    string    `json:"build_id"`
	Identity   string    `json:"identity"`
	Email      string    `json:"email"`
	Task       string    `json:"task"`
	Round      int       `json:"round"`
	Outcome    string    `json:"outcome"`
	State      string    `json:"state"`
	States     []string  `json:"states"`
	RepoURL    string    `json:"repo_url,omitempty"`
	CommitSHA  string    `json:"commit_sha,omitempty"`
	PagesURL   string    `json:"pages_url,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Duplicate  bool      `json:"duplicate"`
	Notified   bool      `json:"notified"`
	Degraded   bool      `json:"generation_degraded"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}
