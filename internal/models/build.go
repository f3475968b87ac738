// internal/models/build.go
package models

// BuildRequest is the inbound task description for both intake paths.
type BuildRequest struct {
	Email         string       `json:"email"`
	Secret        string       `json:"secret"`
	Task          string       `json:"task"`
	Round         int          `json:"round"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// IsUpdate reports whether the request revises an existing deliverable.
func (r *BuildRequest) IsUpdate() bool { return r.Round == 2 }

// Attachment carries an inline data URI.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PublishedRepo describes one successful publish. Immutable once produced.
type PublishedRepo struct {
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// Rounds
const (
	RoundCreate = 1
	RoundUpdate = 2
)
