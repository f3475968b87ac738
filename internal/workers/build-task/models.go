// internal/workers/build-task/models.go
package buildtask

import "pages-deployer/internal/models"

// Input is the job variables, shaped like the HTTP request body.
type Input struct {
	models.BuildRequest
}

type Output struct {
	BuildID   string   `json:"buildId"`
	RepoURL   string   `json:"repo_url"`
	CommitSHA string   `json:"commit_sha"`
	PagesURL  string   `json:"pages_url"`
	Outcome   string   `json:"outcome"`
	Warnings  []string `json:"warnings,omitempty"`
	Duplicate bool     `json:"duplicate"`
	Notified  bool     `json:"notified"`
}
