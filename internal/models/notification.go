// internal/models/notification.go
package models

// NotificationPayload is the body posted to the evaluation callback. It has the same
// shape for both rounds.
type NotificationPayload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// NewNotificationPayload combines the request with the published repository.
func NewNotificationPayload(req *BuildRequest, repo *PublishedRepo) NotificationPayload {
	return NotificationPayload{
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   repo.RepoURL,
		CommitSHA: repo.CommitSHA,
		PagesURL:  repo.PagesURL,
	}
}
