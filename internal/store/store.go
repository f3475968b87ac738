// Package store persists received task rounds and their published results.
package store

import (
	"context"
	"errors"

	"pages-deployer/internal/models"
)

// ErrNotFound is returned when no submission exists for a task round.
var ErrNotFound = errors.New("submission not found")

// Store is the relational record of every task round and publish.
type Store interface {
	SaveTaskRecord(ctx context.Context, rec *models.TaskRecord) error
	SaveSubmission(ctx context.Context, sub *models.RepoSubmission) error
	LatestSubmission(ctx context.Context, task string, round int) (*models.RepoSubmission, error)
}
