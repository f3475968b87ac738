package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/models"
)

// Schema creates both tables. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS task_records (
	id              BIGSERIAL PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	build_id        TEXT NOT NULL,
	identity        TEXT NOT NULL,
	email           TEXT NOT NULL,
	task            TEXT NOT NULL,
	round           INTEGER NOT NULL,
	nonce           TEXT NOT NULL,
	brief           TEXT NOT NULL,
	attachments     JSONB,
	checks          JSONB,
	evaluation_url  TEXT NOT NULL,
	secret_hash     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS repo_submissions (
	id          BIGSERIAL PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	build_id    TEXT NOT NULL,
	identity    TEXT NOT NULL,
	email       TEXT NOT NULL,
	task        TEXT NOT NULL,
	round       INTEGER NOT NULL,
	nonce       TEXT NOT NULL,
	repo_url    TEXT NOT NULL,
	commit_sha  TEXT NOT NULL,
	pages_url   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repo_submissions_task_round ON repo_submissions (task, round, created_at DESC);
`

// PostgresStore writes through database/sql with the lib/pq driver.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
		now:    time.Now,
	}
}

// Init applies Schema.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return apperrors.NewQueryExecutionFailedError("init", err)
	}
	return nil
}

func (s *PostgresStore) SaveTaskRecord(ctx context.Context, rec *models.TaskRecord) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO task_records (
			created_at, build_id, identity, email, task, round, nonce,
			brief, attachments, checks, evaluation_url, secret_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		s.now().UTC(),
		rec.BuildID,
		rec.Identity,
		rec.Email,
		rec.Task,
		rec.Round,
		rec.Nonce,
		rec.Brief,
		nullJSON(rec.AttachmentsJSON),
		nullJSON(rec.ChecksJSON),
		rec.EvaluationURL,
		rec.SecretHash,
	).Scan(&rec.ID)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(fmt.Errorf("task_records: %w", err))
	}
	return nil
}

func (s *PostgresStore) SaveSubmission(ctx context.Context, sub *models.RepoSubmission) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO repo_submissions (
			created_at, build_id, identity, email, task, round, nonce,
			repo_url, commit_sha, pages_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		s.now().UTC(),
		sub.BuildID,
		sub.Identity,
		sub.Email,
		sub.Task,
		sub.Round,
		sub.Nonce,
		sub.RepoURL,
		sub.CommitSHA,
		sub.PagesURL,
	).Scan(&sub.ID)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(fmt.Errorf("repo_submissions: %w", err))
	}

	s.logger.Info("submission stored", map[string]interface{}{
		"id":        sub.ID,
		"identity":  sub.Identity,
		"round":     sub.Round,
		"commitSha": sub.CommitSHA,
	})
	return nil
}

// LatestSubmission returns the newest submission for task and round, or ErrNotFound.
func (s *PostgresStore) LatestSubmission(ctx context.Context, task string, round int) (*models.RepoSubmission, error) {
	var sub models.RepoSubmission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, build_id, identity, email, task, round, nonce,
		       repo_url, commit_sha, pages_url
		FROM repo_submissions
		WHERE task = $1 AND round = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, task, round).Scan(
		&sub.ID,
		&sub.CreatedAt,
		&sub.BuildID,
		&sub.Identity,
		&sub.Email,
		&sub.Task,
		&sub.Round,
		&sub.Nonce,
		&sub.RepoURL,
		&sub.CommitSHA,
		&sub.PagesURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("latest_submission", err)
	}
	return &sub, nil
}

func nullJSON(raw string) interface{} {
	if raw == "" {
		return nil
	}
	return []byte(raw)
}
