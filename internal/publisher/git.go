// internal/publisher/git.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	CommitMessage = "Automated build commit"
	remoteName    = "origin"
)

// Committer snapshots a directory and force-pushes it.
type Committer interface {
	CommitAll(dir, message string) (string, error)
	ForcePush(ctx context.Context, dir, remoteURL, branch string) error
}

// GoGitCommitter drives a local repository with go-git. No git binary is needed.
type GoGitCommitter struct {
	token       string
	authorName  string
	authorEmail string
	now         func() time.Time
}

func NewGoGitCommitter(cfg *Config) *GoGitCommitter {
	return &GoGitCommitter{
		token:       cfg.Token,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		now:         time.Now,
	}
}

// CommitAll stages every change in dir, removals included, and commits. The repository
// is initialised on first use. Empty commits are allowed so every round gets a new SHA.
func (c *GoGitCommitter) CommitAll(dir, message string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("status: %w", err)
	}
	for path, s := range status {
		if s.Worktree == git.Deleted {
			if _, err := wt.Remove(path); err != nil {
				return "", fmt.Errorf("stage removal of %s: %w", path, err)
			}
		}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.authorName,
			Email: c.authorEmail,
			When:  c.now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

// ForcePush replaces the remote branch with the local HEAD.
func (c *GoGitCommitter) ForcePush(ctx context.Context, dir, remoteURL, branch string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	if err := repo.DeleteRemote(remoteName); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("reset remote: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: remoteName, URLs: []string{remoteURL}}); err != nil {
		return fmt.Errorf("add remote: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+%s:refs/heads/%s", head.Name(), branch))

	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       &githttp.BasicAuth{Username: "x-access-token", Password: c.token},
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}
