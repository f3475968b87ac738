// internal/publisher/hosting.go
package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v75/github"
)

// Hosting wraps the GitHub REST calls a publish needs.
type Hosting struct {
	client *github.Client
	owner  string
}

// NewHosting authenticates with a token. apiURL may point at a test server or GHES API root.
func NewHosting(cfg *Config) (*Hosting, error) {
	client := github.NewClient(&http.Client{Timeout: cfg.RequestTimeout}).WithAuthToken(cfg.Token)
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github api url: %w", err)
		}
		client.BaseURL = base
	}
	return &Hosting{client: client, owner: cfg.Owner}, nil
}

// RepoInfo is the subset of repository metadata a publish uses.
type RepoInfo struct {
	Name     string
	HTMLURL  string
	CloneURL string
	Created  bool
}

// EnsureRepo returns the repository, creating it public and empty when absent.
func (h *Hosting) EnsureRepo(ctx context.Context, name, description string) (*RepoInfo, error) {
	repo, resp, err := h.client.Repositories.Get(ctx, h.owner, name)
	if err == nil {
		return repoInfo(repo, false), nil
	}
	if !isStatus(resp, http.StatusNotFound) {
		return nil, fmt.Errorf("get repo: %w", err)
	}

	repo, resp, err = h.client.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.Ptr(name),
		Description: github.Ptr(description),
		Private:     github.Ptr(false),
		AutoInit:    github.Ptr(false),
	})
	if err != nil {
		// Lost a create race: the name now exists.
		if isStatus(resp, http.StatusUnprocessableEntity) {
			existing, _, getErr := h.client.Repositories.Get(ctx, h.owner, name)
			if getErr == nil {
				return repoInfo(existing, false), nil
			}
		}
		return nil, fmt.Errorf("create repo: %w", err)
	}
	return repoInfo(repo, true), nil
}

func repoInfo(r *github.Repository, created bool) *RepoInfo {
	return &RepoInfo{
		Name:     r.GetName(),
		HTMLURL:  r.GetHTMLURL(),
		CloneURL: r.GetCloneURL(),
		Created:  created,
	}
}

// EnsureFile writes content at path on branch unless it is already identical.
// It returns the new commit SHA, or "" when nothing changed.
func (h *Hosting) EnsureFile(ctx context.Context, repo, path, branch, message, content string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: []byte(content),
		Branch:  github.Ptr(branch),
	}

	existing, _, resp, err := h.client.Repositories.GetContents(ctx, h.owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && existing != nil:
		current, decErr := existing.GetContent()
		if decErr == nil && current == content {
			return "", nil
		}
		opts.SHA = existing.SHA
		res, _, err := h.client.Repositories.UpdateFile(ctx, h.owner, repo, path, opts)
		if err != nil {
			return "", fmt.Errorf("update %s: %w", path, err)
		}
		return res.GetSHA(), nil
	case isStatus(resp, http.StatusNotFound):
		res, _, err := h.client.Repositories.CreateFile(ctx, h.owner, repo, path, opts)
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}
		return res.GetSHA(), nil
	default:
		return "", fmt.Errorf("get %s: %w", path, err)
	}
}

// ListRoot returns the names at the repository root on ref.
func (h *Hosting) ListRoot(ctx context.Context, repo, ref string) ([]string, error) {
	_, dir, _, err := h.client.Repositories.GetContents(ctx, h.owner, repo, "",
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	names := make([]string, 0, len(dir))
	for _, c := range dir {
		names = append(names, c.GetName())
	}
	return names, nil
}

// EnablePages turns on Pages for branch/path. An already enabled site is not an error.
func (h *Hosting) EnablePages(ctx context.Context, repo, branch, path string) error {
	_, resp, err := h.client.Repositories.EnablePages(ctx, h.owner, repo, &github.Pages{
		Source: &github.PagesSource{Branch: github.Ptr(branch), Path: github.Ptr(path)},
	})
	if err == nil || isStatus(resp, http.StatusConflict) {
		return nil
	}
	return fmt.Errorf("enable pages: %w", err)
}

// PagesStatus reports the site URL and whether the last build finished.
func (h *Hosting) PagesStatus(ctx context.Context, repo string) (string, bool, error) {
	pages, _, err := h.client.Repositories.GetPagesInfo(ctx, h.owner, repo)
	if err != nil {
		return "", false, fmt.Errorf("pages status: %w", err)
	}
	return pages.GetHTMLURL(), pages.GetStatus() == "built" && pages.GetHTMLURL() != "", nil
}

// ExpectedPagesURL is the conventional project-site address.
func (h *Hosting) ExpectedPagesURL(repo string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(h.owner), repo)
}

func isStatus(resp *github.Response, code int) bool {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode == code
	}
	return false
}
