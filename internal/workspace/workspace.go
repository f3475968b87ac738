// Package workspace manages the per-task working directories that get published.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const readmeName = "README.md"

// ErrVCSPath is returned for names that resolve into the .git directory.
var ErrVCSPath = errors.New("path targets VCS metadata")

// Dir returns (and creates) the workspace directory for a task identity.
func Dir(root, identity string) (string, error) {
	dir, err := SafeJoin(root, identity)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace.Dir: %w", err)
	}
	return dir, nil
}

// SafeJoin resolves name below root. Leading separators and ".." segments are
// clamped at root, so the result never escapes it. Any path with a .git
// segment is refused, whatever its case.
func SafeJoin(root, name string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("workspace.SafeJoin: empty path %q", name)
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if strings.EqualFold(segment, ".git") {
			return "", fmt.Errorf("workspace.SafeJoin: %q: %w", name, ErrVCSPath)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workspace.SafeJoin: %w", err)
	}
	full := filepath.Join(absRoot, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace.SafeJoin: %q escapes workspace", name)
	}
	return full, nil
}

// WriteFiles writes every entry below dir, creating parents, and returns the
// relative paths written in sorted order. Entries aimed at .git are skipped.
func WriteFiles(dir string, files map[string]string) ([]string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace.WriteFiles: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		target, err := SafeJoin(dir, name)
		if errors.Is(err, ErrVCSPath) {
			continue
		}
		if err != nil {
			return written, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("workspace.WriteFiles: %w", err)
		}
		if err := os.WriteFile(target, []byte(files[name]), 0o644); err != nil {
			return written, fmt.Errorf("workspace.WriteFiles: %w", err)
		}
		rel, _ := filepath.Rel(dir, target)
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}

// EnsureReadme writes a minimal README when the workspace has none. It reports
// whether a file was written.
func EnsureReadme(dir, task, brief string, round int) (bool, error) {
	target := filepath.Join(dir, readmeName)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("workspace.EnsureReadme: %w", err)
	}

	body := fmt.Sprintf("# %s\n\n%s\n\n## Deployment\n\nPublished via automated pipeline for round %d.\n", task, brief, round)
	if err := os.WriteFile(target, []byte(body), 0o644); err != nil {
		return false, fmt.Errorf("workspace.EnsureReadme: %w", err)
	}
	return true, nil
}

// Walk returns every regular file below dir as a slash-separated relative path,
// skipping VCS metadata.
func Walk(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// Reset removes everything in dir except VCS metadata, so the next commit is a full-tree replace.
func Reset(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("workspace.Reset: %w", err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("workspace.Reset: %w", err)
		}
	}
	return nil
}
