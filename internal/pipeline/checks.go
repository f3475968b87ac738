// internal/pipeline/checks.go
package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// Check inspects the workspace before anything is pushed. A non-nil error stops the run.
type Check interface {
	Name() string
	Run(dir string, files []string) error
}

var secretPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"github token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"github fine-grained token", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}\b`)},
	{"aws access key", regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"private key", regexp.MustCompile(`-----BEGIN ((RSA|EC|DSA|OPENSSH|PGP) )?PRIVATE KEY( BLOCK)?-----`)},
	{"google api key", regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`)},
}

const (
	scanChunk   = 64 * 1024
	scanOverlap = 256
)

// SecretScanner rejects files that carry credentials.
type SecretScanner struct{}

func (SecretScanner) Name() string { return "secret-scan" }

func (SecretScanner) Run(dir string, files []string) error {
	for _, name := range files {
		if err := scanFile(filepath.Join(dir, filepath.FromSlash(name)), name); err != nil {
			return err
		}
	}
	return nil
}

// scanFile reads line by line. Lines longer than the reader buffer arrive in
// pieces; the tail of each piece is kept so a match can straddle two.
func scanFile(path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, scanChunk)
	var window []byte
	tail, line := 0, 1
	for {
		piece, isPrefix, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		window = append(window[:tail], piece...)
		for _, p := range secretPatterns {
			if p.re.Match(window) {
				return fmt.Errorf("%s found in %s:%d", p.kind, name, line)
			}
		}

		if isPrefix {
			keep := min(len(window), scanOverlap)
			tail = copy(window, window[len(window)-keep:])
			continue
		}
		tail = 0
		line++
	}
}

// SizeCheck rejects any file larger than Max bytes.
type SizeCheck struct {
	Max int64
}

func (SizeCheck) Name() string { return "size" }

func (c SizeCheck) Run(dir string, files []string) error {
	if c.Max <= 0 {
		return nil
	}
	for _, name := range files {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return err
		}
		if info.Size() > c.Max {
			return fmt.Errorf("%s is %d bytes, limit is %d", name, info.Size(), c.Max)
		}
	}
	return nil
}

// DefaultChecks builds the configured check list.
func DefaultChecks(secretScan bool, maxFileBytes int64) []Check {
	var checks []Check
	if secretScan {
		checks = append(checks, SecretScanner{})
	}
	if maxFileBytes > 0 {
		checks = append(checks, SizeCheck{Max: maxFileBytes})
	}
	return checks
}
