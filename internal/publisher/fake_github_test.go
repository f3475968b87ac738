package publisher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the handful of REST endpoints a publish touches for owner "octo".
type fakeGitHub struct {
	mu sync.Mutex

	repoExists     bool
	getRepoStatus  int
	createStatus   int
	license        string
	pagesStatus    int
	builtAfter     int
	pagesPolls     int
	createBodies   []map[string]interface{}
	licensePuts    []map[string]interface{}
	enableRequests int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{createStatus: http.StatusCreated, pagesStatus: http.StatusCreated, builtAfter: 1}
}

func (f *fakeGitHub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/octo/demo", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.getRepoStatus != 0 {
			writeJSON(w, f.getRepoStatus, map[string]string{"message": "boom"})
			return
		}
		if !f.repoExists {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, repoJSON())
	})

	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.createBodies = append(f.createBodies, body)
		if f.createStatus != http.StatusCreated {
			writeJSON(w, f.createStatus, map[string]string{"message": "nope"})
			return
		}
		f.repoExists = true
		writeJSON(w, http.StatusCreated, repoJSON())
	})

	mux.HandleFunc("GET /repos/octo/demo/contents/LICENSE", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.license == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"type": "file", "name": "LICENSE", "path": "LICENSE", "sha": "lic-1",
			"encoding": "base64", "content": base64Of(f.license),
		})
	})

	mux.HandleFunc("PUT /repos/octo/demo/contents/LICENSE", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.licensePuts = append(f.licensePuts, body)
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"content": map[string]string{"name": "LICENSE", "sha": "lic-2"},
			"commit":  map[string]string{"sha": "license-commit"},
		})
	})

	mux.HandleFunc("GET /repos/octo/demo/contents/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{
			{"type": "file", "name": "index.html", "path": "index.html"},
			{"type": "file", "name": "README.md", "path": "README.md"},
		})
	})

	mux.HandleFunc("POST /repos/octo/demo/pages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.enableRequests++
		if f.pagesStatus >= 400 {
			writeJSON(w, f.pagesStatus, map[string]string{"message": "pages"})
			return
		}
		writeJSON(w, f.pagesStatus, map[string]string{"status": "queued"})
	})

	mux.HandleFunc("GET /repos/octo/demo/pages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pagesPolls++
		status := "building"
		if f.builtAfter > 0 && f.pagesPolls >= f.builtAfter {
			status = "built"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   status,
			"html_url": "https://octo.github.io/demo/",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func repoJSON() map[string]interface{} {
	return map[string]interface{}{
		"name":      "demo",
		"html_url":  "https://github.com/octo/demo",
		"clone_url": "https://github.com/octo/demo.git",
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(apiURL string) *Config {
	return &Config{
		APIURL:         apiURL,
		Token:          "test-token",
		Owner:          "octo",
		Branch:         "main",
		PagesBranch:    "main",
		PagesPath:      "/",
		RequestTimeout: 5 * time.Second,
		PollAttempts:   10,
		PollInterval:   5 * time.Second,
		AuthorName:     "bot",
		AuthorEmail:    "bot@example.com",
	}
}

func trimBase64(s string) string { return strings.ReplaceAll(s, "\n", "") }
