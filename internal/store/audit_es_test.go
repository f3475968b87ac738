package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/models"
)

func newESClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

func TestAuditIndexer_IndexRun(t *testing.T) {
	var gotPath string
	var gotDoc models.BuildRun
	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	run := models.BuildRun{BuildID: "b-1", Identity: "demo-1a2b3c4d", Round: 1, Outcome: "ok"}
	require.NoError(t, NewAuditIndexer(client, "build-runs").IndexRun(context.Background(), run))

	assert.Equal(t, "/build-runs/_doc/b-1", gotPath)
	assert.Equal(t, "demo-1a2b3c4d", gotDoc.Identity)
	assert.Equal(t, "ok", gotDoc.Outcome)
}

func TestAuditIndexer_ErrorStatus(t *testing.T) {
	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := NewAuditIndexer(client, "build-runs").IndexRun(context.Background(), models.BuildRun{BuildID: "b-2"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalService))
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}
