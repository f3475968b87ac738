package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/models"
)

// AuditIndexer writes one document per build run, keyed by build id.
type AuditIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewAuditIndexer(client *elasticsearch.Client, index string) *AuditIndexer {
	return &AuditIndexer{client: client, index: index}
}

func (a *AuditIndexer) IndexRun(ctx context.Context, run models.BuildRun) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode build run: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: run.BuildID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return apperrors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return apperrors.NewExternalServiceError("elasticsearch",
			fmt.Errorf("index %s: %s: %s", a.index, res.Status(), bytes.TrimSpace(snippet)))
	}
	return nil
}
