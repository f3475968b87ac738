// Package attachments decodes inline data-URI attachments into a workspace.
package attachments

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/models"
	"pages-deployer/internal/workspace"
)

const defaultMimeType = "text/plain"

// Materialized describes one attachment written to disk.
type Materialized struct {
	Name     string // sanitized path relative to the workspace
	MimeType string
	Path     string
	DataURI  string
}

// Materializer writes attachments below a workspace directory.
type Materializer struct {
	logger logger.Logger
}

func NewMaterializer(log logger.Logger) *Materializer {
	return &Materializer{logger: log.WithFields(map[string]interface{}{"component": "attachments"})}
}

// Materialize decodes every base64 data URI into dir. Attachments that are not data
// URIs, are not base64 encoded, or fail to decode are skipped with a warning. Only
// filesystem failures are returned as errors.
func (m *Materializer) Materialize(dir string, attachments []models.Attachment) ([]Materialized, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("attachments.Materialize: %w", err)
	}

	out := make([]Materialized, 0, len(attachments))
	for _, att := range attachments {
		uri, err := ParseDataURI(att.URL)
		if err != nil {
			m.logger.Warn("skipping attachment", map[string]interface{}{"name": att.Name, "reason": err.Error()})
			continue
		}

		target, err := workspace.SafeJoin(dir, att.Name)
		if err != nil {
			m.logger.Warn("skipping attachment", map[string]interface{}{"name": att.Name, "reason": err.Error()})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return out, fmt.Errorf("attachments.Materialize: %w", err)
		}
		if err := os.WriteFile(target, uri.Data, 0o644); err != nil {
			return out, fmt.Errorf("attachments.Materialize: %w", err)
		}

		rel, _ := filepath.Rel(dir, target)
		item := Materialized{
			Name:     filepath.ToSlash(rel),
			MimeType: uri.MimeType,
			Path:     target,
			DataURI:  att.URL,
		}
		out = append(out, item)

		m.logger.Info("attachment stored", map[string]interface{}{
			"name":     item.Name,
			"mimeType": item.MimeType,
			"guessed":  guessType(item.Name),
			"bytes":    len(uri.Data),
		})
	}
	return out, nil
}

// DataURI is a decoded data: URI.
type DataURI struct {
	MimeType string
	Data     []byte
}

// ParseDataURI accepts data:[<mime>][;param]*;base64,<payload>.
func ParseDataURI(raw string) (*DataURI, error) {
	if !strings.HasPrefix(raw, "data:") {
		return nil, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("data URI has no payload separator")
	}

	parts := strings.Split(header, ";")
	mimeType := strings.TrimSpace(parts[0])
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	isBase64 := false
	for _, p := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, fmt.Errorf("unsupported encoding for %s", mimeType)
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return &DataURI{MimeType: mimeType, Data: data}, nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

func guessType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "unknown"
}
