package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pages-deployer/internal/attachments"
	"pages-deployer/internal/common/logger"
)

const twoFileResponse = `Here you go.

===FILE: index.html===
<!DOCTYPE html><html><body>hello</body></html>
===END FILE===

===FILE: README.md===
# hello-world
===END FILE===
`

func newTestGenerator(t *testing.T, backend Backend) *Generator {
	t.Helper()
	cfg := &Config{Temperature: 0.2, Timeout: time.Second, LicenseOwner: "octo"}
	return New(backend, cfg, logger.NewTestLogger(t)).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) })
}

func sampleInput() Input {
	return Input{
		Task:   "hello-world",
		Brief:  "Show a greeting",
		Checks: []string{"has index.html", "shows greeting"},
		Attachments: []attachments.Materialized{
			{Name: "sample.png", MimeType: "image/png", DataURI: "data:image/png;base64,iVBORw0KGgo="},
		},
	}
}

func TestGenerate_ParsesModelFiles(t *testing.T) {
	backend := NewFakeBackend(twoFileResponse)
	out := newTestGenerator(t, backend).Generate(context.Background(), sampleInput())

	assert.False(t, out.Degraded)
	assert.Empty(t, out.Synthesized)
	assert.Equal(t, "<!DOCTYPE html><html><body>hello</body></html>", out.Files[IndexFile])
	assert.Equal(t, "# hello-world", out.Files[ReadmeFile])
	assert.Contains(t, out.Files[LicenseFile], "Copyright (c) 2026 octo")
	require.Len(t, backend.Calls(), 1)
}

func TestGenerate_PromptCarriesManifestNotBytes(t *testing.T) {
	backend := NewFakeBackend(twoFileResponse)
	newTestGenerator(t, backend).Generate(context.Background(), sampleInput())

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, systemPrompt, calls[0].System)
	assert.Contains(t, calls[0].Prompt, "Create a web application")
	assert.Contains(t, calls[0].Prompt, "- has index.html\n- shows greeting")
	assert.Contains(t, calls[0].Prompt, "- sample.png (image/png)")
	assert.NotContains(t, calls[0].Prompt, "iVBORw0KGgo")
	assert.InDelta(t, 0.2, calls[0].Temperature, 1e-9)
}

func TestGenerate_UpdateFraming(t *testing.T) {
	backend := NewFakeBackend(twoFileResponse)
	in := sampleInput()
	in.IsUpdate = true
	newTestGenerator(t, backend).Generate(context.Background(), in)

	assert.Contains(t, backend.Calls()[0].Prompt, "Update a web application")
}

func TestGenerate_PartialFallback(t *testing.T) {
	backend := NewFakeBackend("===FILE: index.html===\n<p>only index</p>\n===END FILE===")
	out := newTestGenerator(t, backend).Generate(context.Background(), sampleInput())

	assert.False(t, out.Degraded)
	assert.Equal(t, []string{ReadmeFile}, out.Synthesized)
	assert.Equal(t, "<p>only index</p>", out.Files[IndexFile])
	assert.Contains(t, out.Files[ReadmeFile], "# hello-world")
	assert.Contains(t, out.Files[ReadmeFile], "- shows greeting")
}

func TestGenerate_UnparseableResponseSynthesizesBoth(t *testing.T) {
	out := newTestGenerator(t, NewFakeBackend("I cannot help with that.")).Generate(context.Background(), sampleInput())

	assert.ElementsMatch(t, []string{IndexFile, ReadmeFile}, out.Synthesized)
	assert.Len(t, out.Files, 3)
}

func TestGenerate_ModelFailureFallsBackToTemplates(t *testing.T) {
	backend := NewFakeBackend("")
	backend.Err = errors.New("401 unauthorized")

	out := newTestGenerator(t, backend).Generate(context.Background(), sampleInput())

	assert.True(t, out.Degraded)
	require.Len(t, out.Files, 3)
	assert.Contains(t, out.Files[IndexFile], "Show a greeting")
	assert.Contains(t, out.Files[IndexFile], `src="data:image/png;base64,iVBORw0KGgo="`)
	assert.Contains(t, out.Files[ReadmeFile], "## Summary")
	assert.Contains(t, out.Files[LicenseFile], "MIT License")
	assert.Len(t, backend.Calls(), 1)
}

func TestGenerate_LicenseAlwaysOverwritten(t *testing.T) {
	resp := twoFileResponse + "\n===FILE: LICENSE===\nAll rights reserved\n===END FILE==="
	out := newTestGenerator(t, NewFakeBackend(resp)).Generate(context.Background(), sampleInput())

	assert.NotContains(t, out.Files[LicenseFile], "All rights reserved")
	assert.Contains(t, out.Files[LicenseFile], "Permission is hereby granted")
}

func TestDefaultIndex_EscapesBrief(t *testing.T) {
	html := DefaultIndex("demo", `<script>alert(1)</script>`, nil, nil)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, `id="preview"`)
}

func TestDefaultIndex_NonImageAttachmentIsLinked(t *testing.T) {
	html := DefaultIndex("demo", "brief", nil, []attachments.Materialized{
		{Name: "data.csv", MimeType: "text/csv", DataURI: "data:text/csv;base64,YSxi"},
	})
	assert.Contains(t, html, `href="data:text/csv;base64,YSxi"`)
	assert.Contains(t, html, `download="data.csv"`)
}
