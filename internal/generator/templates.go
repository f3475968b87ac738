// internal/generator/templates.go
package generator

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"

	"pages-deployer/internal/attachments"
)

const (
	IndexFile   = "index.html"
	ReadmeFile  = "README.md"
	LicenseFile = "LICENSE"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	indexTmpl   = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/index.html.tmpl"))
	readmeTmpl  = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/README.md.tmpl"))
	licenseTmpl = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/LICENSE.tmpl"))
)

type indexData struct {
	Title          string
	Brief          string
	Checks         []string
	Preview        htmltemplate.URL
	PreviewName    string
	PreviewIsImage bool
}

// DefaultIndex renders the fallback entry point. The first attachment is embedded as a preview.
func DefaultIndex(task, brief string, checks []string, atts []attachments.Materialized) string {
	data := indexData{Title: titleFor(task), Brief: brief, Checks: checks}
	if len(atts) > 0 && strings.HasPrefix(atts[0].DataURI, "data:") {
		data.Preview = htmltemplate.URL(atts[0].DataURI)
		data.PreviewName = atts[0].Name
		data.PreviewIsImage = strings.HasPrefix(atts[0].MimeType, "image/")
	}
	return render(indexTmpl, data)
}

type readmeData struct {
	Task   string
	Brief  string
	Checks []string
	Year   int
	Owner  string
}

func DefaultReadme(task, brief string, checks []string, year int, owner string) string {
	return render(readmeTmpl, readmeData{Task: task, Brief: brief, Checks: checks, Year: year, Owner: owner})
}

// MITLicense is the static license written into every generated tree.
func MITLicense(year int, owner string) string {
	return render(licenseTmpl, struct {
		Year  int
		Owner string
	}{year, owner})
}

type executor interface {
	Execute(w io.Writer, data any) error
}

// render panics on error. Templates are embedded and their data types are fixed.
func render(t executor, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		panic(err)
	}
	return buf.String()
}

func titleFor(task string) string {
	if strings.TrimSpace(task) == "" {
		return "Task Application"
	}
	return task
}
