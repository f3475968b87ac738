// internal/generator/generator.go
package generator

import (
	"context"
	"time"

	"pages-deployer/internal/attachments"
	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
)

// Input is everything the generator sees about a build.
type Input struct {
	Task        string
	Brief       string
	Checks      []string
	Attachments []attachments.Materialized
	IsUpdate    bool
}

// Output is the generated file set. Files always holds index.html, README.md and LICENSE.
type Output struct {
	Files map[string]string
	// Degraded is set when the model call failed and every file came from templates.
	Degraded bool
	// Synthesized lists files that were filled from templates after a successful call.
	Synthesized []string
}

type Generator struct {
	backend Backend
	config  *Config
	logger  logger.Logger
	now     func() time.Time
}

func New(backend Backend, cfg *Config, log logger.Logger) *Generator {
	return &Generator{
		backend: backend,
		config:  cfg,
		logger: log.WithFields(map[string]interface{}{
			"component": "generator",
			"backend":   backend.Name(),
		}),
		now: time.Now,
	}
}

// WithClock overrides the clock used for the license year.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate calls the backend once. Model failures never surface; they degrade to templates.
func (g *Generator) Generate(ctx context.Context, in Input) *Output {
	year := g.now().Year()
	log := g.logger.WithFields(map[string]interface{}{"task": in.Task, "update": in.IsUpdate})

	callCtx := ctx
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	text, err := g.backend.Complete(callCtx, Completion{
		System:      systemPrompt,
		Prompt:      buildPrompt(in),
		Temperature: g.config.Temperature,
	})
	if err != nil {
		log.Warn("model call failed, using templates", map[string]interface{}{
			"error": apperrors.NewGenerationDegradedError(err).Error(),
		})
		return &Output{Files: g.fallback(in, year), Degraded: true}
	}

	files := ParseFiles(text)
	log.Info("parsed model response", map[string]interface{}{"files": len(files), "chars": len(text)})

	out := &Output{Files: files}
	if _, ok := files[IndexFile]; !ok {
		files[IndexFile] = DefaultIndex(in.Task, in.Brief, in.Checks, in.Attachments)
		out.Synthesized = append(out.Synthesized, IndexFile)
	}
	if _, ok := files[ReadmeFile]; !ok {
		files[ReadmeFile] = DefaultReadme(in.Task, in.Brief, in.Checks, year, g.config.LicenseOwner)
		out.Synthesized = append(out.Synthesized, ReadmeFile)
	}
	files[LicenseFile] = MITLicense(year, g.config.LicenseOwner)

	if len(out.Synthesized) > 0 {
		log.Warn("model response incomplete, synthesized defaults", map[string]interface{}{"files": out.Synthesized})
	}
	return out
}

func (g *Generator) fallback(in Input, year int) map[string]string {
	return map[string]string{
		IndexFile:   DefaultIndex(in.Task, in.Brief, in.Checks, in.Attachments),
		ReadmeFile:  DefaultReadme(in.Task, in.Brief, in.Checks, year, g.config.LicenseOwner),
		LicenseFile: MITLicense(year, g.config.LicenseOwner),
	}
}
