// Package pipeline sequences one build: generate, write, check, publish, notify, record.
package pipeline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pages-deployer/internal/attachments"
	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/metrics"
	"pages-deployer/internal/common/observability"
	"pages-deployer/internal/common/validation"
	"pages-deployer/internal/generator"
	"pages-deployer/internal/models"
	"pages-deployer/internal/publisher"
	"pages-deployer/internal/workspace"
)

const maxDescriptionLen = 300

var errNilDeps = errors.New("pipeline: missing required dependency")

type Materializer interface {
	Materialize(dir string, atts []models.Attachment) ([]attachments.Materialized, error)
}

type Generator interface {
	Generate(ctx context.Context, in generator.Input) *generator.Output
}

type Publisher interface {
	Publish(ctx context.Context, name, dir, description string) (*publisher.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, url string, payload models.NotificationPayload) (int, error)
}

type SubmissionStore interface {
	SaveSubmission(ctx context.Context, s *models.RepoSubmission) error
}

// TaskStore keeps one row per admitted task round, whichever intake received it.
type TaskStore interface {
	SaveTaskRecord(ctx context.Context, rec *models.TaskRecord) error
}

type Auditor interface {
	IndexRun(ctx context.Context, run models.BuildRun) error
}

type Config struct {
	Secret  string
	WorkDir string
}

// Deps are the collaborators of a Pipeline. Store, Tasks, Auditor, Alerter and
// Observability are optional.
type Deps struct {
	Registry      Registry
	Materializer  Materializer
	Generator     Generator
	Publisher     Publisher
	Notifier      Notifier
	Store         SubmissionStore
	Tasks         TaskStore
	Checks        []Check
	Auditor       Auditor
	Alerter       Alerter
	Observability *observability.Observability
}

type Pipeline struct {
	config *Config
	deps   Deps
	logger logger.Logger
	now    func() time.Time
}

func New(cfg *Config, deps Deps, log logger.Logger) *Pipeline {
	return &Pipeline{
		config: cfg,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "pipeline"}),
		now:    time.Now,
	}
}

// Admit runs the request boundary checks: schema, shared secret and, for round 2,
// the existence of a recorded round 1. It has no side effects.
func (p *Pipeline) Admit(ctx context.Context, req *models.BuildRequest) error {
	res, err := validation.ValidateBuildRequest(req)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if !res.Valid {
		return apperrors.NewValidationError(res.Summary())
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(p.config.Secret)) != 1 {
		return apperrors.NewAuthError("secret mismatch")
	}

	if req.IsUpdate() {
		identity := Identity(req.Email, req.Task)
		rec, err := p.deps.Registry.Get(ctx, identity)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperrors.NewTaskNotFoundError(identity)
		}
	}
	return nil
}

// Run executes one build. The returned error is set only for client errors
// (auth, validation, missing round 1). Every other failure is reported in the Result.
func (p *Pipeline) Run(ctx context.Context, req *models.BuildRequest) (*Result, error) {
	return p.RunWithID(ctx, req, uuid.NewString())
}

// RunWithID is Run with a caller-assigned build id, used when the id was already
// handed out at intake. Every admitted request is recorded before it is built.
func (p *Pipeline) RunWithID(ctx context.Context, req *models.BuildRequest, buildID string) (*Result, error) {
	if err := p.Admit(ctx, req); err != nil {
		if apperrors.IsClientError(err) {
			return nil, err
		}
		res := &Result{BuildID: buildID, Identity: Identity(req.Email, req.Task)}
		return p.abort(ctx, req, res, newMachine(), err, p.now(), p.logger), nil
	}
	p.recordTask(ctx, req, buildID)
	return p.run(ctx, req, buildID)
}

func (p *Pipeline) run(ctx context.Context, req *models.BuildRequest, buildID string) (*Result, error) {
	started := p.now()
	identity := Identity(req.Email, req.Task)
	log := p.logger.WithFields(map[string]interface{}{
		"buildId": buildID,
		"taskId":  identity,
		"round":   req.Round,
	})
	res := &Result{BuildID: buildID, Identity: identity}
	sm := newMachine()

	metrics.BuildsActive.Inc()
	defer metrics.BuildsActive.Dec()

	ctx, span := p.deps.Observability.StartSpan(ctx, "build",
		attribute.String("task.identity", identity),
		attribute.Int("task.round", req.Round),
	)
	defer span.End()

	unlock, err := p.deps.Registry.Lock(ctx, identity)
	if err != nil {
		return p.abort(ctx, req, res, sm, apperrors.NewRegistryUnavailableError(err), started, log), nil
	}
	defer unlock()

	existing, err := p.deps.Registry.Get(ctx, identity)
	if err != nil {
		return p.abort(ctx, req, res, sm, err, started, log), nil
	}

	switch {
	case !req.IsUpdate() && existing != nil:
		log.Info("round 1 already recorded, returning prior result", nil)
		res.Duplicate = true
		return p.complete(ctx, req, res, sm, existing, started, log), nil
	case req.IsUpdate() && existing == nil:
		return nil, apperrors.NewTaskNotFoundError(identity)
	}

	repo, err := p.build(ctx, req, res, sm, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return p.abort(ctx, req, res, sm, err, started, log), nil
	}

	if req.IsUpdate() {
		// Round 2 republishes the same repository. Its addresses stay those of round 1.
		if existing.RepoURL != "" {
			repo.RepoURL = existing.RepoURL
		}
		if existing.PagesURL != "" {
			repo.PagesURL = existing.PagesURL
		}
	} else if stored, err := p.deps.Registry.PutIfAbsent(ctx, identity, *repo); err != nil {
		res.Warnings = append(res.Warnings, "registry: "+err.Error())
		log.Error("could not record round 1", map[string]interface{}{"error": err.Error()})
	} else if !stored {
		log.Warn("round 1 record already present", nil)
	}

	if err := sm.advance(StateNotifying); err != nil {
		return p.abort(ctx, req, res, sm, err, started, log), nil
	}
	p.notify(ctx, req, repo, res, log)

	p.record(ctx, req, repo, buildID, identity, log)
	return p.complete(ctx, req, res, sm, repo, started, log), nil
}

// complete moves the run to Recorded and finishes it with repo.
func (p *Pipeline) complete(ctx context.Context, req *models.BuildRequest, res *Result, sm *machine, repo *models.PublishedRepo, started time.Time, log logger.Logger) *Result {
	if err := sm.advance(StateRecorded); err != nil {
		return p.abort(ctx, req, res, sm, err, started, log)
	}
	res.ok(repo)
	res.settle(sm)
	p.finish(ctx, req, res, started, log)
	return res
}

// abort moves the run to Failed and finishes it with err.
func (p *Pipeline) abort(ctx context.Context, req *models.BuildRequest, res *Result, sm *machine, err error, started time.Time, log logger.Logger) *Result {
	if terr := sm.advance(StateFailed); terr != nil {
		err = errors.Join(err, terr)
	}
	res.fail(err)
	res.settle(sm)
	p.finish(ctx, req, res, started, log)
	return res
}

// build covers Generating, Writing and Publishing. Any error it returns is fatal.
func (p *Pipeline) build(ctx context.Context, req *models.BuildRequest, res *Result, sm *machine, log logger.Logger) (*models.PublishedRepo, error) {
	if err := sm.advance(StateGenerating); err != nil {
		return nil, err
	}
	dir, err := workspace.Dir(p.config.WorkDir, res.Identity)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("workspace", err)
	}
	if err := workspace.Reset(dir); err != nil {
		return nil, apperrors.NewExternalServiceError("workspace", err)
	}

	var out *generator.Output
	err = p.stage(ctx, "generate", func(ctx context.Context) error {
		mats, err := p.deps.Materializer.Materialize(dir, req.Attachments)
		if err != nil {
			return apperrors.NewExternalServiceError("workspace", err)
		}
		out = p.deps.Generator.Generate(ctx, generator.Input{
			Task:        req.Task,
			Brief:       req.Brief,
			Checks:      req.Checks,
			Attachments: mats,
			IsUpdate:    req.IsUpdate(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Degraded = out.Degraded
	if out.Degraded {
		metrics.GenerationFallbacks.WithLabelValues("model_error").Inc()
	}
	for range out.Synthesized {
		metrics.GenerationFallbacks.WithLabelValues("missing_file").Inc()
	}

	if err := sm.advance(StateWriting); err != nil {
		return nil, err
	}
	err = p.stage(ctx, "write", func(ctx context.Context) error {
		written, err := workspace.WriteFiles(dir, out.Files)
		if err != nil {
			return apperrors.NewExternalServiceError("workspace", err)
		}
		if _, err := workspace.EnsureReadme(dir, req.Task, req.Brief, req.Round); err != nil {
			return apperrors.NewExternalServiceError("workspace", err)
		}
		log.Info("workspace written", map[string]interface{}{"files": len(written)})

		files, err := workspace.Walk(dir)
		if err != nil {
			return apperrors.NewExternalServiceError("workspace", err)
		}
		for _, check := range p.deps.Checks {
			if err := check.Run(dir, files); err != nil {
				return apperrors.NewPrecheckFailedError(check.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := sm.advance(StatePublishing); err != nil {
		return nil, err
	}
	var pub *publisher.Result
	err = p.stage(ctx, "publish", func(ctx context.Context) error {
		var err error
		pub, err = p.deps.Publisher.Publish(ctx, res.Identity, dir, describe(req.Brief))
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, w := range pub.Warnings {
		kind, _ := w.Metadata["step"].(string)
		metrics.PublishWarnings.WithLabelValues(kind).Inc()
		res.Warnings = append(res.Warnings, w.Error())
	}

	repo := pub.Repo
	return &repo, nil
}

func (p *Pipeline) notify(ctx context.Context, req *models.BuildRequest, repo *models.PublishedRepo, res *Result, log logger.Logger) {
	_ = p.stage(ctx, "notify", func(ctx context.Context) error {
		attempts, err := p.deps.Notifier.Notify(ctx, req.EvaluationURL, models.NewNotificationPayload(req, repo))
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			res.Warnings = append(res.Warnings, err.Error())
			log.Warn("evaluation callback failed", map[string]interface{}{"attempts": attempts, "error": err.Error()})
			return nil
		}
		metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
		res.Notified = true
		return nil
	})
}

func (p *Pipeline) recordTask(ctx context.Context, req *models.BuildRequest, buildID string) {
	if p.deps.Tasks == nil {
		return
	}
	rec := &models.TaskRecord{
		BuildID:       buildID,
		Identity:      Identity(req.Email, req.Task),
		Email:         req.Email,
		Task:          req.Task,
		Round:         req.Round,
		Nonce:         req.Nonce,
		Brief:         req.Brief,
		EvaluationURL: req.EvaluationURL,
		SecretHash:    HashSecret(req.Secret),
	}
	if b, err := json.Marshal(req.Checks); err == nil {
		rec.ChecksJSON = string(b)
	}
	if len(req.Attachments) > 0 {
		if b, err := json.Marshal(req.Attachments); err == nil {
			rec.AttachmentsJSON = string(b)
		}
	}
	if err := p.deps.Tasks.SaveTaskRecord(ctx, rec); err != nil {
		p.logger.Error("could not store task record", map[string]interface{}{
			"buildId": buildID,
			"error":   err.Error(),
		})
	}
}

func (p *Pipeline) record(ctx context.Context, req *models.BuildRequest, repo *models.PublishedRepo, buildID, identity string, log logger.Logger) {
	if p.deps.Store == nil {
		return
	}
	err := p.deps.Store.SaveSubmission(ctx, &models.RepoSubmission{
		BuildID:   buildID,
		Identity:  identity,
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   repo.RepoURL,
		CommitSHA: repo.CommitSHA,
		PagesURL:  repo.PagesURL,
	})
	if err != nil {
		log.Error("could not store submission", map[string]interface{}{"error": err.Error()})
	}
}

// stage times fn and wraps it in a span.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.deps.Observability.StartSpan(ctx, name)
	defer span.End()

	start := p.now()
	err := fn(ctx)
	metrics.BuildStageDuration.WithLabelValues(name).Observe(p.now().Sub(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// finish emits metrics, the audit document and, for fatal runs, an alert.
func (p *Pipeline) finish(ctx context.Context, req *models.BuildRequest, res *Result, started time.Time, log logger.Logger) {
	finished := p.now()
	outcome := string(res.Outcome)
	metrics.BuildsTotal.WithLabelValues(strconv.Itoa(req.Round), outcome).Inc()
	p.deps.Observability.RecordBuildProcessed(ctx, req.Round, outcome)
	p.deps.Observability.RecordBuildDuration(ctx, finished.Sub(started), outcome)

	run := models.BuildRun{
		BuildID:    res.BuildID,
		Identity:   res.Identity,
		Email:      req.Email,
		Task:       req.Task,
		Round:      req.Round,
		Outcome:    outcome,
		State:      string(res.State),
		States:     res.stateNames(),
		Warnings:   res.Warnings,
		Duplicate:  res.Duplicate,
		Notified:   res.Notified,
		Degraded:   res.Degraded,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		DurationMs: finished.Sub(started).Milliseconds(),
	}
	if res.Repo != nil {
		run.RepoURL, run.CommitSHA, run.PagesURL = res.Repo.RepoURL, res.Repo.CommitSHA, res.Repo.PagesURL
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
		run.ErrorCode = string(apperrors.CodeOf(res.Err))
	}

	fields := map[string]interface{}{
		"outcome":   outcome,
		"duplicate": res.Duplicate,
		"notified":  res.Notified,
		"warnings":  len(res.Warnings),
		"duration":  finished.Sub(started).String(),
	}
	if res.Outcome == OutcomeFatal {
		fields["error"] = run.Error
		log.Error("build failed", fields)
	} else {
		log.Info("build finished", fields)
	}

	// Audit and alerting outlive a cancelled run context.
	bg := context.WithoutCancel(ctx)
	if p.deps.Auditor != nil {
		if err := p.deps.Auditor.IndexRun(bg, run); err != nil {
			log.Warn("audit index failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if res.Outcome == OutcomeFatal && p.deps.Alerter != nil {
		if err := p.deps.Alerter.Alert(bg, run); err != nil {
			log.Warn("fatal alert failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// describe turns a brief into a one-line repository description.
func describe(brief string) string {
	desc := strings.Join(strings.Fields(brief), " ")
	desc = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, desc)
	if r := []rune(desc); len(r) > maxDescriptionLen {
		desc = string(r[:maxDescriptionLen-3]) + "..."
	}
	if desc == "" {
		return "Automated deployment from task request"
	}
	return desc
}

// IsClientError reports whether err from Run or Admit is the caller's fault.
func IsClientError(err error) bool {
	return apperrors.IsClientError(err)
}

// Validate reports missing required collaborators.
func (d Deps) Validate() error {
	missing := []string{}
	if d.Registry == nil {
		missing = append(missing, "registry")
	}
	if d.Materializer == nil {
		missing = append(missing, "materializer")
	}
	if d.Generator == nil {
		missing = append(missing, "generator")
	}
	if d.Publisher == nil {
		missing = append(missing, "publisher")
	}
	if d.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errNilDeps, strings.Join(missing, ", "))
	}
	return nil
}
