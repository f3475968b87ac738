package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pages-deployer/internal/attachments"
	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/generator"
	"pages-deployer/internal/models"
	"pages-deployer/internal/publisher"
)

// ==========================
// Test doubles
// ==========================

type fakeGenerator struct {
	mu     sync.Mutex
	files  map[string]string
	inputs []generator.Input
}

func (g *fakeGenerator) Generate(_ context.Context, in generator.Input) *generator.Output {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, in)
	files := g.files
	if files == nil {
		files = map[string]string{"index.html": "<h1>" + in.Task + "</h1>"}
	}
	return &generator.Output{Files: files}
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inputs)
}

type fakePublisher struct {
	mu       sync.Mutex
	repos    map[string]int
	calls    int
	warnings []*apperrors.StandardError
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{repos: map[string]int{}}
}

func (p *fakePublisher) Publish(_ context.Context, name, dir, _ string) (*publisher.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return nil, apperrors.NewPublishFatalError(publisher.StepPush, err)
	}
	_, existed := p.repos[name]
	p.repos[name]++
	return &publisher.Result{
		Repo: models.PublishedRepo{
			RepoURL:   "https://github.com/octo/" + name,
			CommitSHA: fmt.Sprintf("sha-%s-%d", name, p.repos[name]),
			PagesURL:  "https://octo.github.io/" + name + "/",
		},
		Created:  !existed,
		Warnings: p.warnings,
	}, nil
}

func (p *fakePublisher) created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.repos)
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []models.NotificationPayload
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, _ string, payload models.NotificationPayload) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	if n.err != nil {
		return 5, n.err
	}
	return 1, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []models.RepoSubmission
	tasks []models.TaskRecord
}

func (s *fakeStore) SaveTaskRecord(_ context.Context, rec *models.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, *rec)
	return nil
}

func (s *fakeStore) SaveSubmission(_ context.Context, sub *models.RepoSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *sub)
	return nil
}

type fakeAuditor struct {
	mu   sync.Mutex
	runs []models.BuildRun
}

func (a *fakeAuditor) IndexRun(_ context.Context, run models.BuildRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, run)
	return nil
}

type fakeAlerter struct {
	runs []models.BuildRun
}

func (a *fakeAlerter) Alert(_ context.Context, run models.BuildRun) error {
	a.runs = append(a.runs, run)
	return nil
}

type harness struct {
	pipeline  *Pipeline
	registry  *MemoryRegistry
	generator *fakeGenerator
	publisher *fakePublisher
	notifier  *fakeNotifier
	store     *fakeStore
	auditor   *fakeAuditor
	alerter   *fakeAlerter
	workDir   string
}

const testSecret = "s3cret"

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		registry:  NewMemoryRegistry(),
		generator: &fakeGenerator{},
		publisher: newFakePublisher(),
		notifier:  &fakeNotifier{},
		store:     &fakeStore{},
		auditor:   &fakeAuditor{},
		alerter:   &fakeAlerter{},
		workDir:   t.TempDir(),
	}
	log := logger.NewNoOpLogger()
	h.pipeline = New(&Config{Secret: testSecret, WorkDir: h.workDir}, Deps{
		Registry:     h.registry,
		Materializer: attachments.NewMaterializer(log),
		Generator:    h.generator,
		Publisher:    h.publisher,
		Notifier:     h.notifier,
		Store:        h.store,
		Tasks:        h.store,
		Checks:       DefaultChecks(true, 1<<20),
		Auditor:      h.auditor,
		Alerter:      h.alerter,
	}, log)
	return h
}

func buildRequest(round int) *models.BuildRequest {
	return &models.BuildRequest{
		Email:         "student@example.com",
		Secret:        testSecret,
		Task:          "Captcha Solver",
		Round:         round,
		Nonce:         fmt.Sprintf("nonce-%d", round),
		Brief:         "Build a page that   solves\ncaptchas.",
		Checks:        []string{"Page has a title"},
		EvaluationURL: "https://eval.example.com/notify",
	}
}

// ==========================
// Scenarios
// ==========================

func TestRun_FreshRound1(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, StateRecorded, res.State)
	assert.Equal(t, "captcha-solver-616bb35d", res.Identity)
	assert.True(t, res.Notified)
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Repo)
	assert.Equal(t, "https://github.com/octo/captcha-solver-616bb35d", res.Repo.RepoURL)

	rec, err := h.registry.Get(context.Background(), res.Identity)
	require.NoError(t, err)
	assert.Equal(t, *res.Repo, *rec)

	require.Len(t, h.notifier.payloads, 1)
	assert.Equal(t, "nonce-1", h.notifier.payloads[0].Nonce)
	assert.Equal(t, res.Repo.CommitSHA, h.notifier.payloads[0].CommitSHA)

	require.Len(t, h.store.saved, 1)
	assert.Equal(t, 1, h.store.saved[0].Round)

	_, err = os.Stat(filepath.Join(h.workDir, res.Identity, "README.md"))
	assert.NoError(t, err)

	require.Len(t, h.auditor.runs, 1)
	assert.Equal(t, "ok", h.auditor.runs[0].Outcome)
	assert.Empty(t, h.alerter.runs)
}

func TestRun_Round1Duplicate(t *testing.T) {
	h := newHarness(t)
	first, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	second, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, OutcomeOK, second.Outcome)
	assert.Equal(t, first.Repo, second.Repo)
	assert.Equal(t, 1, h.generator.calls())
	assert.Equal(t, 1, h.publisher.calls)
	assert.Len(t, h.notifier.payloads, 1)
}

func TestRun_Round2RevisesSameRepo(t *testing.T) {
	h := newHarness(t)
	first, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	req := buildRequest(2)
	req.Brief = "Add dark mode."
	second, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeOK, second.Outcome)
	assert.Equal(t, first.Repo.RepoURL, second.Repo.RepoURL)
	assert.Equal(t, first.Repo.PagesURL, second.Repo.PagesURL)
	assert.NotEqual(t, first.Repo.CommitSHA, second.Repo.CommitSHA)
	assert.Equal(t, 1, h.publisher.created())

	require.Len(t, h.generator.inputs, 2)
	assert.True(t, h.generator.inputs[1].IsUpdate)

	// The round 1 record is never replaced.
	rec, err := h.registry.Get(context.Background(), first.Identity)
	require.NoError(t, err)
	assert.Equal(t, first.Repo.CommitSHA, rec.CommitSHA)

	require.Len(t, h.notifier.payloads, 2)
	assert.Equal(t, 2, h.notifier.payloads[1].Round)
	assert.Equal(t, second.Repo.CommitSHA, h.notifier.payloads[1].CommitSHA)
	require.Len(t, h.store.saved, 2)
	assert.Equal(t, second.Repo.CommitSHA, h.store.saved[1].CommitSHA)
}

func TestRun_Round2WithoutRound1(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(context.Background(), buildRequest(2))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTaskNotFound))
	assert.Zero(t, h.generator.calls())
	assert.Zero(t, h.publisher.calls)
	assert.Empty(t, h.notifier.payloads)
}

func TestRun_ClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.BuildRequest)
		code   apperrors.ErrorCode
	}{
		{"wrong secret", func(r *models.BuildRequest) { r.Secret = "nope" }, apperrors.ErrCodeAuthFailed},
		{"bad round", func(r *models.BuildRequest) { r.Round = 3 }, apperrors.ErrCodeValidationFailed},
		{"missing brief", func(r *models.BuildRequest) { r.Brief = "" }, apperrors.ErrCodeValidationFailed},
		{"bad callback", func(r *models.BuildRequest) { r.EvaluationURL = "ftp://x" }, apperrors.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := buildRequest(1)
			tt.mutate(req)

			_, err := h.pipeline.Run(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.True(t, IsClientError(err))
			assert.Zero(t, h.generator.calls())
		})
	}
}

func TestRun_RecordsEveryAdmittedRound(t *testing.T) {
	h := newHarness(t)
	req := buildRequest(1)
	req.Attachments = []models.Attachment{{Name: "a.txt", URL: "data:text/plain;base64,aGk="}}

	_, err := h.pipeline.RunWithID(context.Background(), req, "build-1")
	require.NoError(t, err)
	_, err = h.pipeline.RunWithID(context.Background(), buildRequest(1), "build-2")
	require.NoError(t, err)

	rejected := buildRequest(1)
	rejected.Secret = "nope"
	_, err = h.pipeline.Run(context.Background(), rejected)
	require.Error(t, err)

	require.Len(t, h.store.tasks, 2, "duplicates are recorded, rejections are not")
	rec := h.store.tasks[0]
	assert.Equal(t, "build-1", rec.BuildID)
	assert.Equal(t, "captcha-solver-616bb35d", rec.Identity)
	assert.Equal(t, HashSecret(testSecret), rec.SecretHash)
	assert.Equal(t, `["Page has a title"]`, rec.ChecksJSON)
	assert.Contains(t, rec.AttachmentsJSON, "a.txt")
	assert.Equal(t, "build-2", h.store.tasks[1].BuildID)
	assert.Empty(t, h.store.tasks[1].AttachmentsJSON)
}

func TestRun_StateHistoryReachesAudit(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)
	assert.Equal(t, []State{StateReceived, StateGenerating, StateWriting, StatePublishing, StateNotifying, StateRecorded}, res.History)

	dup, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)
	assert.Equal(t, StateRecorded, dup.State)
	assert.Equal(t, []State{StateReceived, StateRecorded}, dup.History)

	require.Len(t, h.auditor.runs, 2)
	assert.Equal(t, []string{"received", "generating", "writing", "publishing", "notifying", "recorded"}, h.auditor.runs[0].States)
	assert.Equal(t, "recorded", h.auditor.runs[0].State)
	assert.Equal(t, []string{"received", "recorded"}, h.auditor.runs[1].States)
}

func TestRun_PrecheckFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.generator.files = map[string]string{
		"index.html": "<h1>hi</h1>",
		"app.js":     "const token = 'ghp_" + strings.Repeat("a", 36) + "';",
	}

	res, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateReceived, StateGenerating, StateWriting, StateFailed}, res.History)
	assert.True(t, apperrors.IsCode(res.Err, apperrors.ErrCodePrecheckFailed))
	assert.Zero(t, h.publisher.calls)
	assert.Empty(t, h.notifier.payloads)

	rec, _ := h.registry.Get(context.Background(), res.Identity)
	assert.Nil(t, rec)

	require.Len(t, h.alerter.runs, 1)
	assert.Equal(t, "PRECHECK_FAILED", h.alerter.runs[0].ErrorCode)
}

func TestRun_PublishFatal(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = apperrors.NewPublishFatalError(publisher.StepEnsureRepo, errors.New("403"))

	res, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.True(t, apperrors.IsCode(res.Err, apperrors.ErrCodePublishFatal))
	assert.Empty(t, h.notifier.payloads)
	assert.Len(t, h.alerter.runs, 1)
}

func TestRun_NotifyFailureIsSoftWarning(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = apperrors.NewNotifyFailedError(5, errors.New("status 500"))

	res, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSoftWarning, res.Outcome)
	assert.False(t, res.Notified)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Evaluation callback failed")

	// Still recorded.
	rec, _ := h.registry.Get(context.Background(), res.Identity)
	assert.NotNil(t, rec)
	assert.Len(t, h.store.saved, 1)
	assert.Empty(t, h.alerter.runs)
}

func TestRun_PublishWarningsSurface(t *testing.T) {
	h := newHarness(t)
	h.publisher.warnings = []*apperrors.StandardError{
		apperrors.NewPublishSoftWarning(publisher.StepPollPages, errors.New("not built after 10 attempts")),
	}

	res, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSoftWarning, res.Outcome)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "pollPages")
}

func TestRun_ConcurrentRound1CreatesOneRepo(t *testing.T) {
	h := newHarness(t)

	const workers = 8
	results := make([]*Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.pipeline.Run(context.Background(), buildRequest(1))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.publisher.calls)
	assert.Equal(t, 1, h.publisher.created())
	duplicates := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Repo.RepoURL, r.Repo.RepoURL)
		if r.Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, workers-1, duplicates)
}

func TestRun_WorkspaceIsReplacedEachRound(t *testing.T) {
	h := newHarness(t)
	h.generator.files = map[string]string{"index.html": "v1", "old.js": "x"}
	first, err := h.pipeline.Run(context.Background(), buildRequest(1))
	require.NoError(t, err)

	h.generator.files = map[string]string{"index.html": "v2"}
	_, err = h.pipeline.Run(context.Background(), buildRequest(2))
	require.NoError(t, err)

	dir := filepath.Join(h.workDir, first.Identity)
	_, err = os.Stat(filepath.Join(dir, "old.js"))
	assert.True(t, os.IsNotExist(err))
	got, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "a b c", describe("  a\n\tb   c "))
	assert.Equal(t, "Automated deployment from task request", describe(" \n "))

	long := describe(strings.Repeat("x", 500))
	assert.Len(t, long, maxDescriptionLen)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestDeps_Validate(t *testing.T) {
	err := Deps{Registry: NewMemoryRegistry()}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generator")
	assert.NotContains(t, err.Error(), "registry")
}
