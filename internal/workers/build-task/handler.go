// internal/workers/build-task/handler.go
package buildtask

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/validation"
	"pages-deployer/internal/models"
	"pages-deployer/internal/pipeline"
)

const (
	TaskType = "build-task"
)

// Runner runs one build synchronously.
type Runner interface {
	Run(ctx context.Context, req *models.BuildRequest) (*pipeline.Result, error)
}

type Handler struct {
	config     *Config
	runner     Runner
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, runner Runner, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		runner:     runner,
		errHandler: apperrors.NewErrorHandler(scoped),
		logger:     scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := ParseInput([]byte(job.Variables))
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	// A started build runs to completion; only broker commands carry the timeout.
	output, err := h.Execute(context.Background(), input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	ctx, cancel := h.commandContext()
	defer cancel()
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.config.Timeout)
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := h.commandContext()
	defer cancel()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

// ParseInput validates the raw job variables and decodes them.
func ParseInput(raw []byte) (*Input, error) {
	result, err := validation.ValidateBuildRequestJSON(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	if !result.Valid {
		return nil, apperrors.NewValidationError(result.Summary())
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute runs the pipeline. Client errors and fatal outcomes are returned as errors.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.runner.Run(ctx, &input.BuildRequest)
	if err != nil {
		return nil, err
	}
	if res.Outcome == pipeline.OutcomeFatal {
		return nil, res.Err
	}

	out := &Output{
		BuildID:   res.BuildID,
		Outcome:   string(res.Outcome),
		Warnings:  res.Warnings,
		Duplicate: res.Duplicate,
		Notified:  res.Notified,
	}
	if res.Repo != nil {
		out.RepoURL = res.Repo.RepoURL
		out.CommitSHA = res.Repo.CommitSHA
		out.PagesURL = res.Repo.PagesURL
	}
	return out, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"outcome": output.Outcome,
	})
}
