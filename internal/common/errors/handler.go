// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports failed workflow jobs back to the engine.
type ErrorHandler struct {
	logger     Logger
	maxRetries int
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

type HandlerOption func(*ErrorHandler)

// WithMaxRetries caps the retries handed back to the engine. Zero or less
// leaves the cap from GetRetryCount alone.
func WithMaxRetries(n int) HandlerOption {
	return func(h *ErrorHandler) { h.maxRetries = n }
}

func NewErrorHandler(logger Logger, opts ...HandlerOption) *ErrorHandler {
	h := &ErrorHandler{logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleJobError fails the job with retries when the error is transient and
// the job has retries left, otherwise throws a BPMN error.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	h.logError(job, stdErr, bpmnErr)

	if Decide(stdErr, job.Retries) == ActionFail {
		h.failJobWithRetries(ctx, client, job, bpmnErr)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

// JobAction is what the engine is asked to do with a failed job.
type JobAction int

const (
	ActionThrow JobAction = iota
	ActionFail
)

// Decide picks between failing (engine retries) and throwing (boundary event).
func Decide(stdErr *StandardError, remainingRetries int32) JobAction {
	if stdErr.Retryable && GetRetryCount(stdErr.Code) > 0 && remainingRetries > 0 {
		return ActionFail
	}
	return ActionThrow
}

// RetryBudget is the retry count sent with a fail command: the error's own
// budget, capped by what the job has left and by maxRetries when positive.
func RetryBudget(bpmnRetries int, jobRetries int32, maxRetries int) int32 {
	retries := bpmnRetries
	if int(jobRetries)-1 < retries {
		retries = int(jobRetries) - 1
	}
	if maxRetries > 0 && maxRetries < retries {
		retries = maxRetries
	}
	if retries < 0 {
		retries = 0
	}
	return int32(retries)
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(RetryBudget(bpmnErr.Retries, job.Retries, h.maxRetries)).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, ok := errorVariablesJSON(bpmnErr); ok {
		if cmdWithVars, err := cmd.VariablesFromString(varsJSON); err == nil {
			_, _ = cmdWithVars.Send(ctx)
			return
		}
	}

	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, ok := errorVariablesJSON(bpmnErr); ok {
		if cmdWithVars, err := cmd.VariablesFromString(varsJSON); err == nil {
			_, _ = cmdWithVars.Send(ctx)
			return
		}
	}

	_, _ = cmd.Send(ctx)
}

func errorVariablesJSON(bpmnErr *BPMNError) (string, bool) {
	data, err := json.Marshal(bpmnErr.ToErrorVariables())
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
