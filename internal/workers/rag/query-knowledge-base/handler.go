// internal/workers/rag/query-knowledge-base/handler.go
package queryknowledgebase

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/wakeupmh/pdf-rag/internal/common/errors"
	"github.com/wakeupmh/pdf-rag/internal/common/logger"
	"github.com/wakeupmh/pdf-rag/internal/common/metrics"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

const (
	TaskType = "query-knowledge-base"
)

// Answerer is satisfied by the orchestrator.
type Answerer interface {
	Handle(ctx context.Context, q models.Query) models.Response
}

type Handler struct {
	config       *Config
	answerer     Answerer
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, answerer Answerer, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:       config,
		answerer:     answerer,
		errorHandler: errors.NewErrorHandler(log, errors.WithMaxRetries(config.MaxRetries)),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.reportFailure(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	output, err := h.Execute(ctx, input)
	cancel()
	if err != nil {
		h.reportFailure(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// commandContext bounds one command sent back to the engine. It starts after
// the answer, never sharing the answer's deadline.
func (h *Handler) commandContext() (context.Context, context.CancelFunc) {
	if h.config.RequestTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), h.config.RequestTimeout)
}

// ParseInput decodes job variables. Unknown variables are ignored.
func ParseInput(variables string) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidRequestBodyError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute answers the question. A non-200 outcome is returned as an error so
// that the process can catch it on a boundary event.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	resp := h.answerer.Handle(ctx, models.Query{
		Text:      input.Question,
		SessionID: input.RequestSessionID,
		ModelID:   input.ModelID,
	})

	switch {
	case resp.StatusCode == http.StatusOK:
		h.logger.Info("knowledge base answered", map[string]interface{}{
			"hasCitation": resp.CitationRef != nil,
			"sessionId":   resp.Session(),
		})
		return &Output{
			Response:   resp.AnswerText,
			Citation:   resp.CitationRef,
			SessionID:  resp.SessionID,
			StatusCode: resp.StatusCode,
		}, nil
	case resp.StatusCode == http.StatusBadRequest:
		return nil, errors.NewInvalidQuestionError()
	default:
		return nil, backendError(resp)
	}
}

// backendError restores the classification of a failed query so the engine
// retries timeouts and invocation failures but not malformed payloads.
func backendError(resp models.Response) *errors.StandardError {
	cause := stderrors.New(resp.AnswerText)
	switch errors.ErrorCode(resp.ErrorCode) {
	case errors.ErrCodeBackendTimeout:
		return errors.NewBackendTimeoutError(cause)
	case errors.ErrCodeMalformedBackendPayload:
		return errors.NewMalformedBackendPayloadError(resp.AnswerText)
	default:
		return errors.NewBackendInvocationError(cause)
	}
}

func (h *Handler) reportFailure(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	ctx, cancel := h.commandContext()
	defer cancel()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	ctx, cancel := h.commandContext()
	defer cancel()
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
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}
