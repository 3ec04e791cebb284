// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wakeupmh/pdf-rag/internal/common/errors"
	"github.com/wakeupmh/pdf-rag/internal/common/logger"
	"github.com/wakeupmh/pdf-rag/internal/common/metrics"
	"github.com/wakeupmh/pdf-rag/internal/common/observability"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

// QuestionPlaceholder is replaced by the caller's question in the prompt template.
const QuestionPlaceholder = "{{question}}"

const defaultHookTimeout = 2 * time.Second

// Backend answers a question against the knowledge base.
type Backend interface {
	RetrieveAndGenerate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

// SessionRecorder is told about every answered question.
type SessionRecorder interface {
	RecordTurn(ctx context.Context, turn models.SessionTurn) error
}

// FailureNotifier is told about every failed backend call.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, alert models.FailureAlert) error
}

// Config is fixed at construction and shared by all requests.
type Config struct {
	KnowledgeBaseID string
	ModelARN        string
	PromptTemplate  string
	// Timeout bounds one backend call on top of the caller's deadline. Zero
	// or less leaves only the caller's deadline.
	Timeout     time.Duration
	HookTimeout time.Duration
}

// Orchestrator turns a Query into a Response with exactly one backend call.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	backend  Backend
	logger   logger.Logger
	recorder SessionRecorder
	notifier FailureNotifier
	obs      *observability.Observability
}

type Option func(*Orchestrator)

func WithSessionRecorder(r SessionRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithFailureNotifier(n FailureNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithObservability(obs *observability.Observability) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

func New(cfg Config, backend Backend, log logger.Logger, opts ...Option) *Orchestrator {
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = defaultHookTimeout
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	o := &Orchestrator{
		cfg:     cfg,
		backend: backend,
		logger:  log.With(map[string]interface{}{"component": "orchestrator"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// callResult is the outcome of the single backend call.
type callResult struct {
	result *models.GenerationResult
	err    error
}

// Handle answers one question. It never returns an error: every failure is
// mapped to a response, and backend failures always to the generic 500.
func (o *Orchestrator) Handle(ctx context.Context, q models.Query) models.Response {
	start := time.Now()

	if strings.TrimSpace(q.Text) == "" {
		stdErr := errors.NewInvalidQuestionError()
		o.logger.Warn("Rejected query", map[string]interface{}{
			"error_code": stdErr.Code,
		})
		resp := models.NewClientErrorResponse(http.StatusBadRequest, stdErr.Message).
			WithErrorCode(string(stdErr.Code))
		o.observe(ctx, resp, start)
		return resp
	}

	req := models.GenerationRequest{
		SessionID:       q.SessionID,
		InputText:       BuildPrompt(o.cfg.PromptTemplate, q.Text),
		KnowledgeBaseID: o.cfg.KnowledgeBaseID,
		ModelARN:        o.cfg.ModelARN,
	}

	o.logger.Debug("Computed model identifier", map[string]interface{}{
		"model_arn":       req.ModelARN,
		"client_model_id": q.ModelID,
		"has_session":     q.HasSession(),
	})

	// The span covers the call and both hooks.
	ctx, span := o.obs.StartSpan(ctx, "rag.Query",
		attribute.String("knowledge_base_id", req.KnowledgeBaseID),
		attribute.Bool("has_session", req.SessionID != ""),
	)
	defer span.End()

	out := o.invoke(ctx, req)

	var resp models.Response
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, "retrieve and generate failed")
		resp = o.fail(ctx, q, out.err)
	} else {
		resp = o.succeed(ctx, out.result)
	}
	o.observe(ctx, resp, start)
	return resp
}

// invoke runs the backend call in its own goroutine so that an expired
// context returns immediately even if the backend ignores it.
func (o *Orchestrator) invoke(ctx context.Context, req models.GenerationRequest) callResult {
	callCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	results := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- callResult{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		res, err := o.backend.RetrieveAndGenerate(callCtx, req)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: backend returned no result", errors.ErrMalformedBackendPayload)
		}
		results <- callResult{result: res, err: err}
	}()

	select {
	case out := <-results:
		return out
	case <-callCtx.Done():
		return callResult{err: callCtx.Err()}
	}
}

func (o *Orchestrator) succeed(ctx context.Context, result *models.GenerationResult) models.Response {
	o.logCitations(result)

	loc, _ := result.FirstLocation()
	citation := models.CitationRef(loc)
	metrics.CitationsTotal.WithLabelValues(citationKind(loc)).Inc()

	resp := models.NewSuccessResponse(result.AnswerText, citation, result.SessionID)

	if o.recorder != nil {
		hookCtx, cancel := o.hookContext(ctx)
		defer cancel()
		turn := models.SessionTurn{
			SessionID:   result.SessionID,
			Citation:    resp.Citation(),
			AnswerBytes: len(result.AnswerText),
			AnsweredAt:  time.Now().UTC(),
		}
		if err := o.recorder.RecordTurn(hookCtx, turn); err != nil {
			o.logger.Warn("Failed to record session turn", map[string]interface{}{
				"session_id": result.SessionID,
				"error":      err,
			})
		}
	}
	return resp
}

func (o *Orchestrator) fail(ctx context.Context, q models.Query, err error) models.Response {
	stdErr := errors.ClassifyBackendError(err)
	metrics.BackendErrorsTotal.WithLabelValues(string(stdErr.Code)).Inc()

	o.logger.Error("Retrieve and generate failed", map[string]interface{}{
		"error_code":  stdErr.Code,
		"error":       err,
		"has_session": q.HasSession(),
		"trace_id":    observability.TraceID(ctx),
	})

	if o.notifier != nil {
		hookCtx, cancel := o.hookContext(ctx)
		defer cancel()
		alert := models.FailureAlert{
			ErrorCode:       string(stdErr.Code),
			Details:         stdErr.Details,
			KnowledgeBaseID: o.cfg.KnowledgeBaseID,
			SessionID:       q.SessionID,
			ModelID:         q.ModelID,
			TraceID:         observability.TraceID(ctx),
			OccurredAt:      stdErr.Timestamp,
		}
		if nErr := o.notifier.NotifyFailure(hookCtx, alert); nErr != nil {
			o.logger.Warn("Failed to publish failure alert", map[string]interface{}{
				"error": nErr,
			})
		}
	}
	return models.NewServerErrorResponse().WithErrorCode(string(stdErr.Code))
}

// hookContext outlives the caller's cancellation so that a timed out request
// can still be reported.
func (o *Orchestrator) hookContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.HookTimeout)
}

func (o *Orchestrator) logCitations(result *models.GenerationResult) {
	o.logger.Debug("Citations", map[string]interface{}{
		"count":     len(result.Citations),
		"citations": result.Citations,
	})
	for i, c := range result.Citations {
		for _, ref := range c.RetrievedReferences {
			o.logger.Debug("Citation reference", map[string]interface{}{
				"index":          i,
				"generated_text": c.GeneratedResponsePart.Text,
				"reference":      ref.Content,
				"location":       ref.Location,
			})
		}
	}
}

func (o *Orchestrator) observe(ctx context.Context, resp models.Response, start time.Time) {
	status := strconv.Itoa(resp.StatusCode)
	elapsed := time.Since(start)
	metrics.QueriesTotal.WithLabelValues(status).Inc()
	metrics.QueryDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	o.obs.RecordQuery(ctx, status, elapsed)
}

// BuildPrompt substitutes the question into template. An empty template
// sends the question as is.
func BuildPrompt(template, question string) string {
	if template == "" {
		return question
	}
	return strings.ReplaceAll(template, QuestionPlaceholder, question)
}

func citationKind(loc models.Location) string {
	switch loc.(type) {
	case models.S3Location:
		return "s3"
	case models.WebLocation:
		return "web"
	case nil:
		return "none"
	default:
		return "other"
	}
}
