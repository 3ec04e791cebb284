package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wakeupmh/pdf-rag/internal/common/logger"
	"github.com/wakeupmh/pdf-rag/internal/common/observability"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []models.GenerationRequest
	calls    atomic.Int32
	respond  func(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error)
}

func (f *fakeBackend) RetrieveAndGenerate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(ctx, req)
}

func (f *fakeBackend) lastRequest(t *testing.T) models.GenerationRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func returning(result *models.GenerationResult, err error) *fakeBackend {
	return &fakeBackend{respond: func(context.Context, models.GenerationRequest) (*models.GenerationResult, error) {
		return result, err
	}}
}

type fakeRecorder struct {
	turns []models.SessionTurn
	err   error
}

func (f *fakeRecorder) RecordTurn(ctx context.Context, turn models.SessionTurn) error {
	f.turns = append(f.turns, turn)
	return f.err
}

type fakeNotifier struct {
	alerts []models.FailureAlert
	ctxErr error
	err    error
}

func (f *fakeNotifier) NotifyFailure(ctx context.Context, alert models.FailureAlert) error {
	f.alerts = append(f.alerts, alert)
	f.ctxErr = ctx.Err()
	return f.err
}

var testConfig = Config{
	KnowledgeBaseID: "KB123",
	ModelARN:        "arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-3-haiku-20240307-v1:0",
	PromptTemplate:  "Responda: {{question}}",
}

func s3Citation(uri string) models.Citation {
	return models.Citation{
		GeneratedResponsePart: models.TextSpan{Text: "parte"},
		RetrievedReferences:   []models.Reference{{Content: "trecho", Location: models.S3Location{URI: uri}}},
	}
}

func TestHandle_S3Citation(t *testing.T) {
	backend := returning(&models.GenerationResult{
		AnswerText: "Os prazos são de 15 dias.",
		SessionID:  "abc123",
		Citations:  []models.Citation{s3Citation("s3://doth-iaus/doc1.pdf")},
	}, nil)
	o := New(testConfig, backend, logger.NewTestLogger(t))

	resp := o.Handle(context.Background(), models.Query{Text: "Quais são os prazos para recurso?"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Os prazos são de 15 dias.", resp.AnswerText)
	require.NotNil(t, resp.CitationRef)
	assert.Equal(t, "s3://doth-iaus/doc1.pdf", *resp.CitationRef)
	assert.Equal(t, "abc123", resp.Session())

	req := backend.lastRequest(t)
	assert.Equal(t, "", req.SessionID)
	assert.Equal(t, "Responda: Quais são os prazos para recurso?", req.InputText)
	assert.Equal(t, "KB123", req.KnowledgeBaseID)
	assert.Equal(t, testConfig.ModelARN, req.ModelARN)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestHandle_CitationVariants(t *testing.T) {
	tests := []struct {
		name      string
		citations []models.Citation
		want      *string
	}{
		{
			name: "web location uses url",
			citations: []models.Citation{{RetrievedReferences: []models.Reference{
				{Location: models.WebLocation{URL: "https://example.com/lei"}},
			}}},
			want: strPtr("https://example.com/lei"),
		},
		{
			name:      "no citations",
			citations: nil,
			want:      nil,
		},
		{
			name:      "first citation without references",
			citations: []models.Citation{{}, s3Citation("s3://b/ignored.pdf")},
			want:      nil,
		},
		{
			name: "other location kind",
			citations: []models.Citation{{RetrievedReferences: []models.Reference{
				{Location: models.OtherLocation{Type: "CONFLUENCE"}},
			}}},
			want: nil,
		},
		{
			name: "only first reference counts",
			citations: []models.Citation{{RetrievedReferences: []models.Reference{
				{Location: models.S3Location{URI: "s3://b/first.pdf"}},
				{Location: models.S3Location{URI: "s3://b/second.pdf"}},
			}}, s3Citation("s3://b/third.pdf")},
			want: strPtr("s3://b/first.pdf"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := returning(&models.GenerationResult{AnswerText: "a", SessionID: "s", Citations: tt.citations}, nil)
			resp := New(testConfig, backend, logger.NewTestLogger(t)).
				Handle(context.Background(), models.Query{Text: "q"})

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, resp.CitationRef)
		})
	}
}

func TestHandle_BackendErrorIsGeneric500(t *testing.T) {
	backend := returning(nil, errors.New("dial tcp: lookup bedrock-agent-runtime: no such host"))
	resp := New(testConfig, backend, logger.NewTestLogger(t)).
		Handle(context.Background(), models.Query{Text: "Quais são os prazos para recurso?"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"Server side error: please check function logs","citation":null,"sessionId":null}`, string(body))
}

func TestHandle_NilResultIsGeneric500(t *testing.T) {
	resp := New(testConfig, returning(nil, nil), logger.NewNoOpLogger()).
		Handle(context.Background(), models.Query{Text: "q"})

	assert.Equal(t, models.NewServerErrorResponse().WithErrorCode("MALFORMED_BACKEND_PAYLOAD"), resp)
}

func TestHandle_BackendPanicIsGeneric500(t *testing.T) {
	backend := &fakeBackend{respond: func(context.Context, models.GenerationRequest) (*models.GenerationResult, error) {
		panic("nil map")
	}}
	resp := New(testConfig, backend, logger.NewNoOpLogger()).Handle(context.Background(), models.Query{Text: "q"})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandle_TimeoutDoesNotHang(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// Ignores its context on purpose.
	backend := &fakeBackend{respond: func(context.Context, models.GenerationRequest) (*models.GenerationResult, error) {
		<-release
		return &models.GenerationResult{AnswerText: "late"}, nil
	}}
	cfg := testConfig
	cfg.Timeout = 50 * time.Millisecond
	notifier := &fakeNotifier{}
	o := New(cfg, backend, logger.NewTestLogger(t), WithFailureNotifier(notifier))

	start := time.Now()
	resp := o.Handle(context.Background(), models.Query{Text: "q", SessionID: "abc123"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.NewServerErrorResponse().WithErrorCode("BACKEND_TIMEOUT"), resp)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "BACKEND_TIMEOUT", notifier.alerts[0].ErrorCode)
	assert.Equal(t, "abc123", notifier.alerts[0].SessionID)
	assert.NoError(t, notifier.ctxErr, "alert context must outlive the expired request")
}

func TestHandle_CallerCancellation(t *testing.T) {
	backend := &fakeBackend{respond: func(ctx context.Context, _ models.GenerationRequest) (*models.GenerationResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := New(testConfig, backend, logger.NewNoOpLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp := o.Handle(ctx, models.Query{Text: "q"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandle_SessionRoundTrip(t *testing.T) {
	backend := &fakeBackend{respond: func(_ context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
		return &models.GenerationResult{AnswerText: "a", SessionID: req.SessionID}, nil
	}}
	recorder := &fakeRecorder{}
	o := New(testConfig, backend, logger.NewTestLogger(t), WithSessionRecorder(recorder))

	resp := o.Handle(context.Background(), models.Query{Text: "e o prazo de apelação?", SessionID: "abc123", ModelID: "ignored"})

	assert.Equal(t, "abc123", backend.lastRequest(t).SessionID)
	assert.Equal(t, "abc123", resp.Session())
	require.Len(t, recorder.turns, 1)
	assert.Equal(t, "abc123", recorder.turns[0].SessionID)
	assert.Equal(t, 1, recorder.turns[0].AnswerBytes)
}

func TestHandle_HookFailuresDoNotChangeResponse(t *testing.T) {
	t.Run("recorder", func(t *testing.T) {
		backend := returning(&models.GenerationResult{AnswerText: "a", SessionID: "s"}, nil)
		o := New(testConfig, backend, logger.NewNoOpLogger(),
			WithSessionRecorder(&fakeRecorder{err: errors.New("redis down")}))

		resp := o.Handle(context.Background(), models.Query{Text: "q"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "s", resp.Session())
	})

	t.Run("notifier", func(t *testing.T) {
		backend := returning(nil, errors.New("throttled"))
		o := New(testConfig, backend, logger.NewNoOpLogger(),
			WithFailureNotifier(&fakeNotifier{err: errors.New("sns down")}))

		resp := o.Handle(context.Background(), models.Query{Text: "q"})
		assert.Equal(t, models.NewServerErrorResponse().WithErrorCode("BACKEND_INVOCATION_FAILED"), resp)
	})
}

func TestHandle_EmptyQuestion(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			backend := returning(&models.GenerationResult{AnswerText: "a"}, nil)
			resp := New(testConfig, backend, logger.NewNoOpLogger()).
				Handle(context.Background(), models.Query{Text: text})

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_QUESTION", resp.ErrorCode)
			assert.Nil(t, resp.CitationRef)
			assert.Nil(t, resp.SessionID)
			assert.Equal(t, int32(0), backend.calls.Load())
		})
	}
}

func TestHandle_ConcurrentRequests(t *testing.T) {
	backend := &fakeBackend{respond: func(_ context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
		return &models.GenerationResult{
			AnswerText: req.InputText,
			SessionID:  req.SessionID,
			Citations:  []models.Citation{s3Citation("s3://b/" + req.SessionID)},
		}, nil
	}}
	cfg := testConfig
	cfg.PromptTemplate = ""
	o := New(cfg, backend, logger.NewNoOpLogger())

	const n = 50
	var wg sync.WaitGroup
	responses := make([]models.Response, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = o.Handle(context.Background(), models.Query{
				Text:      fmt.Sprintf("question %d", i),
				SessionID: fmt.Sprintf("s-%d", i),
			})
		}(i)
	}
	wg.Wait()

	for i, resp := range responses {
		assert.Equal(t, fmt.Sprintf("question %d", i), resp.AnswerText)
		assert.Equal(t, fmt.Sprintf("s-%d", i), resp.Session())
		assert.Equal(t, fmt.Sprintf("s3://b/s-%d", i), resp.Citation())
	}
	assert.Equal(t, int32(n), backend.calls.Load())
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "q", BuildPrompt("", "q"))
	assert.Equal(t, "Pergunta: q. Fim.", BuildPrompt("Pergunta: {{question}}. Fim.", "q"))
	assert.Equal(t, "static", BuildPrompt("static", "q"))
}

func strPtr(s string) *string { return &s }

func newTracedObservability(t *testing.T) (*observability.Observability, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	obs, err := observability.NewWithRegisterer("pdf-rag-test", promclient.NewRegistry(), sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { obs.Shutdown(context.Background()) })
	return obs, recorder
}

func TestHandle_FailureAlertCarriesTraceID(t *testing.T) {
	obs, spans := newTracedObservability(t)
	notifier := &fakeNotifier{}
	o := New(testConfig, returning(nil, errors.New("boom")), logger.NewTestLogger(t),
		WithObservability(obs), WithFailureNotifier(notifier))

	resp := o.Handle(context.Background(), models.Query{Text: "q"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	require.Len(t, notifier.alerts, 1)
	traceID := notifier.alerts[0].TraceID
	require.NotEmpty(t, traceID)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "rag.Query", ended[0].Name())
	assert.Equal(t, ended[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestHandle_SuccessSpanIsNotAnError(t *testing.T) {
	obs, spans := newTracedObservability(t)
	backend := returning(&models.GenerationResult{AnswerText: "a", SessionID: "s"}, nil)

	resp := New(testConfig, backend, logger.NewNoOpLogger(), WithObservability(obs)).
		Handle(context.Background(), models.Query{Text: "q"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)
}
