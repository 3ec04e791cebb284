// internal/api/handler.go
package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/wakeupmh/pdf-rag/internal/common/errors"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

// handleQuery serves POST /docs.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With(map[string]interface{}{
		"request_id": RequestIDFromContext(r.Context()),
	})

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		stdErr := errors.NewMethodNotAllowedError(r.Method)
		w.Header().Set("Allow", "OPTIONS, POST")
		writeResponse(w, models.NewClientErrorResponse(http.StatusMethodNotAllowed, stdErr.Message))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			writeResponse(w, models.NewClientErrorResponse(http.StatusRequestEntityTooLarge, "request body too large"))
			return
		}
		log.Warn("failed to read request body", map[string]interface{}{"error": err})
		writeResponse(w, models.NewClientErrorResponse(http.StatusBadRequest, "invalid request body"))
		return
	}

	query, stdErr := s.decodeQuery(body)
	if stdErr != nil {
		log.Info("rejected request body", map[string]interface{}{
			"error_code": stdErr.Code,
			"details":    stdErr.Details,
		})
		writeResponse(w, models.NewClientErrorResponse(http.StatusBadRequest, stdErr.Message))
		return
	}

	writeResponse(w, s.answerer.Handle(r.Context(), query))
}

// decodeQuery validates the body against the request schema before binding
// it. An empty body is treated as an empty object.
func (s *Server) decodeQuery(body []byte) (models.Query, *errors.StandardError) {
	if len(body) == 0 {
		body = []byte("{}")
	}

	result, err := s.validator.ValidateBytes(body)
	if err != nil {
		return models.Query{}, errors.NewInvalidRequestBodyError(err.Error())
	}
	if !result.Valid {
		return models.Query{}, errors.NewInvalidRequestBodyError(result.Summary())
	}

	var query models.Query
	if err := json.Unmarshal(body, &query); err != nil {
		return models.Query{}, errors.NewInvalidRequestBodyError(err.Error())
	}
	return query, nil
}

func writeResponse(w http.ResponseWriter, resp models.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
