// internal/models/response.go
package models

import "net/http"

// ServerErrorMessage is the only text a caller sees when the backend fails.
const ServerErrorMessage = "Server side error: please check function logs"

// Response is the normalized outcome of one query.
type Response struct {
	StatusCode  int     `json:"-"`
	AnswerText  string  `json:"response"`
	CitationRef *string `json:"citation"`
	SessionID   *string `json:"sessionId"`

	// ErrorCode classifies a failed query for in-process callers. It never
	// reaches the wire.
	ErrorCode string `json:"-"`
}

// NewSuccessResponse builds the 200 response. The citation may be nil.
func NewSuccessResponse(answer string, citation *string, sessionID string) Response {
	return Response{
		StatusCode:  http.StatusOK,
		AnswerText:  answer,
		CitationRef: citation,
		SessionID:   stringPtr(sessionID),
	}
}

// NewServerErrorResponse builds the generic 500 response.
func NewServerErrorResponse() Response {
	return Response{
		StatusCode: http.StatusInternalServerError,
		AnswerText: ServerErrorMessage,
	}
}

// WithErrorCode returns a copy of r classified by code.
func (r Response) WithErrorCode(code string) Response {
	r.ErrorCode = code
	return r
}

// NewClientErrorResponse builds a 4xx response with the same body shape.
func NewClientErrorResponse(statusCode int, message string) Response {
	return Response{
		StatusCode: statusCode,
		AnswerText: message,
	}
}

// Citation returns the citation reference or "" when absent.
func (r Response) Citation() string {
	if r.CitationRef == nil {
		return ""
	}
	return *r.CitationRef
}

// Session returns the session id or "" when absent.
func (r Response) Session() string {
	if r.SessionID == nil {
		return ""
	}
	return *r.SessionID
}
