// internal/models/alert.go
package models

import "time"

// FailureAlert describes one failed backend call for operators. It never
// carries the question text.
type FailureAlert struct {
	ErrorCode       string    `json:"errorCode"`
	Details         string    `json:"details"`
	KnowledgeBaseID string    `json:"knowledgeBaseId"`
	SessionID       string    `json:"sessionId,omitempty"`
	ModelID         string    `json:"modelId,omitempty"`
	TraceID         string    `json:"traceId,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// SessionTurn is what the session recorder keeps per answered question.
type SessionTurn struct {
	SessionID   string    `json:"sessionId"`
	Citation    string    `json:"citation,omitempty"`
	AnswerBytes int       `json:"answerBytes"`
	AnsweredAt  time.Time `json:"answeredAt"`
}
