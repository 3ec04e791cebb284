// internal/workers/rag/query-knowledge-base/models.go
package queryknowledgebase

type Input struct {
	Question         string `json:"question"`
	RequestSessionID string `json:"requestSessionId"`
	ModelID          string `json:"modelId"`
}

// Output uses the same keys as the HTTP body plus the status code, so a
// process can branch on it without a second lookup.
type Output struct {
	Response   string  `json:"response"`
	Citation   *string `json:"citation"`
	SessionID  *string `json:"sessionId"`
	StatusCode int     `json:"statusCode"`
}
