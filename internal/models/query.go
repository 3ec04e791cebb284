// internal/models/query.go
package models

// Query is one inbound question. It lives for a single request.
type Query struct {
	Text      string `json:"question"`
	SessionID string `json:"requestSessionId,omitempty"`
	ModelID   string `json:"modelId,omitempty"`
}

// HasSession reports whether the caller continues a prior conversation.
func (q Query) HasSession() bool {
	return q.SessionID != ""
}

// GenerationRequest is what the retrieval-and-generation backend receives.
type GenerationRequest struct {
	SessionID       string
	InputText       string
	KnowledgeBaseID string
	ModelARN        string
}

// GenerationResult is the backend answer for one request.
type GenerationResult struct {
	AnswerText string
	SessionID  string
	Citations  []Citation
}

// FirstLocation returns the location of the first reference of the first
// citation. Later citations and references are never consulted.
func (r *GenerationResult) FirstLocation() (Location, bool) {
	if r == nil || len(r.Citations) == 0 {
		return nil, false
	}
	refs := r.Citations[0].RetrievedReferences
	if len(refs) == 0 || refs[0].Location == nil {
		return nil, false
	}
	return refs[0].Location, true
}
