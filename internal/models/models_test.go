package models

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCitationRef(t *testing.T) {
	tests := []struct {
		name     string
		location Location
		expected *string
	}{
		{name: "s3 location", location: S3Location{URI: "s3://doth-iaus/doc1.pdf"}, expected: stringPtr("s3://doth-iaus/doc1.pdf")},
		{name: "web location", location: WebLocation{URL: "https://example.com/lei"}, expected: stringPtr("https://example.com/lei")},
		{name: "confluence location", location: OtherLocation{Type: "CONFLUENCE"}, expected: nil},
		{name: "nil location", location: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CitationRef(tt.location))
		})
	}
}

func TestGenerationResult_FirstLocation(t *testing.T) {
	t.Run("uses first reference of first citation", func(t *testing.T) {
		result := &GenerationResult{
			Citations: []Citation{
				{RetrievedReferences: []Reference{
					{Location: S3Location{URI: "s3://bucket/first.pdf"}},
					{Location: S3Location{URI: "s3://bucket/second.pdf"}},
				}},
				{RetrievedReferences: []Reference{
					{Location: WebLocation{URL: "https://ignored.example"}},
				}},
			},
		}

		loc, ok := result.FirstLocation()
		require.True(t, ok)
		assert.Equal(t, S3Location{URI: "s3://bucket/first.pdf"}, loc)
	})

	t.Run("first citation without references", func(t *testing.T) {
		result := &GenerationResult{
			Citations: []Citation{
				{RetrievedReferences: nil},
				{RetrievedReferences: []Reference{{Location: S3Location{URI: "s3://bucket/x.pdf"}}}},
			},
		}

		_, ok := result.FirstLocation()
		assert.False(t, ok)
	})

	t.Run("no citations", func(t *testing.T) {
		_, ok := (&GenerationResult{}).FirstLocation()
		assert.False(t, ok)
	})

	t.Run("nil result", func(t *testing.T) {
		var result *GenerationResult
		_, ok := result.FirstLocation()
		assert.False(t, ok)
	})
}

func TestResponse_JSONAlwaysHasThreeKeys(t *testing.T) {
	tests := []struct {
		name     string
		response Response
	}{
		{name: "success with citation", response: NewSuccessResponse("answer", stringPtr("s3://b/k"), "abc123")},
		{name: "success without citation", response: NewSuccessResponse("answer", nil, "abc123")},
		{name: "server error", response: NewServerErrorResponse()},
		{name: "classified server error", response: NewServerErrorResponse().WithErrorCode("BACKEND_TIMEOUT")},
		{name: "client error", response: NewClientErrorResponse(http.StatusBadRequest, "question is required")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.response)
			require.NoError(t, err)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Len(t, body, 3)
			assert.Contains(t, body, "response")
			assert.Contains(t, body, "citation")
			assert.Contains(t, body, "sessionId")
		})
	}
}

func TestNewServerErrorResponse(t *testing.T) {
	resp := NewServerErrorResponse()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Server side error: please check function logs", resp.AnswerText)
	assert.Nil(t, resp.CitationRef)
	assert.Nil(t, resp.SessionID)
	assert.Equal(t, "", resp.Citation())
	assert.Equal(t, "", resp.Session())
	assert.Empty(t, resp.ErrorCode)

	classified := resp.WithErrorCode("MALFORMED_BACKEND_PAYLOAD")
	assert.Equal(t, "MALFORMED_BACKEND_PAYLOAD", classified.ErrorCode)
	assert.Empty(t, resp.ErrorCode)
	assert.Equal(t, resp.AnswerText, classified.AnswerText)
}
