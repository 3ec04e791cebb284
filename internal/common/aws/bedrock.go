// internal/common/aws/bedrock.go
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/wakeupmh/pdf-rag/internal/common/errors"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

// BedrockAPI is the slice of the agent runtime client the gateway uses.
type BedrockAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// BedrockClient asks a Bedrock knowledge base and maps the answer into the
// domain model.
type BedrockClient struct {
	api BedrockAPI
}

// NewBedrockClient loads the default AWS credential chain for region. When
// httpClient is nil the SDK default transport is used.
func NewBedrockClient(ctx context.Context, region string, httpClient config.HTTPClient) (*BedrockClient, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockClient{api: bedrockagentruntime.NewFromConfig(cfg)}, nil
}

// NewBedrockClientWithAPI wraps an existing runtime client.
func NewBedrockClientWithAPI(api BedrockAPI) *BedrockClient {
	return &BedrockClient{api: api}
}

// RetrieveAndGenerate performs exactly one call. SDK errors are returned
// wrapped; a reply without output is errors.ErrMalformedBackendPayload.
func (c *BedrockClient) RetrieveAndGenerate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{
			Text: awssdk.String(req.InputText),
		},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: awssdk.String(req.KnowledgeBaseID),
				ModelArn:        awssdk.String(req.ModelARN),
			},
		},
	}
	if req.SessionID != "" {
		input.SessionId = awssdk.String(req.SessionID)
	}

	out, err := c.api.RetrieveAndGenerate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("retrieve and generate: %w", err)
	}
	if out == nil || out.Output == nil || out.Output.Text == nil {
		return nil, fmt.Errorf("%w: retrieve and generate returned no output", errors.ErrMalformedBackendPayload)
	}

	result := &models.GenerationResult{
		AnswerText: *out.Output.Text,
		SessionID:  awssdk.ToString(out.SessionId),
		Citations:  make([]models.Citation, 0, len(out.Citations)),
	}
	for _, c := range out.Citations {
		citation, err := toCitation(c)
		if err != nil {
			return nil, err
		}
		result.Citations = append(result.Citations, citation)
	}
	return result, nil
}

func toCitation(c types.Citation) (models.Citation, error) {
	var citation models.Citation
	if part := c.GeneratedResponsePart; part != nil && part.TextResponsePart != nil {
		citation.GeneratedResponsePart.Text = awssdk.ToString(part.TextResponsePart.Text)
		if span := part.TextResponsePart.Span; span != nil {
			citation.GeneratedResponsePart.Start = awssdk.ToInt32(span.Start)
			citation.GeneratedResponsePart.End = awssdk.ToInt32(span.End)
		}
	}
	for _, ref := range c.RetrievedReferences {
		location, err := toLocation(ref.Location)
		if err != nil {
			return models.Citation{}, err
		}
		reference := models.Reference{Location: location}
		if ref.Content != nil {
			reference.Content = awssdk.ToString(ref.Content.Text)
		}
		citation.RetrievedReferences = append(citation.RetrievedReferences, reference)
	}
	return citation, nil
}

// toLocation picks the variant by type tag. An S3 or WEB tag without its
// payload is errors.ErrMalformedBackendPayload; unknown tags are OtherLocation.
func toLocation(loc *types.RetrievalResultLocation) (models.Location, error) {
	if loc == nil {
		return nil, nil
	}
	switch loc.Type {
	case types.RetrievalResultLocationTypeS3:
		if loc.S3Location == nil || loc.S3Location.Uri == nil {
			return nil, fmt.Errorf("%w: S3 location without uri", errors.ErrMalformedBackendPayload)
		}
		return models.S3Location{URI: *loc.S3Location.Uri}, nil
	case types.RetrievalResultLocationTypeWeb:
		if loc.WebLocation == nil || loc.WebLocation.Url == nil {
			return nil, fmt.Errorf("%w: WEB location without url", errors.ErrMalformedBackendPayload)
		}
		return models.WebLocation{URL: *loc.WebLocation.Url}, nil
	}
	return models.OtherLocation{Type: string(loc.Type)}, nil
}
