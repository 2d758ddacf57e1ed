package insight

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockModel generates text through the Bedrock runtime Converse API.
// This is the default provider.
type BedrockModel struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int32
	temperature float32
}

var _ Model = (*BedrockModel)(nil)

// NewBedrockModel wraps a Bedrock runtime client.
func NewBedrockModel(client *bedrockruntime.Client, modelID string, maxTokens int) *BedrockModel {
	return &BedrockModel{
		client:      client,
		modelID:     modelID,
		maxTokens:   int32(maxTokens),
		temperature: 0.3,
	}
}

// Name returns the model identifier.
func (m *BedrockModel) Name() string {
	return m.modelID
}

// Generate sends the prompt as a single user message.
func (m *BedrockModel) Generate(ctx context.Context, prompt string) (string, Usage, error) {
	out, err := m.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(m.modelID),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: prompt},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(m.maxTokens),
			Temperature: aws.Float32(m.temperature),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", Usage{}, fmt.Errorf("unexpected output type %T", out.Output)
	}

	var text string
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text += t.Value
		}
	}
	if text == "" {
		return "", Usage{}, fmt.Errorf("empty response from model %s", m.modelID)
	}

	var usage Usage
	if out.Usage != nil {
		usage = Usage{
			PromptTokens:     int64(aws.ToInt32(out.Usage.InputTokens)),
			CompletionTokens: int64(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:      int64(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return text, usage, nil
}
