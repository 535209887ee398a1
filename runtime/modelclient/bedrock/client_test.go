package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/modelclient"
)

type stubRuntimeClient struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.out, s.err
}

func TestNewRejectsMissingRuntime(t *testing.T) {
	_, err := New(Options{DefaultModel: "anthropic.claude-3"})
	assert.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := New(Options{Runtime: &stubRuntimeClient{}})
	assert.Error(t, err)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := New(Options{Runtime: &stubRuntimeClient{}, DefaultModel: "anthropic.claude-3"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &modelclient.Request{})
	assert.Error(t, err)
}

func TestCompleteExtractsTextAndUsageFromConverseOutput(t *testing.T) {
	stub := &stubRuntimeClient{
		out: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role:    brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "acknowledged"}},
				},
			},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(18),
				OutputTokens: aws.Int32(7),
			},
		},
	}
	c, err := New(Options{Runtime: stub, DefaultModel: "anthropic.claude-3", MaxTokens: 512})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &modelclient.Request{
		SystemPrompt: "you are a duty officer assistant",
		Messages:     []modelclient.Message{{Role: "user", Content: "status?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "acknowledged", resp.Text)
	assert.Equal(t, 18, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	require.Len(t, stub.lastInput.System, 1)
	block, ok := stub.lastInput.System[0].(*brtypes.SystemContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "you are a duty officer assistant", block.Value)
	require.NotNil(t, stub.lastInput.InferenceConfig.MaxTokens)
	assert.Equal(t, int32(512), *stub.lastInput.InferenceConfig.MaxTokens)
}
