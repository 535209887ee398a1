package openai

import (
	"context"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/modelclient"
)

type stubChatClient struct {
	lastParams sdk.ChatCompletionNewParams
	resp       *sdk.ChatCompletion
	err        error
}

func (s *stubChatClient) New(_ context.Context, params sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	s.lastParams = params
	return s.resp, s.err
}

func TestNewRejectsMissingClient(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "gpt-4o"})
	assert.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	_, err := New(&stubChatClient{}, Options{})
	assert.Error(t, err)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := New(&stubChatClient{}, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), &modelclient.Request{})
	assert.Error(t, err)
}

func TestCompleteReturnsFirstChoiceAndUsage(t *testing.T) {
	stub := &stubChatClient{
		resp: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{Message: sdk.ChatCompletionMessage{Content: "ack"}},
			},
			Usage: sdk.CompletionUsage{PromptTokens: 20, CompletionTokens: 6},
		},
	}
	c, err := New(stub, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &modelclient.Request{
		SystemPrompt: "you are a duty officer assistant",
		Messages:     []modelclient.Message{{Role: "user", Content: "status?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ack", resp.Text)
	assert.Equal(t, 20, resp.Usage.InputTokens)
	assert.Equal(t, 6, resp.Usage.OutputTokens)
	assert.Equal(t, "gpt-4o", stub.lastParams.Model)
	require.Len(t, stub.lastParams.Messages, 2)
}

func TestCompleteOmitsSystemMessageWhenPromptEmpty(t *testing.T) {
	stub := &stubChatClient{resp: &sdk.ChatCompletion{}}
	c, err := New(stub, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &modelclient.Request{
		Messages: []modelclient.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Len(t, stub.lastParams.Messages, 1)
}
