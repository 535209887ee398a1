// Package bedrock implements modelclient.Client on top of the AWS Bedrock
// Converse API via github.com/aws/aws-sdk-go-v2/service/bedrockruntime,
// grounded on features/model/bedrock/client.go but narrowed to a single
// text-only Converse call (no tool configuration, no streaming): the
// enterprise deployment path for LLM_PROVIDER=bedrock (§6).
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"goa.design/apron-incident/runtime/modelclient"
)

type (
	// RuntimeClient is the subset of the Bedrock runtime client used here,
	// satisfied by *bedrockruntime.Client or a test double.
	RuntimeClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	}

	// Options configures the adapter.
	Options struct {
		Runtime      RuntimeClient
		DefaultModel string
		MaxTokens    int
		Temperature  float32
	}

	// Client implements modelclient.Client via AWS Bedrock Converse.
	Client struct {
		runtime RuntimeClient
		model   string
		maxTok  int
		temp    float32
	}
)

// New builds a Bedrock-backed client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: opts.Runtime, model: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// Complete issues a Converse call and returns the assistant's text content.
func (c *Client) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	msgs := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := brtypes.ConversationRoleUser
		if m.Role == "assistant" {
			role = brtypes.ConversationRoleAssistant
		}
		msgs = append(msgs, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.model),
		Messages: msgs,
	}
	if req.SystemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}
	infConfig := &brtypes.InferenceConfiguration{}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens > 0 {
		mt := int32(maxTokens)
		infConfig.MaxTokens = &mt
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		t := temp
		infConfig.Temperature = &t
	}
	input.InferenceConfig = infConfig

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isThrottled(err) {
			return nil, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	var text string
	if msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}
	usage := modelclient.TokenUsage{}
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return &modelclient.Response{Text: text, Usage: usage}, nil
}

func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ThrottlingException"
	}
	return false
}
