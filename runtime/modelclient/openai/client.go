// Package openai implements modelclient.Client on top of the OpenAI Chat
// Completions API via github.com/openai/openai-go, selected when
// LLM_PROVIDER=openai (§6). Mirrors the adapter-over-interface shape of
// modelclient/anthropic so both can be swapped behind the same Client seam.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"goa.design/apron-incident/runtime/modelclient"
)

type (
	// ChatClient captures the subset of the openai-go client used here.
	ChatClient interface {
		New(ctx context.Context, params sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the adapter.
	Options struct {
		DefaultModel string
		Temperature  float64
	}

	// Client implements modelclient.Client via OpenAI Chat Completions.
	Client struct {
		chat  ChatClient
		model string
		temp  float64
	}
)

// New builds an OpenAI-backed client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, model: opts.DefaultModel, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP
// client, reading OPENAI_API_KEY when apiKey is empty.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c := sdk.NewClient(opts...)
	return New(&c.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Complete issues a Chat Completions request and returns the first choice's
// message content.
func (c *Client) Complete(ctx context.Context, req *modelclient.Request) (*modelclient.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, sdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, sdk.UserMessage(m.Content))
		}
	}
	params := sdk.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = float32(c.temp)
	}
	if temp > 0 {
		params.Temperature = sdk.Float(float64(temp))
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", modelclient.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	var text string
	var usage modelclient.TokenUsage
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	usage = modelclient.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return &modelclient.Response{Text: text, Usage: usage}, nil
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
