// Package modelclient defines the external LLM-collaborator contract the
// reasoning node calls into (§1 "Out of scope: ... the LLM client; only
// their interfaces are defined"). It is deliberately narrower than the
// teacher's multi-modal, tool-calling model.Client: the reasoning node
// drives the LLM with a single text prompt and parses a Thought/Action/
// Action Input/Final Answer structure out of the reply itself (§4.2), so no
// native tool-calling schema needs to cross this boundary.
package modelclient

import (
	"context"
	"errors"
)

type (
	// Request is one non-streaming completion call.
	Request struct {
		// SystemPrompt is the scenario system prompt plus tool/state
		// summary constructed by the reasoning node.
		SystemPrompt string
		// Messages is the recent conversation history (§4.2).
		Messages []Message
		// Temperature, low by default (§4.2: "low temperature (e.g. 0.1)").
		Temperature float32
		// MaxTokens bounds the completion length.
		MaxTokens int
	}

	// Message is one turn of conversation passed to the model.
	Message struct {
		Role    string
		Content string
	}

	// Response is the model's reply plus usage accounting.
	Response struct {
		Text  string
		Usage TokenUsage
	}

	// TokenUsage records completion accounting for telemetry.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
	}

	// Client is the external LLM collaborator interface. Concrete adapters
	// (modelclient/anthropic, modelclient/openai, modelclient/bedrock) wrap
	// a provider SDK; the reasoning node depends only on this interface so
	// LLM_PROVIDER (§6) can switch providers without touching engine code.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
	}
)

// ErrRateLimited is returned (wrapped) by adapters when the provider
// reports a rate-limit error. The reasoning node does not branch on it: it
// treats every Complete error alike, retrying once immediately with a shorter
// prompt and then using its fallback heuristic, with no backoff delay.
var ErrRateLimited = errors.New("modelclient: rate limited")
