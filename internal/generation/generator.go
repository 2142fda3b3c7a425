// Package generation streams answers from a chat completion model.
package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/mernjs/rag-pipeline/internal/retrieval"
)

const (
	// DefaultModel is the chat model used for answers.
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxTokens caps the length of a generated answer.
	DefaultMaxTokens = 1024
)

// Delta is one piece of a streamed answer. A Delta with Err set is the last
// one on the channel; its Text carries a readable diagnostic.
type Delta struct {
	Text string
	Err  error
}

// Generator streams an answer for a prompt. The channel is closed when the
// answer is complete, the provider fails, or ctx is cancelled.
type Generator interface {
	Stream(ctx context.Context, messages []retrieval.Message) <-chan Delta
}

// OpenAIGenerator streams chat completions from OpenAI.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIGenerator creates a generator. Empty model and non-positive
// maxTokens fall back to the defaults.
func NewOpenAIGenerator(client *openai.Client, model string, maxTokens int, temperature float64) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAIGenerator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Stream starts a completion and forwards content deltas in order.
func (g *OpenAIGenerator) Stream(ctx context.Context, messages []retrieval.Message) <-chan Delta {
	out := make(chan Delta)

	go func() {
		defer close(out)

		stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:               g.model,
			Messages:            toOpenAIMessages(messages),
			MaxCompletionTokens: openai.Int(int64(g.maxTokens)),
			Temperature:         openai.Float(g.temperature),
		})
		defer stream.Close()

		for stream.Next() {
			for _, choice := range stream.Current().Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case out <- Delta{Text: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- ErrorDelta(err):
			case <-ctx.Done():
			}
		}
	}()

	return out
}

// ErrorDelta wraps a terminal provider error as an inline diagnostic.
func ErrorDelta(err error) Delta {
	return Delta{
		Text: fmt.Sprintf("\n\n[generation error: %v]", err),
		Err:  err,
	}
}

func toOpenAIMessages(messages []retrieval.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case retrieval.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case retrieval.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
