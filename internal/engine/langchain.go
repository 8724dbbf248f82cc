package engine

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// LangChainEngine runs completions through any langchaingo model. It is used
// for hosted providers that have no local model store.
type LangChainEngine struct {
	llm llms.Model
}

// NewLangChainEngine wraps an already constructed langchaingo model.
func NewLangChainEngine(llm llms.Model) *LangChainEngine {
	return &LangChainEngine{llm: llm}
}

func (e *LangChainEngine) Stream(ctx context.Context, model string, messages []Message, opts Options, onChunk func(string) error) error {
	content := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		content[i] = llms.TextParts(chatRole(m.Role), m.Content)
	}

	callOpts := []llms.CallOption{
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onChunk(string(chunk))
		}),
	}
	if model != "" {
		callOpts = append(callOpts, llms.WithModel(model))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if len(opts.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(opts.Stop))
	}
	if opts.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*opts.Temperature))
	}

	resp, err := e.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return errors.New("no response choices")
	}
	return nil
}

// IsRunning reports whether a model is configured. Reachability of hosted
// providers surfaces as a Stream error.
func (e *LangChainEngine) IsRunning(context.Context) bool {
	return e.llm != nil
}

func chatRole(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
