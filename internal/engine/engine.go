package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrOracle marks a failed inference call: the backend was unreachable, the
// model could not be loaded, or the stream broke off.
var ErrOracle = errors.New("oracle failure")

// Streamer produces a completion as a sequence of text chunks.
type Streamer interface {
	// Stream sends messages to the given model and calls onChunk with every
	// generated piece of text. Returning an error from onChunk stops the
	// stream and Stream returns that error.
	Stream(ctx context.Context, model string, messages []Message, opts Options, onChunk func(string) error) error
}

// Engine abstracts a text-completion backend (a local Ollama server or any
// provider reachable through langchaingo). Consumers such as intent
// extraction use this interface instead of depending on a concrete client.
type Engine interface {
	Streamer

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by backends that host models locally and can
// download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

var errLimit = errors.New("output limit reached")

// Complete streams a response from s and accumulates it into one string.
// Accumulation stops once limit bytes have been collected, never splitting a
// rune; the partial text is returned without error. A limit of zero or less
// means unbounded.
func Complete(ctx context.Context, s Streamer, model string, messages []Message, opts Options, limit int) (string, error) {
	var sb strings.Builder
	err := s.Stream(ctx, model, messages, opts, func(piece string) error {
		if limit > 0 && sb.Len()+len(piece) >= limit {
			cut := limit - sb.Len()
			for cut > 0 && cut < len(piece) && !utf8.RuneStart(piece[cut]) {
				cut--
			}
			sb.WriteString(piece[:cut])
			return errLimit
		}
		sb.WriteString(piece)
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sb.String(), fmt.Errorf("%w: %w", ErrOracle, ctxErr)
		}
		return sb.String(), fmt.Errorf("%w: %w", ErrOracle, err)
	}
	return sb.String(), nil
}
