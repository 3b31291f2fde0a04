package backend

import (
	"context"
	"strings"

	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/helpers"
)

// Backend produces assistant text for a conversation as a stream of
// fragments. A delta-streaming backend sends many small fragments; a
// single-shot backend sends exactly one. The channel is closed when the
// turn is over, and an error result on the channel terminates the turn.
//
// Stream returns an error immediately only when the request could not be
// started at all (bad settings, connection refused before any fragment).
type Backend interface {
	Stream(ctx context.Context, conv conversation.Conversation) (<-chan helpers.Result[string], error)
}

// Collect drains a backend stream into the full assistant text. It stops
// early when ctx is canceled or the stream yields an error.
func Collect(ctx context.Context, b Backend, conv conversation.Conversation) (string, error) {
	stream, err := b.Stream(ctx, conv)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case result, ok := <-stream:
			if !ok {
				return sb.String(), nil
			}
			fragment, err := result.Value()
			if err != nil {
				return sb.String(), err
			}
			sb.WriteString(fragment)
		}
	}
}
