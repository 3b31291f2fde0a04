package openai

import (
	"context"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/llmr-project/llmr/pkg/backend"
	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/events"
	"github.com/llmr-project/llmr/pkg/helpers"
	"github.com/llmr-project/llmr/pkg/settings"
)

var _ backend.Backend = &ChatBackend{}

// ChatBackend talks to the OpenAI chat completions API. With streaming
// enabled it emits one fragment per received delta; otherwise it emits the
// whole completion as a single fragment.
type ChatBackend struct {
	Settings         *settings.Settings
	publisherManager *events.PublisherManager
}

type BackendOption func(*ChatBackend) error

func WithPublisherManager(publisherManager *events.PublisherManager) BackendOption {
	return func(b *ChatBackend) error {
		b.publisherManager = publisherManager
		return nil
	}
}

func NewChatBackend(settings_ *settings.Settings, options ...BackendOption) (*ChatBackend, error) {
	ret := &ChatBackend{
		Settings:         settings_,
		publisherManager: events.NewPublisherManager(),
	}

	for _, option := range options {
		if err := option(ret); err != nil {
			return nil, err
		}
	}

	return ret, nil
}

func (b *ChatBackend) AddPublishedTopic(publisher message.Publisher, topic string) error {
	b.publisherManager.RegisterPublisher(topic, publisher)
	return nil
}

func (b *ChatBackend) Stream(
	ctx context.Context,
	messages conversation.Conversation,
) (<-chan helpers.Result[string], error) {
	client, err := makeClient(b.Settings.Client)
	if err != nil {
		return nil, err
	}

	req, err := makeCompletionRequest(b.Settings, messages)
	if err != nil {
		return nil, err
	}

	metadata := events.EventMetadata{
		ID:          uuid.New(),
		SessionID:   events.SessionIDFromContext(ctx),
		Model:       b.Settings.Chat.Model,
		Temperature: b.Settings.Chat.Temperature,
		TopP:        b.Settings.Chat.TopP,
	}

	b.publisherManager.PublishBlind(events.NewStartEvent(metadata))

	if req.Stream {
		stream, err := client.CreateChatCompletionStream(ctx, *req)
		if err != nil {
			b.publisherManager.PublishBlind(events.NewErrorEvent(metadata, err))
			return nil, err
		}

		c := make(chan helpers.Result[string])

		go func() {
			defer close(c)
			defer stream.Close()

			completion := ""

			for {
				select {
				case <-ctx.Done():
					b.publisherManager.PublishBlind(events.NewInterruptEvent(metadata, completion))
					c <- helpers.NewErrorResult[string](ctx.Err())
					return

				default:
					response, err := stream.Recv()

					if errors.Is(err, io.EOF) {
						b.publisherManager.PublishBlind(events.NewFinalEvent(metadata, completion))
						return
					}
					if err != nil {
						if errors.Is(err, context.Canceled) {
							b.publisherManager.PublishBlind(events.NewInterruptEvent(metadata, completion))
							c <- helpers.NewErrorResult[string](err)
							return
						}

						b.publisherManager.PublishBlind(events.NewErrorEvent(metadata, err))
						c <- helpers.NewErrorResult[string](err)
						return
					}

					// Usage-only chunks at the end of the stream have no choices.
					if len(response.Choices) == 0 {
						continue
					}
					delta := response.Choices[0].Delta.Content
					if delta == "" {
						continue
					}
					completion += delta

					b.publisherManager.PublishBlind(events.NewPartialEvent(metadata, delta, completion))
					c <- helpers.NewValueResult[string](delta)
				}
			}
		}()

		return c, nil
	}

	resp, err := client.CreateChatCompletion(ctx, *req)
	if errors.Is(err, context.Canceled) {
		b.publisherManager.PublishBlind(events.NewInterruptEvent(metadata, ""))
		return nil, err
	}
	if err != nil {
		b.publisherManager.PublishBlind(events.NewErrorEvent(metadata, err))
		return nil, err
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no completion choices returned")
		b.publisherManager.PublishBlind(events.NewErrorEvent(metadata, err))
		return nil, err
	}

	text := resp.Choices[0].Message.Content
	c := make(chan helpers.Result[string], 1)
	c <- helpers.NewValueResult[string](text)
	close(c)

	b.publisherManager.PublishBlind(events.NewPartialEvent(metadata, text, text))
	b.publisherManager.PublishBlind(events.NewFinalEvent(metadata, text))

	return c, nil
}
