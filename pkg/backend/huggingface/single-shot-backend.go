package huggingface

import (
	"context"
	"regexp"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/llmr-project/llmr/pkg/backend"
	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/events"
	"github.com/llmr-project/llmr/pkg/helpers"
	"github.com/llmr-project/llmr/pkg/settings"
)

const defaultMaxNewTokens = 512

var _ backend.Backend = &SingleShotBackend{}

// SingleShotBackend flattens the conversation into one text-generation
// prompt, issues a single blocking request and emits the whole reply as one
// fragment. The generated text echoes the prompt and may run past the next
// turn marker, so the reply is cut out of it before being emitted.
type SingleShotBackend struct {
	Settings         *settings.Settings
	publisherManager *events.PublisherManager
}

type BackendOption func(*SingleShotBackend) error

func WithPublisherManager(publisherManager *events.PublisherManager) BackendOption {
	return func(b *SingleShotBackend) error {
		b.publisherManager = publisherManager
		return nil
	}
}

func NewSingleShotBackend(settings_ *settings.Settings, options ...BackendOption) (*SingleShotBackend, error) {
	ret := &SingleShotBackend{
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

func (b *SingleShotBackend) AddPublishedTopic(publisher message.Publisher, topic string) error {
	b.publisherManager.RegisterPublisher(topic, publisher)
	return nil
}

func (b *SingleShotBackend) Stream(
	ctx context.Context,
	messages conversation.Conversation,
) (<-chan helpers.Result[string], error) {
	if b.Settings.Chat == nil || b.Settings.Chat.Model == "" {
		return nil, settings.ErrMissingModel
	}

	client, err := NewClient(b.Settings.Client)
	if err != nil {
		return nil, err
	}

	prompt := messages.SinglePrompt()
	req := makeInferenceRequest(b.Settings.Chat, prompt)

	metadata := events.EventMetadata{
		ID:          uuid.New(),
		SessionID:   events.SessionIDFromContext(ctx),
		Model:       b.Settings.Chat.Model,
		Temperature: b.Settings.Chat.Temperature,
		TopP:        b.Settings.Chat.TopP,
	}

	b.publisherManager.PublishBlind(events.NewStartEvent(metadata))

	c := make(chan helpers.Result[string], 1)

	go func() {
		defer close(c)

		generated, err := client.Generate(ctx, b.Settings.Chat.Model, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				b.publisherManager.PublishBlind(events.NewInterruptEvent(metadata, ""))
				c <- helpers.NewErrorResult[string](err)
				return
			}

			b.publisherManager.PublishBlind(events.NewErrorEvent(metadata, err))
			c <- helpers.NewErrorResult[string](err)
			return
		}

		reply := extractReply(generated, prompt, stopMarker(b.Settings.Chat))

		b.publisherManager.PublishBlind(events.NewPartialEvent(metadata, reply, reply))
		b.publisherManager.PublishBlind(events.NewFinalEvent(metadata, reply))
		c <- helpers.NewValueResult[string](reply)
	}()

	return c, nil
}

func makeInferenceRequest(chatSettings *settings.ChatSettings, prompt string) inferenceRequest {
	temperature := 0.0
	if chatSettings.Temperature != nil {
		temperature = *chatSettings.Temperature
	}
	maxNewTokens := defaultMaxNewTokens
	if chatSettings.MaxTokens != nil {
		maxNewTokens = *chatSettings.MaxTokens
	}
	frequencyPenalty := 0.0
	if chatSettings.FrequencyPenalty != nil {
		frequencyPenalty = *chatSettings.FrequencyPenalty
	}
	presencePenalty := 0.0
	if chatSettings.PresencePenalty != nil {
		presencePenalty = *chatSettings.PresencePenalty
	}

	stop := chatSettings.Stop
	if len(stop) == 0 {
		stop = []string{conversation.UserLabel}
	}

	parameters := inferenceParameters{
		Temperature:      temperature,
		MaxNewTokens:     maxNewTokens,
		FrequencyPenalty: frequencyPenalty,
		PresencePenalty:  presencePenalty,
		Stop:             stop,
	}

	// top_p is only valid strictly between 0 and 1 for this endpoint.
	if chatSettings.TopP != nil && *chatSettings.TopP > 0.0 && *chatSettings.TopP < 1.0 {
		parameters.TopP = chatSettings.TopP
	}

	return inferenceRequest{
		Inputs:     prompt,
		Parameters: parameters,
		Options: inferenceOptions{
			WaitForModel: false,
			UseCache:     false,
		},
	}
}

func stopMarker(chatSettings *settings.ChatSettings) string {
	if len(chatSettings.Stop) > 0 && chatSettings.Stop[0] != "" {
		return chatSettings.Stop[0]
	}
	return conversation.UserLabel
}

// extractReply cuts the assistant reply out of the raw generated text. The
// endpoint echoes the prompt, and smaller models keep generating past the
// stop marker into a fabricated next user turn.
func extractReply(generated string, prompt string, marker string) string {
	reply := generated
	if strings.HasPrefix(reply, prompt) {
		reply = reply[len(prompt):]
	}
	reply = strings.TrimSpace(reply)

	if marker != "" {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(marker))
		if err == nil {
			if loc := re.FindStringIndex(reply); loc != nil {
				reply = reply[:loc[0]]
			}
		}
	}

	return strings.TrimSpace(reply)
}
