package openai

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/settings"
)

// isReasoningModel reports whether the model rejects sampling parameters
// and uses max_completion_tokens instead of max_tokens.
func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5")
}

func makeClient(clientSettings *settings.ClientSettings) (*go_openai.Client, error) {
	if clientSettings == nil {
		return nil, errors.New("no client settings")
	}
	if clientSettings.APIKey == "" {
		return nil, settings.ErrMissingAPIKey
	}

	config := go_openai.DefaultConfig(clientSettings.APIKey)
	if clientSettings.BaseURL != "" {
		config.BaseURL = clientSettings.BaseURL
	}
	config.HTTPClient = &http.Client{
		Timeout: clientSettings.TimeoutOrDefault(),
	}

	return go_openai.NewClientWithConfig(config), nil
}

func makeCompletionRequest(
	s *settings.Settings,
	messages conversation.Conversation,
) (*go_openai.ChatCompletionRequest, error) {
	if s.Chat == nil {
		return nil, errors.New("no chat settings")
	}

	chatSettings := s.Chat
	if chatSettings.Model == "" {
		return nil, settings.ErrMissingModel
	}
	model := chatSettings.Model

	msgs_ := []go_openai.ChatCompletionMessage{}
	for _, msg := range messages {
		msgs_ = append(msgs_, go_openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	temperature := 0.0
	if chatSettings.Temperature != nil {
		temperature = *chatSettings.Temperature
	}
	topP := 0.0
	if chatSettings.TopP != nil {
		topP = *chatSettings.TopP
	}
	maxTokens := 0
	if chatSettings.MaxTokens != nil {
		maxTokens = *chatSettings.MaxTokens
	}
	presencePenalty := 0.0
	if chatSettings.PresencePenalty != nil {
		presencePenalty = *chatSettings.PresencePenalty
	}
	frequencyPenalty := 0.0
	if chatSettings.FrequencyPenalty != nil {
		frequencyPenalty = *chatSettings.FrequencyPenalty
	}

	maxCompletionTokens := 0
	reasoningEffort := ""
	if isReasoningModel(model) {
		// Reasoning models reject sampling knobs and the legacy token cap.
		maxCompletionTokens = maxTokens
		maxTokens = 0
		temperature = 0
		topP = 0
		presencePenalty = 0
		frequencyPenalty = 0
		reasoningEffort = string(chatSettings.ReasoningEffort)
	}

	stream := chatSettings.Stream
	var streamOptions *go_openai.StreamOptions
	if stream {
		streamOptions = &go_openai.StreamOptions{IncludeUsage: true}
	}

	req := go_openai.ChatCompletionRequest{
		Model:               model,
		Messages:            msgs_,
		MaxTokens:           maxTokens,
		MaxCompletionTokens: maxCompletionTokens,
		Temperature:         float32(temperature),
		TopP:                float32(topP),
		Stream:              stream,
		StreamOptions:       streamOptions,
		Stop:                chatSettings.Stop,
		PresencePenalty:     float32(presencePenalty),
		FrequencyPenalty:    float32(frequencyPenalty),
		ReasoningEffort:     reasoningEffort,
	}

	return &req, nil
}
