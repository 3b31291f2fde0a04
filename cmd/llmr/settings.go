package main

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/llmr-project/llmr/pkg/backend"
	"github.com/llmr-project/llmr/pkg/backend/huggingface"
	"github.com/llmr-project/llmr/pkg/backend/openai"
	"github.com/llmr-project/llmr/pkg/settings"
)

func settingsFromViper() (*settings.Settings, error) {
	s := settings.NewSettings()

	s.Chat.Model = viper.GetString("model")
	s.Chat.SystemMessage = viper.GetString("system-message")

	temperature := viper.GetFloat64("temperature")
	s.Chat.Temperature = &temperature
	topP := viper.GetFloat64("top-p")
	s.Chat.TopP = &topP

	if maxTokens := viper.GetInt("max-tokens"); maxTokens > 0 {
		s.Chat.MaxTokens = &maxTokens
	}

	frequencyPenalty := viper.GetFloat64("frequency-penalty")
	s.Chat.FrequencyPenalty = &frequencyPenalty
	presencePenalty := viper.GetFloat64("presence-penalty")
	s.Chat.PresencePenalty = &presencePenalty

	s.Chat.Stop = viper.GetStringSlice("stop")

	effort, err := settings.ParseReasoningEffort(viper.GetString("reasoning-effort"))
	if err != nil {
		return nil, err
	}
	s.Chat.ReasoningEffort = effort

	s.Client.APIKey = viper.GetString("api-key")
	s.Client.BaseURL = viper.GetString("base-url")

	return s, nil
}

// makeBackend builds the selected backend and, when a publisher is given,
// wires its events onto the chat topic.
func makeBackend(s *settings.Settings, publisher message.Publisher) (backend.Backend, error) {
	switch viper.GetString("backend") {
	case "openai":
		s.Chat.Stream = true
		b, err := openai.NewChatBackend(s)
		if err != nil {
			return nil, err
		}
		if publisher != nil {
			if err := b.AddPublishedTopic(publisher, "chat"); err != nil {
				return nil, err
			}
		}
		return b, nil

	case "huggingface":
		s.Chat.Stream = false
		b, err := huggingface.NewSingleShotBackend(s)
		if err != nil {
			return nil, err
		}
		if publisher != nil {
			if err := b.AddPublishedTopic(publisher, "chat"); err != nil {
				return nil, err
			}
		}
		return b, nil
	}

	return nil, errors.Errorf("unknown backend %q (want openai or huggingface)", viper.GetString("backend"))
}
