package settings

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingModel  = errors.New("no model specified")
	ErrMissingAPIKey = errors.New("no API key specified")
)

// Settings bundle everything one session needs to talk to a backend.
type Settings struct {
	Chat   *ChatSettings   `yaml:"chat,omitempty"`
	Client *ClientSettings `yaml:"client,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{
		Chat:   NewChatSettings(),
		Client: NewClientSettings(),
	}
}

func NewSettingsFromYAML(r io.Reader) (*Settings, error) {
	s := NewSettings()
	if err := yaml.NewDecoder(r).Decode(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if s.Chat == nil {
		s.Chat = NewChatSettings()
	}
	if s.Client == nil {
		s.Client = NewClientSettings()
	}
	return s, nil
}

// Validate reports configuration failures. These are the only failures that
// abort before a session exists; everything later is converted into a
// conversational turn instead.
func (s *Settings) Validate() error {
	if s == nil || s.Chat == nil || s.Chat.Model == "" {
		return ErrMissingModel
	}
	if s.Client == nil || s.Client.APIKey == "" {
		return ErrMissingAPIKey
	}
	if _, err := ParseReasoningEffort(string(s.Chat.ReasoningEffort)); err != nil {
		return err
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return &Settings{
		Chat:   s.Chat.Clone(),
		Client: s.Client.Clone(),
	}
}

// Metadata renders the generation parameters as a flat map, the shape in
// which they are embedded into persisted history records. The API key is
// deliberately left out.
func (s *Settings) Metadata() map[string]interface{} {
	metadata := make(map[string]interface{})

	if s.Chat != nil {
		metadata["model"] = s.Chat.Model
		if s.Chat.SystemMessage != "" {
			metadata["system_message"] = s.Chat.SystemMessage
		}
		if s.Chat.Temperature != nil {
			metadata["temperature"] = *s.Chat.Temperature
		}
		if s.Chat.TopP != nil {
			metadata["top_p"] = *s.Chat.TopP
		}
		if s.Chat.MaxTokens != nil {
			metadata["max_tokens"] = *s.Chat.MaxTokens
		}
		if s.Chat.FrequencyPenalty != nil {
			metadata["frequency_penalty"] = *s.Chat.FrequencyPenalty
		}
		if s.Chat.PresencePenalty != nil {
			metadata["presence_penalty"] = *s.Chat.PresencePenalty
		}
		if len(s.Chat.Stop) > 0 {
			metadata["stop"] = s.Chat.Stop
		}
		if s.Chat.ReasoningEffort != "" {
			metadata["reasoning_effort"] = string(s.Chat.ReasoningEffort)
		}
	}

	if s.Client != nil && s.Client.BaseURL != "" {
		metadata["base_url"] = s.Client.BaseURL
	}

	return metadata
}
