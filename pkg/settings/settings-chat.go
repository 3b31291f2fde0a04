package settings

import (
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// ReasoningEffort selects how much deliberation a reasoning-tier model
// spends before answering. It is ignored by regular chat models.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

func ParseReasoningEffort(s string) (ReasoningEffort, error) {
	switch ReasoningEffort(s) {
	case ReasoningEffortLow, ReasoningEffortMedium, ReasoningEffortHigh:
		return ReasoningEffort(s), nil
	case "":
		return "", nil
	}
	return "", errors.Errorf("invalid reasoning effort %q (want low, medium or high)", s)
}

// ChatSettings are the generation parameters of a session. They are captured
// at session start and re-embedded verbatim into every persisted record.
type ChatSettings struct {
	Model            string          `yaml:"model"`
	SystemMessage    string          `yaml:"system_message,omitempty"`
	Temperature      *float64        `yaml:"temperature,omitempty"`
	TopP             *float64        `yaml:"top_p,omitempty"`
	MaxTokens        *int            `yaml:"max_tokens,omitempty"`
	FrequencyPenalty *float64        `yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `yaml:"presence_penalty,omitempty"`
	Stop             []string        `yaml:"stop,omitempty"`
	ReasoningEffort  ReasoningEffort `yaml:"reasoning_effort,omitempty"`
	Stream           bool            `yaml:"stream,omitempty"`
}

func NewChatSettings() *ChatSettings {
	return &ChatSettings{
		Stop:   []string{},
		Stream: true,
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}
