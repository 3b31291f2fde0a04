package settings

import (
	"time"

	"github.com/huandu/go-clone"
	"gopkg.in/yaml.v3"
)

// ClientSettings describe how to reach a provider, independent of which
// model is asked for.
type ClientSettings struct {
	APIKey  string         `yaml:"api_key,omitempty"`
	BaseURL string         `yaml:"base_url,omitempty"`
	Timeout *time.Duration `yaml:"-"`
}

const defaultTimeout = 60 * time.Second

func NewClientSettings() *ClientSettings {
	t := defaultTimeout
	return &ClientSettings{
		Timeout: &t,
	}
}

// UnmarshalYAML converts the timeout from an integer number of seconds.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	type Alias ClientSettings
	aux := &struct {
		Timeout *int `yaml:"timeout,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(cs),
	}
	if err := value.Decode(aux); err != nil {
		return err
	}
	if aux.Timeout != nil {
		t := time.Duration(*aux.Timeout) * time.Second
		cs.Timeout = &t
	}
	return nil
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

// TimeoutOrDefault returns the configured request timeout, falling back to
// the 60 second transport default.
func (cs *ClientSettings) TimeoutOrDefault() time.Duration {
	if cs == nil || cs.Timeout == nil {
		return defaultTimeout
	}
	return *cs.Timeout
}
