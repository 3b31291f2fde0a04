package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/llmr-project/llmr/pkg/settings"
)

const defaultBaseURL = "https://api-inference.huggingface.co"

// ErrModelWarmingUp is returned when the serverless endpoint answers 503
// because the model is still being loaded. Retrying shortly usually works.
var ErrModelWarmingUp = errors.New("model is loading, try again shortly")

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type inferenceParameters struct {
	Temperature      float64  `json:"temperature"`
	MaxNewTokens     int      `json:"max_new_tokens"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	Stop             []string `json:"stop"`
	TopP             *float64 `json:"top_p,omitempty"`
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
	Options    inferenceOptions    `json:"options"`
}

type inferenceResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Client issues text-generation requests against the HuggingFace serverless
// inference API.
type Client struct {
	httpClient *http.Client
	apiToken   string
	BaseURL    string
}

func NewClient(clientSettings *settings.ClientSettings) (*Client, error) {
	if clientSettings == nil {
		return nil, errors.New("no client settings")
	}
	if clientSettings.APIKey == "" {
		return nil, settings.ErrMissingAPIKey
	}

	baseURL := clientSettings.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: clientSettings.TimeoutOrDefault(),
		},
		apiToken: clientSettings.APIKey,
		BaseURL:  baseURL,
	}, nil
}

// Generate runs a single text-generation call and returns the raw generated
// text, which usually still contains the prompt echo.
func (c *Client) Generate(ctx context.Context, model string, req inferenceRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s", c.BaseURL, model)
	req_, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req_.Header.Set("Authorization", "Bearer "+c.apiToken)
	req_.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req_)
	if err != nil {
		return "", err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrModelWarmingUp
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("request failed with status code %d: %s", resp.StatusCode, string(respBody))
	}

	return parseGeneratedText(respBody)
}

// parseGeneratedText accepts both response shapes the endpoint produces, a
// list of objects or a single object. A missing generated_text field decodes
// to "".
func parseGeneratedText(body []byte) (string, error) {
	var list []inferenceResponse
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return "", nil
		}
		return list[0].GeneratedText, nil
	}

	var single inferenceResponse
	if err := json.Unmarshal(body, &single); err != nil {
		return "", errors.Wrap(err, "failed to decode inference response")
	}
	return single.GeneratedText, nil
}
