package multicaller

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/llmr-project/llmr/pkg/backend"
	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/helpers"
	"github.com/llmr-project/llmr/pkg/history"
	"github.com/llmr-project/llmr/pkg/settings"
)

const defaultConcurrency = 4

// Caller fires the same prompt at a backend N times and records every
// attempt, successes and failures alike. Useful for sampling the variance
// of a model's answers to one question.
type Caller struct {
	backend     backend.Backend
	store       history.Store
	concurrency int
}

type CallerOption func(*Caller)

// WithConcurrency caps how many attempts run in parallel.
func WithConcurrency(n int) CallerOption {
	return func(c *Caller) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewCaller(backend_ backend.Backend, store history.Store, options ...CallerOption) *Caller {
	ret := &Caller{
		backend:     backend_,
		store:       store,
		concurrency: defaultConcurrency,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Run performs n attempts and persists the batch record. A failed attempt
// is stored with its error text instead of aborting the run; only a
// canceled context stops the remaining attempts. The returned responses are
// ordered by attempt number.
func (c *Caller) Run(ctx context.Context, prompt string, n int, settings_ *settings.Settings) ([]history.Response, string, error) {
	if n <= 0 {
		return nil, "", errors.New("attempt count must be positive")
	}
	if err := settings_.Validate(); err != nil {
		return nil, "", err
	}

	conv := conversation.Conversation{}
	if settings_.Chat.SystemMessage != "" {
		conv = append(conv, conversation.NewMessage(conversation.RoleSystem, settings_.Chat.SystemMessage))
	}
	conv = append(conv, conversation.NewMessage(conversation.RoleUser, prompt))

	responses := make([]history.Response, n)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.concurrency)

	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}

			text, err := backend.Collect(egCtx, c.backend, conv)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Warn().Err(err).Int("attempt", i+1).Msg("attempt failed")
				responses[i] = history.Response{Attempt: i + 1, Error: err.Error()}
				return nil
			}

			log.Debug().Int("attempt", i+1).Int("total", n).Msg("attempt completed")
			responses[i] = history.Response{Attempt: i + 1, Assistant: text}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, "", err
	}

	runID := helpers.NewID()
	path := ""
	if c.store != nil {
		var err error
		path, err = c.store.SaveResponses(runID, settings_, prompt, responses)
		if err != nil {
			return responses, "", errors.Wrap(err, "failed to persist batch record")
		}
	}

	return responses, path, nil
}
