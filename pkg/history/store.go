package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/llmr-project/llmr/pkg/conversation"
	"github.com/llmr-project/llmr/pkg/settings"
)

// Store persists finished turns and batch runs.
type Store interface {
	// SaveConversation writes the whole transcript of a session. It is
	// called after every completed turn and overwrites the previous file,
	// so the record on disk always reflects the full session.
	SaveConversation(sessionID string, settings_ *settings.Settings, messages conversation.Conversation) (string, error)
	// SaveResponses writes the result of a batch prompt run.
	SaveResponses(runID string, settings_ *settings.Settings, prompt string, responses []Response) (string, error)
	// LoadConversation reads a transcript back, for resuming a session.
	LoadConversation(sessionID string) (*Record, error)
}

// FileStore writes pretty-printed JSON records under a base directory,
// one file per session and one per batch run.
type FileStore struct {
	dir string
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

type FileStoreOption func(*FileStore)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		s.now = now
	}
}

func NewFileStore(dir string, options ...FileStoreOption) *FileStore {
	ret := &FileStore{
		dir: dir,
		now: time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *FileStore) conversationPath(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("chathistory_%s.json", sessionID))
}

func (s *FileStore) responsesPath(runID string) string {
	return filepath.Join(s.dir, "multicaller", fmt.Sprintf("multicaller_%s.json", runID))
}

func (s *FileStore) SaveConversation(
	sessionID string,
	settings_ *settings.Settings,
	messages conversation.Conversation,
) (string, error) {
	record := Record{
		Settings:     s.settingsBlock(settings_),
		Conversation: Pair(messages),
	}

	path := s.conversationPath(sessionID)
	if err := s.writeJSON(path, record); err != nil {
		return "", err
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("path", path).
		Int("turns", len(record.Conversation)).
		Msg("saved conversation")

	return path, nil
}

func (s *FileStore) SaveResponses(
	runID string,
	settings_ *settings.Settings,
	prompt string,
	responses []Response,
) (string, error) {
	settingsBlock := s.settingsBlock(settings_)
	settingsBlock["prompt"] = prompt
	settingsBlock["n"] = len(responses)

	record := BatchRecord{
		Settings:  settingsBlock,
		Responses: responses,
	}

	path := s.responsesPath(runID)
	if err := s.writeJSON(path, record); err != nil {
		return "", err
	}

	log.Debug().
		Str("run_id", runID).
		Str("path", path).
		Int("responses", len(record.Responses)).
		Msg("saved batch responses")

	return path, nil
}

func (s *FileStore) LoadConversation(sessionID string) (*Record, error) {
	b, err := os.ReadFile(s.conversationPath(sessionID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read conversation record")
	}

	record := &Record{}
	if err := json.Unmarshal(b, record); err != nil {
		return nil, errors.Wrap(err, "failed to decode conversation record")
	}

	return record, nil
}

func (s *FileStore) settingsBlock(settings_ *settings.Settings) map[string]interface{} {
	block := map[string]interface{}{}
	if settings_ != nil {
		block = settings_.Metadata()
	}
	block["downloaded_on"] = s.now().Format(downloadedOnLayout)
	return block
}

func (s *FileStore) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}

	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to encode record")
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrap(err, "failed to write record")
	}

	return nil
}
