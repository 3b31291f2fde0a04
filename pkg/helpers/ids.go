package helpers

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a 128-bit random identifier, hex-encoded without dashes.
// These are used as session and batch-run identifiers, and end up in
// persisted history filenames, which is why they stay dash-free.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
