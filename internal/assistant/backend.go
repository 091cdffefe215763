// Package assistant answers free-form mesh messages with a local
// language model. Generation is strictly one at a time and runs off the
// packet ingestion path.
package assistant

import (
	"context"
	"errors"
)

// Sentinel results from HandleMessage. Callers that care can errors.Is
// against these; the gateway has already sent any user-facing notice.
var (
	ErrDisabled    = errors.New("assistant disabled")
	ErrBusy        = errors.New("assistant busy")
	ErrRateLimited = errors.New("assistant rate limited")
)

// Backend is a loaded language model. Implementations must tolerate
// Generate being cancelled via ctx; a cancelled generation's output is
// discarded by the caller.
type Backend interface {
	// Load prepares the model at path. Called before any Generate.
	Load(path string) error

	// Unload releases the model. Safe to call when not loaded.
	Unload()

	// Generate produces a completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
