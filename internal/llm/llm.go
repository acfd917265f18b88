// Package llm abstracts the upstream language model. The relay talks to a
// Provider; the OpenAI implementation is the only one wired today, but the
// interface keeps the HTTP layer and the tests independent of it.
package llm

import (
	"context"

	"github.com/parley-chat/parley/internal/models"
)

// Request is one completion call: the context window, oldest first, plus the
// generation knobs resolved by the caller.
type Request struct {
	Messages    []models.Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Reply is the provider's answer with its token accounting.
type Reply struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider produces one completion per call. Implementations classify their
// failures onto the errs sentinels so callers can map them without knowing
// the provider.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}
