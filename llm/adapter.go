// Package llm defines the narrow contract an interview uses to call a
// language model, independent of provider, plus concrete adapters.
package llm

import (
	"context"
	"encoding/json"

	"github.com/nurv/edsl/ratelimit"
)

// RateLimits is the requests-per-minute/tokens-per-minute an adapter
// advertises for its model, fed into a ratelimit.BucketCollection.
type RateLimits = ratelimit.ModelLimits

// Adapter is the external interface an interview drives; everything
// about the underlying provider is opaque beyond this contract, mirroring
// the teacher's narrow LLMProvider boundary (internal/agent/provider_types.go)
// but trimmed to what batch orchestration needs (no streaming, no tools).
type Adapter interface {
	// Call sends one prompt pair to the model and returns the raw
	// provider response body.
	Call(ctx context.Context, userPrompt, systemPrompt, parameters string) (json.RawMessage, error)

	// Parse extracts the model's text answer from a raw response
	// previously returned by Call.
	Parse(raw json.RawMessage) (string, error)

	// RateLimits reports this model's advertised request/token limits.
	RateLimits() RateLimits

	// ModelName identifies the model this adapter talks to.
	ModelName() string
}
