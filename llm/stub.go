package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// StubAdapter is a deterministic, network-free adapter for tests: it
// echoes the uppercased user prompt as its answer, so interview and
// jobs-runner tests can assert on exact output without a live model.
type StubAdapter struct {
	Model     string
	Limits    RateLimits
	FailUntil int // Call fails with Err until this many calls have been made
	Err       error
	calls     int
}

type stubResponse struct {
	Answer string `json:"answer"`
}

func (a *StubAdapter) ModelName() string      { return a.Model }
func (a *StubAdapter) RateLimits() RateLimits { return a.Limits }

func (a *StubAdapter) Call(ctx context.Context, userPrompt, systemPrompt, parameters string) (json.RawMessage, error) {
	a.calls++
	if a.calls <= a.FailUntil && a.Err != nil {
		return nil, a.Err
	}
	return json.Marshal(stubResponse{Answer: strings.ToUpper(userPrompt)})
}

func (a *StubAdapter) Parse(raw json.RawMessage) (string, error) {
	var resp stubResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Calls reports how many times Call has been invoked.
func (a *StubAdapter) Calls() int { return a.calls }
