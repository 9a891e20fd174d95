// Package interview drives one (agent, scenario, model, iteration)
// through a survey's questions: cache probe, rate-limit gate, LM call,
// validation, and answer recording, honoring the survey's skip logic.
package interview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nurv/edsl/agent"
	"github.com/nurv/edsl/cache"
	"github.com/nurv/edsl/llm"
	"github.com/nurv/edsl/ratelimit"
	"github.com/nurv/edsl/retry"
	"github.com/nurv/edsl/rules"
	"github.com/nurv/edsl/scenario"
	"github.com/nurv/edsl/survey"
)

// Status is a question's position in its per-question state machine.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
	Skipped   Status = "skipped"
)

// Exception records one failure encountered while conducting an
// interview, kept for TaskHistory reporting.
type Exception struct {
	QuestionName string
	Kind         string
	Err          error
	Timestamp    time.Time
}

// Config carries the knobs Conduct needs beyond the interview's own
// identity: model parameters and the per-call timeout. Rate limits come
// from the adapter's RateLimits and the BucketCollection passed to Conduct.
type Config struct {
	Parameters string // canonical JSON, fed into the cache fingerprint
	Timeout    time.Duration
}

// Interview composes an Agent, a Scenario, a model adapter, and a Survey
// for a single run (one of possibly several iterations of the same
// combination).
type Interview struct {
	Agent     agent.Agent
	Scenario  scenario.Scenario
	Adapter   llm.Adapter
	Survey    *survey.Survey
	Iteration int
	Config    Config

	Answers    map[string]any
	Status     map[string]Status
	Exceptions []Exception
}

// New builds an Interview ready to Conduct.
func New(ag agent.Agent, sc scenario.Scenario, adapter llm.Adapter, sv *survey.Survey, iteration int, cfg Config) *Interview {
	return &Interview{
		Agent:     ag,
		Scenario:  sc,
		Adapter:   adapter,
		Survey:    sv,
		Iteration: iteration,
		Config:    cfg,
		Answers:   make(map[string]any),
		Status:    make(map[string]Status),
	}
}

// Result is the outcome of a completed interview, consumed by the jobs
// runner to build its aggregate Results.
type Result struct {
	Answers    map[string]any
	Status     map[string]Status
	Exceptions []Exception
}

func estimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / 4.0))
}

// Conduct drives the interview to completion: repeatedly asks the
// Survey for the next question until EndOfSurvey, running the cache
// probe / rate-limit / LM-call / validate / store protocol for each one.
func (iv *Interview) Conduct(ctx context.Context, c *cache.Cache, buckets *ratelimit.BucketCollection) (*Result, error) {
	currentQ := 0

	for {
		question, qErr := iv.Survey.QuestionAt(currentQ)
		if qErr != nil {
			return nil, qErr
		}

		iv.Status[question.Name()] = Running
		if err := iv.askOne(ctx, c, buckets, currentQ, question); err != nil {
			iv.recordException(question.Name(), classifyKind(err), err)
			iv.Status[question.Name()] = Failed
			if iv.dependsOnFailedQuestion(currentQ) {
				iv.skipDependents(currentQ)
				return iv.result(), nil
			}
		} else {
			iv.Status[question.Name()] = Succeeded
		}

		// Routing is evaluated only now, after currentQ's own answer (if
		// any) has been recorded: a rule at currentQ may reference that
		// answer directly, e.g. "q1 == 'yes'", and evaluating against
		// iv.Answers before it holds q1 would fail to compile.
		//
		// RuleCannotEvaluate and NoRulesAtNode are both fatal to the
		// interview: a well-formed survey never reaches either.
		nq, err := iv.Survey.NextQuestion(currentQ, iv.Answers)
		if err != nil {
			return nil, err
		}

		if nq.NextQ == rules.EndOfSurvey {
			return iv.result(), nil
		}
		iv.skipBetween(currentQ, nq.NextQ)
		currentQ = nq.NextQ
	}
}

func (iv *Interview) askOne(ctx context.Context, c *cache.Cache, buckets *ratelimit.BucketCollection, index int, question survey.Question) error {
	userPrompt, err := iv.Survey.ComposePrompt(index, iv.Agent.TraitContext(), iv.Scenario.Variables, iv.Answers)
	if err != nil {
		return err
	}
	systemPrompt := iv.Agent.Instructions

	var rawText string
	if cached, ok := c.Fetch(iv.Adapter.ModelName(), iv.Config.Parameters, systemPrompt, userPrompt, iv.Iteration); ok {
		rawText = cached
	} else {
		text, err := iv.callWithRetry(ctx, buckets, userPrompt, systemPrompt)
		if err != nil {
			return err
		}
		rawText = text
		c.Store(iv.Adapter.ModelName(), iv.Config.Parameters, systemPrompt, userPrompt, rawText, iv.Iteration)
	}

	answer, err := iv.validateWithRetry(ctx, buckets, question, rawText, userPrompt, systemPrompt)
	if err != nil {
		return err
	}
	iv.Answers[question.Name()] = answer
	return nil
}

// callWithRetry performs the rate-limit gate and LM call with the
// transient-failure backoff schedule.
func (iv *Interview) callWithRetry(ctx context.Context, buckets *ratelimit.BucketCollection, userPrompt, systemPrompt string) (string, error) {
	timeout := iv.Config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var text string
	result := retry.Do(ctx, retry.AdapterConfig(), func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		limits := iv.Adapter.RateLimits()
		if err := buckets.RequestsBucket(iv.Adapter.ModelName(), limits).Take(callCtx, 1); err != nil {
			return wrapBucketErr(err)
		}
		tokenCost := float64(estimateTokens(systemPrompt) + estimateTokens(userPrompt))
		if err := buckets.TokensBucket(iv.Adapter.ModelName(), limits).Take(callCtx, tokenCost); err != nil {
			return wrapBucketErr(err)
		}

		raw, callErr := iv.Adapter.Call(callCtx, userPrompt, systemPrompt, iv.Config.Parameters)
		if callErr != nil {
			if _, ok := callErr.(*llm.PermanentError); ok {
				return retry.Permanent(callErr)
			}
			return callErr
		}
		parsed, parseErr := iv.Adapter.Parse(raw)
		if parseErr != nil {
			return retry.Permanent(parseErr)
		}
		text = parsed
		return nil
	})
	if result.Err != nil {
		return "", result.Err
	}
	return text, nil
}

// wrapBucketErr turns a BucketCapacityExceeded into a permanent retry
// error (no amount of waiting fixes a misconfigured limit) and leaves
// Cancelled to propagate as-is.
func wrapBucketErr(err error) error {
	if _, ok := err.(*ratelimit.BucketCapacityExceeded); ok {
		return retry.Permanent(err)
	}
	return err
}

// validateWithRetry validates rawText against question, re-asking the LM
// up to the validation retry budget if it keeps rejecting the answer.
func (iv *Interview) validateWithRetry(ctx context.Context, buckets *ratelimit.BucketCollection, question survey.Question, rawText, userPrompt, systemPrompt string) (any, error) {
	answer, err := question.Validate(rawText)
	if err == nil {
		return answer, nil
	}

	cfg := retry.ValidationConfig()
	var lastErr error = err
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		text, callErr := iv.callWithRetry(ctx, buckets, userPrompt, systemPrompt)
		if callErr != nil {
			return nil, callErr
		}
		answer, validateErr := question.Validate(text)
		if validateErr == nil {
			return answer, nil
		}
		lastErr = validateErr
	}
	return nil, lastErr
}

func (iv *Interview) recordException(questionName, kind string, err error) {
	iv.Exceptions = append(iv.Exceptions, Exception{
		QuestionName: questionName,
		Kind:         kind,
		Err:          err,
		Timestamp:    time.Now(),
	})
}

func classifyKind(err error) string {
	var transient *llm.TransientError
	var permanent *llm.PermanentError
	var overCapacity *ratelimit.BucketCapacityExceeded
	var cancelled *ratelimit.Cancelled

	switch {
	case errors.As(err, &transient):
		return "transient_adapter_error"
	case errors.As(err, &permanent):
		return "permanent_adapter_error"
	case errors.As(err, &overCapacity):
		return "bucket_capacity_exceeded"
	case errors.As(err, &cancelled):
		return "cancelled"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "validation_error"
	}
}

// dependsOnFailedQuestion reports whether any not-yet-asked question's
// routing depends on the answer that just failed, per the survey's DAG.
func (iv *Interview) dependsOnFailedQuestion(failedQ int) bool {
	dag := iv.Survey.Rules.DAG()
	for _, parents := range dag {
		if _, ok := parents[failedQ]; ok {
			return true
		}
	}
	return false
}

// skipDependents marks every question whose routing depended on
// failedQ's answer as Skipped.
func (iv *Interview) skipDependents(failedQ int) {
	dag := iv.Survey.Rules.DAG()
	for q, parents := range dag {
		if _, ok := parents[failedQ]; !ok {
			continue
		}
		question, err := iv.Survey.QuestionAt(q)
		if err != nil {
			continue
		}
		if iv.Status[question.Name()] == "" {
			iv.Status[question.Name()] = Skipped
		}
	}
}

// skipBetween marks every question strictly between from and to — the
// ones a successful jump from "from" to "to" routes past — Skipped.
func (iv *Interview) skipBetween(from, to int) {
	for _, q := range iv.Survey.Rules.KeysBetween(from, to, false) {
		question, err := iv.Survey.QuestionAt(q)
		if err != nil {
			continue
		}
		if iv.Status[question.Name()] == "" {
			iv.Status[question.Name()] = Skipped
		}
	}
}

func (iv *Interview) result() *Result {
	return &Result{Answers: iv.Answers, Status: iv.Status, Exceptions: iv.Exceptions}
}

// Summary renders a short human-readable line for log output.
func (iv *Interview) Summary() string {
	return fmt.Sprintf("interview(agent=%s, scenario=%s, model=%s, iteration=%d): %d answered, %d exceptions",
		iv.Agent.Name, iv.Scenario.Name, iv.Adapter.ModelName(), iv.Iteration, len(iv.Answers), len(iv.Exceptions))
}
