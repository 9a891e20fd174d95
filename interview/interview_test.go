package interview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nurv/edsl/agent"
	"github.com/nurv/edsl/cache"
	"github.com/nurv/edsl/llm"
	"github.com/nurv/edsl/ratelimit"
	"github.com/nurv/edsl/rules"
	"github.com/nurv/edsl/scenario"
	"github.com/nurv/edsl/survey"
)

func buildSingleQuestionSurvey(t *testing.T) *survey.Survey {
	t.Helper()
	q := survey.NewFreeText("greeting", "Say hello to {{.scenario.name}}")
	rc := &rules.RuleCollection{
		NumQuestions: 1,
		Rules:        []rules.Rule{rules.NewDefaultRule(0, 1)},
	}
	sv, err := survey.New([]survey.Question{q}, rc, nil)
	if err != nil {
		t.Fatal(err)
	}
	return sv
}

func TestConduct_CacheHitSkipsAdapterCall(t *testing.T) {
	sv := buildSingleQuestionSurvey(t)
	ag := agent.New("ada", nil)
	sc := scenario.New("s1", map[string]any{"name": "world"})
	adapter := &llm.StubAdapter{Model: "stub"}

	c := cache.New(cache.Options{ImmediateWrite: true})
	userPrompt, err := sv.ComposePrompt(0, ag.TraitContext(), sc.Variables, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Store("stub", "", "", userPrompt, "PRESEEDED", 0)

	iv := New(ag, sc, adapter, sv, 0, Config{})
	result, err := iv.Conduct(context.Background(), c, ratelimit.NewBucketCollection())
	if err != nil {
		t.Fatal(err)
	}
	if adapter.Calls() != 0 {
		t.Fatalf("expected cache hit to avoid calling the adapter, got %d calls", adapter.Calls())
	}
	if result.Answers["greeting"] != "PRESEEDED" {
		t.Fatalf("expected cached answer to be used, got %v", result.Answers["greeting"])
	}
	if result.Status["greeting"] != Succeeded {
		t.Fatalf("expected Succeeded, got %v", result.Status["greeting"])
	}
}

func TestConduct_FreshRunCallsAdapterAndCaches(t *testing.T) {
	sv := buildSingleQuestionSurvey(t)
	ag := agent.New("ada", nil)
	sc := scenario.New("s1", map[string]any{"name": "world"})
	adapter := &llm.StubAdapter{Model: "stub"}

	c := cache.New(cache.Options{ImmediateWrite: true})
	iv := New(ag, sc, adapter, sv, 0, Config{})

	result, err := iv.Conduct(context.Background(), c, ratelimit.NewBucketCollection())
	if err != nil {
		t.Fatal(err)
	}
	if adapter.Calls() != 1 {
		t.Fatalf("expected exactly one adapter call, got %d", adapter.Calls())
	}
	if result.Status["greeting"] != Succeeded {
		t.Fatalf("expected Succeeded, got %v", result.Status["greeting"])
	}

	all, err := c.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected the fresh response to be cached, got %d entries", len(all))
	}
}

func TestConduct_RetriesTransientThenSucceeds(t *testing.T) {
	sv := buildSingleQuestionSurvey(t)
	ag := agent.New("ada", nil)
	sc := scenario.New("s1", nil)
	adapter := &llm.StubAdapter{Model: "stub", FailUntil: 2, Err: errors.New("503 server error")}

	c := cache.New(cache.Options{ImmediateWrite: true})
	iv := New(ag, sc, adapter, sv, 0, Config{Timeout: time.Second})

	result, err := iv.Conduct(context.Background(), c, ratelimit.NewBucketCollection())
	if err != nil {
		t.Fatal(err)
	}
	if adapter.Calls() != 3 {
		t.Fatalf("expected 3 calls (2 failures + success), got %d", adapter.Calls())
	}
	if result.Status["greeting"] != Succeeded {
		t.Fatalf("expected eventual success, got %v", result.Status["greeting"])
	}
}

func TestConduct_SkipLogicMarksDependentsSkipped(t *testing.T) {
	q0 := survey.NewYesNo("gatekeeper", "yes or no?")
	q1 := survey.NewFreeText("followup", "tell me more")
	q2 := survey.NewFreeText("unrelated", "anything else?")

	rc := &rules.RuleCollection{
		NumQuestions: 3,
		Rules: []rules.Rule{
			{CurrentQ: 0, Expression: "true", NextQ: 2, Priority: 1},
			rules.NewDefaultRule(0, 3),
			rules.NewDefaultRule(1, 3),
			rules.NewDefaultRule(2, 3),
		},
	}
	sv, err := survey.New([]survey.Question{q0, q1, q2}, rc, nil)
	if err != nil {
		t.Fatal(err)
	}

	ag := agent.New("ada", nil)
	sc := scenario.New("s1", nil)
	adapter := &llm.StubAdapter{Model: "stub"}
	c := cache.New(cache.Options{ImmediateWrite: true})
	iv := New(ag, sc, adapter, sv, 0, Config{})

	result, err := iv.Conduct(context.Background(), c, ratelimit.NewBucketCollection())
	if err != nil {
		t.Fatal(err)
	}
	// The stub echoes q0's prompt as "YES OR NO?", which is not a yes/no
	// answer, so q0 fails validation. The priority-1 rule at q0 routes to
	// q2, so the DAG lists q0 as a dependency of q1 and q2, and both are
	// marked Skipped once q0 fails.
	if result.Status["gatekeeper"] != Failed {
		t.Fatalf("expected gatekeeper to fail validation against the stub's echoed answer, got %v", result.Status["gatekeeper"])
	}
	if result.Status["followup"] != Skipped {
		t.Fatalf("expected followup to be skipped as a dependent of the failed gatekeeper, got %v", result.Status["followup"])
	}
	if result.Status["unrelated"] != Skipped {
		t.Fatalf("expected unrelated to be skipped as a dependent of the failed gatekeeper, got %v", result.Status["unrelated"])
	}
}

func TestConduct_SuccessfulRouteSkipsBypassedQuestion(t *testing.T) {
	q0 := survey.NewYesNo("gatekeeper", "yes")
	q1 := survey.NewFreeText("followup", "tell me more")
	q2 := survey.NewFreeText("unrelated", "anything else?")

	rc := &rules.RuleCollection{
		NumQuestions: 3,
		Rules: []rules.Rule{
			{CurrentQ: 0, Expression: "gatekeeper == 'yes'", NextQ: 2, Priority: 1},
			rules.NewDefaultRule(0, 3),
			rules.NewDefaultRule(1, 3),
			rules.NewDefaultRule(2, 3),
		},
	}
	sv, err := survey.New([]survey.Question{q0, q1, q2}, rc, nil)
	if err != nil {
		t.Fatal(err)
	}

	ag := agent.New("ada", nil)
	sc := scenario.New("s1", nil)
	adapter := &llm.StubAdapter{Model: "stub"}
	c := cache.New(cache.Options{ImmediateWrite: true})
	iv := New(ag, sc, adapter, sv, 0, Config{})

	result, err := iv.Conduct(context.Background(), c, ratelimit.NewBucketCollection())
	if err != nil {
		t.Fatal(err)
	}

	// The gate's fixed prompt "yes" round-trips through the stub's
	// uppercase echo back to a valid yes/no answer, so the
	// answer-dependent rule actually fires and jumps straight to q2.
	if result.Status["gatekeeper"] != Succeeded {
		t.Fatalf("expected gatekeeper to succeed, got %v", result.Status["gatekeeper"])
	}
	if result.Status["followup"] != Skipped {
		t.Fatalf("expected followup to be skipped by the jump past it, got %v", result.Status["followup"])
	}
	if result.Status["unrelated"] != Succeeded {
		t.Fatalf("expected unrelated to be asked and succeed, got %v", result.Status["unrelated"])
	}

	all, err := c.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected cache entries only for the two asked questions, got %d", len(all))
	}
}
