package jobsrunner

import (
	"context"
	"errors"
	"testing"

	"github.com/nurv/edsl/agent"
	"github.com/nurv/edsl/cache"
	"github.com/nurv/edsl/llm"
	"github.com/nurv/edsl/ratelimit"
	"github.com/nurv/edsl/rules"
	"github.com/nurv/edsl/scenario"
	"github.com/nurv/edsl/survey"
)

func buildRunnerSurvey(t *testing.T) *survey.Survey {
	t.Helper()
	q := survey.NewFreeText("greeting", "hello")
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

func TestRun_PartialFailureIsolatesOtherInterviews(t *testing.T) {
	sv := buildRunnerSurvey(t)
	c := cache.New(cache.Options{ImmediateWrite: true})
	buckets := ratelimit.NewBucketCollection()

	good := &llm.StubAdapter{Model: "good"}
	bad := &llm.StubAdapter{Model: "bad", FailUntil: 99, Err: &llm.PermanentError{Model: "bad", Err: errors.New("401 unauthorized")}}

	opts := RunOptions{
		Survey: sv,
		N:      1,
		WorkItems: []WorkItem{
			{Agent: agent.New("a1", nil), Scenario: scenario.New("s1", nil), Adapter: good},
			{Agent: agent.New("a2", nil), Scenario: scenario.New("s1", nil), Adapter: bad},
		},
	}

	results, err := Run(context.Background(), c, buckets, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(results.Items) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results.Items))
	}
	if results.Items[0] == nil || results.Items[0].Status["greeting"] != "succeeded" {
		t.Fatalf("expected first interview to succeed despite the second failing")
	}
	if !results.TaskHistory.HasExceptions() {
		t.Fatalf("expected the failing interview to be recorded in task history")
	}
}

func TestRun_StopOnExceptionCancelsPeers(t *testing.T) {
	sv := buildRunnerSurvey(t)
	c := cache.New(cache.Options{ImmediateWrite: true})
	buckets := ratelimit.NewBucketCollection()

	bad := &llm.StubAdapter{Model: "bad", FailUntil: 99, Err: &llm.PermanentError{Model: "bad", Err: errors.New("401 unauthorized")}}

	opts := RunOptions{
		Survey:          sv,
		N:               1,
		StopOnException: true,
		Parallelism:     1,
		WorkItems: []WorkItem{
			{Agent: agent.New("a1", nil), Scenario: scenario.New("s1", nil), Adapter: bad},
			{Agent: agent.New("a2", nil), Scenario: scenario.New("s1", nil), Adapter: bad},
		},
	}

	_, err := Run(context.Background(), c, buckets, opts)
	if err == nil {
		t.Fatal("expected stop-on-exception to surface the first interview error")
	}
}

func TestRun_CancellationStopsInFlightWork(t *testing.T) {
	sv := buildRunnerSurvey(t)
	c := cache.New(cache.Options{ImmediateWrite: true})
	buckets := ratelimit.NewBucketCollection()
	adapter := &llm.StubAdapter{Model: "stub"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := RunOptions{
		Survey: sv,
		N:      1,
		WorkItems: []WorkItem{
			{Agent: agent.New("a1", nil), Scenario: scenario.New("s1", nil), Adapter: adapter},
		},
	}

	results, err := Run(ctx, c, buckets, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(results.Items) != 1 {
		t.Fatalf("expected one result slot even when cancelled, got %d", len(results.Items))
	}
	if adapter.Calls() != 0 {
		t.Fatalf("expected a cancelled run to make no adapter calls, got %d", adapter.Calls())
	}
}

func TestMaterialize_ExpandsIterations(t *testing.T) {
	sv := buildRunnerSurvey(t)
	opts := RunOptions{
		Survey: sv,
		N:      3,
		WorkItems: []WorkItem{
			{Agent: agent.New("a1", nil), Scenario: scenario.New("s1", nil), Adapter: &llm.StubAdapter{Model: "stub"}},
		},
	}
	items := materialize(opts)
	if len(items) != 3 {
		t.Fatalf("expected 3 materialized interviews, got %d", len(items))
	}
	for i, item := range items {
		if item.index != i {
			t.Fatalf("expected sequential indices, got %d at position %d", item.index, i)
		}
		if item.iv.Iteration != i {
			t.Fatalf("expected iteration %d, got %d", i, item.iv.Iteration)
		}
	}
}
