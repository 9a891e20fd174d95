package survey

import (
	"testing"

	"github.com/nurv/edsl/rules"
)

func buildTestSurvey(t *testing.T) *Survey {
	t.Helper()
	q0 := NewFreeText("favorite_color", "What is {{.traits.name}}'s favorite color?")
	q1 := NewYesNo("likes_blue", "Does {{.traits.name}} like the color blue? Context: {{.memory.favorite_color}}")

	rc := &rules.RuleCollection{
		NumQuestions: 2,
		Rules: []rules.Rule{
			rules.NewDefaultRule(0, 2),
			rules.NewDefaultRule(1, 2),
		},
	}

	s, err := New([]Question{q0, q1}, rc, MemoryPlan{"likes_blue": {"favorite_color"}})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestComposePrompt_InjectsMemory(t *testing.T) {
	s := buildTestSurvey(t)
	answers := map[string]any{"favorite_color": "blue"}

	prompt, err := s.ComposePrompt(1, map[string]any{"name": "Ada"}, nil, answers)
	if err != nil {
		t.Fatal(err)
	}
	want := "Does Ada like the color blue? Context: blue"
	if prompt != want {
		t.Fatalf("prompt = %q, want %q", prompt, want)
	}
}

func TestNextQuestion_WalksToEndOfSurvey(t *testing.T) {
	s := buildTestSurvey(t)

	nq, err := s.NextQuestion(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if nq.NextQ != 1 {
		t.Fatalf("expected next question 1, got %d", nq.NextQ)
	}

	nq, err = s.NextQuestion(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if nq.NextQ != rules.EndOfSurvey {
		t.Fatalf("expected EndOfSurvey, got %d", nq.NextQ)
	}
}

func TestBuild_MultipleChoiceRequiresOptions(t *testing.T) {
	_, err := Build(Spec{Name: "q", Kind: KindMultipleChoice, Template: "pick one"})
	if err == nil {
		t.Fatal("expected error when Options is empty")
	}
}

func TestBuild_KnownKinds(t *testing.T) {
	for _, kind := range []Kind{KindFreeText, KindYesNo, KindNumerical, KindList} {
		q, err := Build(Spec{Name: "q", Kind: kind, Template: "hello"})
		if err != nil {
			t.Fatalf("kind %s: %v", kind, err)
		}
		if q.Kind() != kind {
			t.Fatalf("kind %s: Build returned question of kind %s", kind, q.Kind())
		}
	}
}

func TestMultipleChoice_ValidateCaseInsensitive(t *testing.T) {
	q := NewMultipleChoice("q", "pick", []string{"Red", "Green", "Blue"})
	got, err := q.Validate("  blue ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Blue" {
		t.Fatalf("got %v, want Blue", got)
	}
}

func TestNumerical_Bounds(t *testing.T) {
	q := NewNumerical("age", "how old")
	q.HasMin, q.Min = true, 0
	q.HasMax, q.Max = true, 120

	if _, err := q.Validate("150"); err == nil {
		t.Fatal("expected out-of-range error")
	}
	v, err := q.Validate("42")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestList_MaxItems(t *testing.T) {
	q := NewList("items", "list them", 2)
	if _, err := q.Validate("a, b, c"); err == nil {
		t.Fatal("expected max-items error")
	}
	v, err := q.Validate("a, b")
	if err != nil {
		t.Fatal(err)
	}
	items := v.([]string)
	if len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Fatalf("unexpected items: %v", items)
	}
}
