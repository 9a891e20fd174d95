package survey

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nurv/edsl/rules"
)

// promptFuncs mirrors the teacher's VariableEngine default function map:
// a small set of text helpers available inside question templates.
func promptFuncs() template.FuncMap {
	titleCaser := cases.Title(language.English)
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": titleCaser.String,
		"trim":  strings.TrimSpace,
	}
}

// Survey is an ordered set of Questions navigated by a RuleCollection,
// with a MemoryPlan controlling which prior answers are visible to each
// question's prompt.
type Survey struct {
	Questions   []Question
	Rules       *rules.RuleCollection
	Memory      MemoryPlan
	nameToIndex map[string]int
}

// New builds a Survey, indexing questions by name and defaulting Memory
// to an empty plan when nil.
func New(questions []Question, ruleCollection *rules.RuleCollection, memory MemoryPlan) (*Survey, error) {
	nameToIndex := make(map[string]int, len(questions))
	for i, q := range questions {
		if _, dup := nameToIndex[q.Name()]; dup {
			return nil, fmt.Errorf("survey: duplicate question name %q", q.Name())
		}
		nameToIndex[q.Name()] = i
	}
	if memory == nil {
		memory = MemoryPlan{}
	}
	return &Survey{
		Questions:   questions,
		Rules:       ruleCollection,
		Memory:      memory,
		nameToIndex: nameToIndex,
	}, nil
}

// QuestionAt returns the question at index, or UnknownQuestion if out of
// range.
func (s *Survey) QuestionAt(index int) (Question, error) {
	if index < 0 || index >= len(s.Questions) {
		return nil, &UnknownQuestion{Name: fmt.Sprintf("index %d", index)}
	}
	return s.Questions[index], nil
}

// IndexOf returns the position of the question named name.
func (s *Survey) IndexOf(name string) (int, bool) {
	idx, ok := s.nameToIndex[name]
	return idx, ok
}

// NextQuestion asks the RuleCollection which question follows currentQ
// given answers gathered so far.
func (s *Survey) NextQuestion(currentQ int, answers map[string]any) (rules.NextQuestion, error) {
	return s.Rules.NextQuestion(currentQ, answers)
}

// ComposePrompt renders the question at index's prompt template against
// the agent's traits, the scenario's variable bindings, and whatever
// prior answers the MemoryPlan selects for it.
func (s *Survey) ComposePrompt(index int, traits, scenario, answers map[string]any) (string, error) {
	q, err := s.QuestionAt(index)
	if err != nil {
		return "", err
	}

	data := map[string]any{
		"traits":   traits,
		"scenario": scenario,
		"memory":   s.Memory.Context(q.Name(), answers),
	}

	tmpl, err := template.New(q.Name()).Funcs(promptFuncs()).Parse(q.PromptTemplate())
	if err != nil {
		return "", fmt.Errorf("survey: parsing template for %q: %w", q.Name(), err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("survey: rendering template for %q: %w", q.Name(), err)
	}
	return buf.String(), nil
}

// NumQuestions returns the number of questions in the survey.
func (s *Survey) NumQuestions() int {
	return len(s.Questions)
}
