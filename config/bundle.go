package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nurv/edsl/agent"
	"github.com/nurv/edsl/rules"
	"github.com/nurv/edsl/scenario"
	"github.com/nurv/edsl/survey"
)

// Bundle is the on-disk description of one run: a survey's questions and
// skip-logic rules, plus the agents and scenarios to cross with it. The
// CLI loads this separately from Config, which carries credentials and
// runner knobs rather than experiment content.
type Bundle struct {
	Questions []QuestionSpec `yaml:"questions"`
	Rules     []RuleSpec     `yaml:"rules"`
	Agents    []AgentSpec    `yaml:"agents"`
	Scenarios []ScenarioSpec `yaml:"scenarios"`
	Models    []string       `yaml:"models"`
}

// QuestionSpec mirrors survey.Spec in a YAML-friendly shape.
type QuestionSpec struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Template string   `yaml:"template"`
	Options  []string `yaml:"options"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	MaxItems int      `yaml:"max_items"`
}

// RuleSpec mirrors rules.Rule in a YAML-friendly shape.
// CurrentQuestion/NextQuestion reference questions by name; "end" (or an
// empty NextQuestion) resolves to rules.EndOfSurvey.
type RuleSpec struct {
	CurrentQuestion string `yaml:"current_question"`
	Expression      string `yaml:"expression"`
	NextQuestion    string `yaml:"next_question"`
	Priority        int    `yaml:"priority"`
}

// AgentSpec mirrors agent.Agent.
type AgentSpec struct {
	Name         string         `yaml:"name"`
	Traits       map[string]any `yaml:"traits"`
	Instructions string         `yaml:"instructions"`
}

// ScenarioSpec mirrors scenario.Scenario.
type ScenarioSpec struct {
	Name      string         `yaml:"name"`
	Variables map[string]any `yaml:"variables"`
}

// LoadBundle reads and parses a Bundle from path.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file: %w", err)
	}

	var b Bundle
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse bundle: expected single document")
	}
	return &b, nil
}

// BuildSurvey constructs a survey.Survey from the bundle's questions and
// rules. MemoryPlan is intentionally left empty here: memory injection is
// a survey-authoring concern this bundle format doesn't yet expose.
func (b *Bundle) BuildSurvey() (*survey.Survey, error) {
	questions := make([]survey.Question, 0, len(b.Questions))
	nameToIndex := make(map[string]int, len(b.Questions))
	for i, qs := range b.Questions {
		nameToIndex[qs.Name] = i
	}

	for _, qs := range b.Questions {
		spec := survey.Spec{
			Name:     qs.Name,
			Kind:     survey.Kind(qs.Kind),
			Template: qs.Template,
			Options:  qs.Options,
			MaxItems: qs.MaxItems,
		}
		if qs.Min != nil {
			spec.Min, spec.HasMin = *qs.Min, true
		}
		if qs.Max != nil {
			spec.Max, spec.HasMax = *qs.Max, true
		}
		q, err := survey.Build(spec)
		if err != nil {
			return nil, fmt.Errorf("bundle: question %q: %w", qs.Name, err)
		}
		questions = append(questions, q)
	}

	numQuestions := len(questions)
	ruleSet := make([]rules.Rule, 0, len(b.Rules)+numQuestions)
	for _, rs := range b.Rules {
		currentQ, ok := nameToIndex[rs.CurrentQuestion]
		if !ok {
			return nil, fmt.Errorf("bundle: rule references unknown question %q", rs.CurrentQuestion)
		}
		nextQ := rules.EndOfSurvey
		if rs.NextQuestion != "" && rs.NextQuestion != "end" {
			idx, ok := nameToIndex[rs.NextQuestion]
			if !ok {
				return nil, fmt.Errorf("bundle: rule references unknown next question %q", rs.NextQuestion)
			}
			nextQ = idx
		}
		ruleSet = append(ruleSet, rules.Rule{
			CurrentQ:   currentQ,
			Expression: rs.Expression,
			NextQ:      nextQ,
			Priority:   rs.Priority,
		})
	}
	for i := 0; i < numQuestions; i++ {
		ruleSet = append(ruleSet, rules.NewDefaultRule(i, numQuestions))
	}

	rc := &rules.RuleCollection{Rules: ruleSet, NumQuestions: numQuestions}
	return survey.New(questions, rc, nil)
}

// BuildAgents constructs agent.Agent values from the bundle's AgentSpecs.
func (b *Bundle) BuildAgents() []agent.Agent {
	out := make([]agent.Agent, 0, len(b.Agents))
	for _, as := range b.Agents {
		a := agent.New(as.Name, as.Traits)
		a.Instructions = as.Instructions
		out = append(out, a)
	}
	return out
}

// BuildScenarios constructs scenario.Scenario values from the bundle's
// ScenarioSpecs.
func (b *Bundle) BuildScenarios() []scenario.Scenario {
	out := make([]scenario.Scenario, 0, len(b.Scenarios))
	for _, ss := range b.Scenarios {
		out = append(out, scenario.New(ss.Name, ss.Variables))
	}
	return out
}
