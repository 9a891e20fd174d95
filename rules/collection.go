// Package rules evaluates survey skip logic: given the current question
// and the answers gathered so far, decide which question comes next, and
// derive the dependency DAG those jumps imply.
package rules

import (
	"sort"

	"github.com/expr-lang/expr"
)

// NextQuestion is the outcome of routing from one question to the next.
type NextQuestion struct {
	NextQ    int
	Priority int
}

// RuleCollection holds every Rule known for a survey plus its question
// count, needed to resolve EndOfSurvey into a concrete index for DAG
// construction.
type RuleCollection struct {
	Rules        []Rule
	NumQuestions int
}

// ApplicableRules returns every rule whose CurrentQ matches qNow, in
// registration order.
func (rc *RuleCollection) ApplicableRules(qNow int) []Rule {
	var out []Rule
	for _, r := range rc.Rules {
		if r.CurrentQ == qNow {
			out = append(out, r)
		}
	}
	return out
}

// NextQuestion evaluates every rule applicable at qNow and returns the
// question to ask next. Among rules whose expression evaluates true, the
// highest-priority one wins; an equal or greater priority overrides an
// earlier candidate, so among equal-priority rules the last one
// encountered (in registration order) wins.
func (rc *RuleCollection) NextQuestion(qNow int, answers map[string]any) (NextQuestion, error) {
	applicable := rc.ApplicableRules(qNow)
	if len(applicable) == 0 {
		return NextQuestion{}, &NoRulesAtNode{QuestionIndex: qNow}
	}

	highestPriority := -2
	result := NextQuestion{}
	found := false

	for _, r := range applicable {
		ok, err := evaluate(r.Expression, answers)
		if err != nil {
			return NextQuestion{}, &RuleCannotEvaluate{Expression: r.Expression, Err: err}
		}
		if !ok {
			continue
		}
		if r.Priority >= highestPriority {
			highestPriority = r.Priority
			result = NextQuestion{NextQ: r.NextQ, Priority: r.Priority}
			found = true
		}
	}

	if !found {
		return NextQuestion{}, &NoRulesAtNode{QuestionIndex: qNow}
	}
	return result, nil
}

func evaluate(expression string, answers map[string]any) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(answers), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, answers)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// NonDefaultRules returns every rule whose priority is above the default
// fallback's -1, i.e. the rules that actually imply a dependency edge.
func (rc *RuleCollection) NonDefaultRules() []Rule {
	var out []Rule
	for _, r := range rc.Rules {
		if r.Priority > -1 {
			out = append(out, r)
		}
	}
	return out
}

// KeysBetween returns the question indices strictly after startQ up to
// endQ, including endQ itself only when rightInclusive is true. endQ of
// EndOfSurvey is resolved to
// rc.NumQuestions first.
func (rc *RuleCollection) KeysBetween(startQ, endQ int, rightInclusive bool) []int {
	if endQ == EndOfSurvey {
		endQ = rc.NumQuestions
	}
	hi := endQ
	if rightInclusive {
		hi++
	}
	var out []int
	for q := startQ + 1; q < hi; q++ {
		out = append(out, q)
	}
	return out
}

// DAG returns, for every question a non-default rule can skip over, the
// set of questions whose answers that jump depends on.
func (rc *RuleCollection) DAG() map[int]map[int]struct{} {
	parentToChildren := make(map[int]map[int]struct{})
	for _, r := range rc.NonDefaultRules() {
		for _, q := range rc.KeysBetween(r.CurrentQ, r.NextQ, true) {
			if parentToChildren[q] == nil {
				parentToChildren[q] = make(map[int]struct{})
			}
			parentToChildren[q][r.CurrentQ] = struct{}{}
		}
	}
	return parentToChildren
}

// SortedDAGKeys returns the DAG's keys in ascending order, matching the
// source's dict(sorted(...)) construction for deterministic iteration.
func SortedDAGKeys(dag map[int]map[int]struct{}) []int {
	keys := make([]int, 0, len(dag))
	for k := range dag {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
