// Package survey composes ordered Questions, skip-logic rules, and a
// memory plan into a single prompt-generating unit driven by Interview.
package survey

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a question's answer shape and validation rule.
type Kind string

const (
	KindFreeText       Kind = "free_text"
	KindMultipleChoice Kind = "multiple_choice"
	KindYesNo          Kind = "yes_no"
	KindNumerical      Kind = "numerical"
	KindList           Kind = "list"
)

// Question is a single prompt template plus the validation rule applied
// to the raw text an LM adapter returns for it.
type Question interface {
	Name() string
	Kind() Kind
	PromptTemplate() string
	Validate(raw string) (any, error)
}

// base carries the fields every question kind shares.
type base struct {
	name     string
	template string
}

func (b base) Name() string           { return b.name }
func (b base) PromptTemplate() string { return b.template }

// FreeText accepts any non-empty response, trimmed of surrounding
// whitespace.
type FreeText struct {
	base
}

func NewFreeText(name, template string) *FreeText {
	return &FreeText{base{name: name, template: template}}
}

func (q *FreeText) Kind() Kind { return KindFreeText }

func (q *FreeText) Validate(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ValidationError{Question: q.name, Raw: raw, Reason: "empty response"}
	}
	return trimmed, nil
}

// MultipleChoice accepts exactly one of a fixed set of options, matched
// case-insensitively.
type MultipleChoice struct {
	base
	Options []string
}

func NewMultipleChoice(name, template string, options []string) *MultipleChoice {
	return &MultipleChoice{base: base{name: name, template: template}, Options: options}
}

func (q *MultipleChoice) Kind() Kind { return KindMultipleChoice }

func (q *MultipleChoice) Validate(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	for _, opt := range q.Options {
		if strings.EqualFold(opt, trimmed) {
			return opt, nil
		}
	}
	return nil, &ValidationError{
		Question: q.name,
		Raw:      raw,
		Reason:   fmt.Sprintf("%q is not one of %v", trimmed, q.Options),
	}
}

// YesNo accepts yes/no (and common variants), normalized to the string
// "yes" or "no" rather than a bool, so skip-logic expressions can compare
// against it as a string literal (e.g. "gatekeeper == 'yes'").
type YesNo struct {
	base
}

func NewYesNo(name, template string) *YesNo {
	return &YesNo{base{name: name, template: template}}
}

func (q *YesNo) Kind() Kind { return KindYesNo }

func (q *YesNo) Validate(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true":
		return "yes", nil
	case "no", "n", "false":
		return "no", nil
	default:
		return nil, &ValidationError{Question: q.name, Raw: raw, Reason: "not a recognizable yes/no answer"}
	}
}

// Numerical accepts a float, optionally bounded.
type Numerical struct {
	base
	Min, Max     float64
	HasMin       bool
	HasMax       bool
}

func NewNumerical(name, template string) *Numerical {
	return &Numerical{base: base{name: name, template: template}}
}

func (q *Numerical) Kind() Kind { return KindNumerical }

func (q *Numerical) Validate(raw string) (any, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, &ValidationError{Question: q.name, Raw: raw, Reason: "not a number"}
	}
	if q.HasMin && v < q.Min {
		return nil, &ValidationError{Question: q.name, Raw: raw, Reason: fmt.Sprintf("below minimum %g", q.Min)}
	}
	if q.HasMax && v > q.Max {
		return nil, &ValidationError{Question: q.name, Raw: raw, Reason: fmt.Sprintf("above maximum %g", q.Max)}
	}
	return v, nil
}

// List accepts a comma-separated list of items, optionally bounded in size.
type List struct {
	base
	MaxItems int
}

func NewList(name, template string, maxItems int) *List {
	return &List{base: base{name: name, template: template}, MaxItems: maxItems}
}

func (q *List) Kind() Kind { return KindList }

func (q *List) Validate(raw string) (any, error) {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Question: q.name, Raw: raw, Reason: "empty list"}
	}
	if q.MaxItems > 0 && len(items) > q.MaxItems {
		return nil, &ValidationError{
			Question: q.name,
			Raw:      raw,
			Reason:   fmt.Sprintf("%d items exceeds max of %d", len(items), q.MaxItems),
		}
	}
	return items, nil
}
