package survey

import (
	"fmt"
	"sync"
)

// Spec is the generic, serializable description of a question used to
// build a concrete Question via the Registry, replacing the source's
// metaclass-based auto-discovery with explicit string-keyed kinds.
type Spec struct {
	Name     string
	Kind     Kind
	Template string
	Options  []string // multiple_choice
	Min, Max float64  // numerical
	HasMin   bool
	HasMax   bool
	MaxItems int // list
}

// Factory builds a Question from a Spec.
type Factory func(Spec) (Question, error)

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Factory{}
)

// Register adds or replaces the factory for kind. Called for each built-in
// question kind from this package's init(), and usable by callers adding
// their own kinds.
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Build constructs a Question from spec using the factory registered for
// spec.Kind.
func Build(spec Spec) (Question, error) {
	registryMu.RLock()
	factory, ok := registry[spec.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("survey: no question factory registered for kind %q", spec.Kind)
	}
	return factory(spec)
}

func init() {
	Register(KindFreeText, func(s Spec) (Question, error) {
		return NewFreeText(s.Name, s.Template), nil
	})
	Register(KindMultipleChoice, func(s Spec) (Question, error) {
		if len(s.Options) == 0 {
			return nil, fmt.Errorf("survey: multiple_choice question %q needs Options", s.Name)
		}
		return NewMultipleChoice(s.Name, s.Template, s.Options), nil
	})
	Register(KindYesNo, func(s Spec) (Question, error) {
		return NewYesNo(s.Name, s.Template), nil
	})
	Register(KindNumerical, func(s Spec) (Question, error) {
		q := NewNumerical(s.Name, s.Template)
		q.Min, q.Max, q.HasMin, q.HasMax = s.Min, s.Max, s.HasMin, s.HasMax
		return q, nil
	})
	Register(KindList, func(s Spec) (Question, error) {
		return NewList(s.Name, s.Template, s.MaxItems), nil
	})
}
