// Package scenario defines the variable bindings used to instantiate
// prompt templates for a single interview.
package scenario

// Scenario is a named set of variable bindings, injected into question
// templates under the "scenario" key.
type Scenario struct {
	Name      string
	Variables map[string]any
}

// New builds a Scenario with the given variable bindings.
func New(name string, variables map[string]any) Scenario {
	if variables == nil {
		variables = map[string]any{}
	}
	return Scenario{Name: name, Variables: variables}
}
