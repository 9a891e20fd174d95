// Package agent defines the persona an interview answers questions as.
package agent

// Agent bundles a persona's traits and an optional instruction preamble
// injected into every question's system prompt.
type Agent struct {
	Name         string
	Traits       map[string]any
	Instructions string
}

// New builds an Agent with the given name and traits.
func New(name string, traits map[string]any) Agent {
	if traits == nil {
		traits = map[string]any{}
	}
	return Agent{Name: name, Traits: traits}
}

// TraitContext returns the traits map plus the agent's name, the shape
// handed to prompt templates under the "traits" key.
func (a Agent) TraitContext() map[string]any {
	ctx := make(map[string]any, len(a.Traits)+1)
	for k, v := range a.Traits {
		ctx[k] = v
	}
	ctx["name"] = a.Name
	return ctx
}
