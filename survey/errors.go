package survey

import "fmt"

// ValidationError reports that a raw LM response failed a question's
// answer validation rule.
type ValidationError struct {
	Question string
	Raw      string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("survey: question %q rejected response %q: %s", e.Question, e.Raw, e.Reason)
}

// UnknownQuestion is returned when a name or index does not resolve to a
// question in a Survey.
type UnknownQuestion struct {
	Name string
}

func (e *UnknownQuestion) Error() string {
	return fmt.Sprintf("survey: unknown question %q", e.Name)
}
