package jobsrunner

import "github.com/nurv/edsl/interview"

// TaskHistory is an append-only record of interview failures, kept only
// for post-run reporting.
type TaskHistory struct {
	entries []entry
}

type entry struct {
	InterviewIndex int
	Exceptions     []interview.Exception
}

func (h *TaskHistory) record(interviewIndex int, exceptions []interview.Exception) {
	if len(exceptions) == 0 {
		return
	}
	h.entries = append(h.entries, entry{InterviewIndex: interviewIndex, Exceptions: exceptions})
}

// Indices returns the interview indices that recorded at least one
// exception, in the order they were appended.
func (h *TaskHistory) Indices() []int {
	out := make([]int, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.InterviewIndex)
	}
	return out
}

// HasExceptions reports whether any interview recorded a failure.
func (h *TaskHistory) HasExceptions() bool {
	return len(h.entries) > 0
}
