package model

// RedactionMarker replaces hidden test input and expected output in student views.
const RedactionMarker = "[hidden]"

// Redacted returns a copy safe for the submitting student. Hidden tests lose
// their input and expected output; everything else is kept.
func (r GradingResult) Redacted() GradingResult {
	out := r
	out.Restricted = true
	out.Tests = redactTests(r.Tests)
	if r.Groups != nil {
		out.Groups = make([]GroupResult, len(r.Groups))
		for i, g := range r.Groups {
			g.Tests = redactTests(g.Tests)
			out.Groups[i] = g
		}
	}
	return out
}

func redactTests(tests []TestResult) []TestResult {
	if tests == nil {
		return nil
	}
	out := make([]TestResult, len(tests))
	for i, tr := range tests {
		if tr.Hidden {
			tr.Input = RedactionMarker
			tr.ExpectedOutput = RedactionMarker
		}
		out[i] = tr
	}
	return out
}
