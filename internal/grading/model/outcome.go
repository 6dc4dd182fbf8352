package model

// StatusAccepted is the only execution status that can yield points.
const StatusAccepted = "Accepted"

// StatusTimeout marks a call abandoned by the grader's own wall-clock limit.
const StatusTimeout = "Timeout"

// ExecutionOutcome is the normalized answer of the execution service for one run.
// Succeeded reports transport success only and says nothing about correctness.
type ExecutionOutcome struct {
	Succeeded     bool    `json:"succeeded"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	Status        string  `json:"status"`
	TimeMs        int64   `json:"timeMs"`
	MemoryKb      int64   `json:"memoryKb"`
	CompileOutput *string `json:"compileOutput,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// ExecutionRequest is one unit sent to the execution service.
type ExecutionRequest struct {
	Code             string
	Language         string
	Stdin            string
	TimeLimitSeconds float64
	MemoryLimitKb    int64
}
