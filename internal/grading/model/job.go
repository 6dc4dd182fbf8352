package model

import "time"

// GradingRequest asks for one submission to be graded.
// Exactly one of Config and TestPackKey is expected; Config wins when both are set.
type GradingRequest struct {
	SubmissionID     string           `json:"submissionId"`
	TaskID           string           `json:"taskId,omitempty"`
	Code             string           `json:"code"`
	Language         string           `json:"language"`
	Config           GradingConfig    `json:"config"`
	TestPackKey      string           `json:"testPackKey,omitempty"`
	Policy           ComparisonPolicy `json:"policy,omitempty"`
	TimeLimitSeconds float64          `json:"timeLimitSeconds,omitempty"`
	MemoryLimitKb    int64            `json:"memoryLimitKb,omitempty"`
	// Owner is the subject of the student the submission belongs to.
	Owner string `json:"owner,omitempty"`
}

// TestPack is the stored form of a task's grading configuration.
type TestPack struct {
	Config           GradingConfig    `json:"config"`
	Policy           ComparisonPolicy `json:"policy,omitempty"`
	TimeLimitSeconds float64          `json:"timeLimitSeconds,omitempty"`
	MemoryLimitKb    int64            `json:"memoryLimitKb,omitempty"`
}

// GradingJob is the queue payload for asynchronous grading.
type GradingJob struct {
	JobID      string         `json:"jobId"`
	Request    GradingRequest `json:"request"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}

// ResultStatus is the lifecycle state of a grading job.
type ResultStatus string

const (
	StatusPending  ResultStatus = "pending"
	StatusRunning  ResultStatus = "running"
	StatusFinished ResultStatus = "finished"
	StatusFailed   ResultStatus = "failed"
)

// ResultRecord is what the result repositories store per submission.
// Result is always the unredacted form.
type ResultRecord struct {
	SubmissionID string         `json:"submissionId"`
	JobID        string         `json:"jobId,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Status       ResultStatus   `json:"status"`
	Result       *GradingResult `json:"result,omitempty"`
	ErrorCode    int            `json:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// VisibleTo reports whether the caller identified by subject may read the
// record. Privileged callers see every record; others only their own.
func (r ResultRecord) VisibleTo(subject string, privileged bool) bool {
	if privileged {
		return true
	}
	return r.Owner != "" && r.Owner == subject
}

// ForViewer returns the record as a student (privileged=false) or teacher may see it.
func (r ResultRecord) ForViewer(privileged bool) ResultRecord {
	if privileged || r.Result == nil {
		return r
	}
	redacted := r.Result.Redacted()
	r.Result = &redacted
	return r
}

// StatusChange is one entry of a submission's status history.
type StatusChange struct {
	JobID      string       `json:"jobId,omitempty"`
	Status     ResultStatus `json:"status"`
	ErrorCode  int          `json:"errorCode,omitempty"`
	RecordedAt time.Time    `json:"recordedAt"`
}

// ResultEvent announces a finished or failed job.
type ResultEvent struct {
	JobID        string       `json:"jobId"`
	SubmissionID string       `json:"submissionId"`
	Owner        string       `json:"owner,omitempty"`
	Status       ResultStatus `json:"status"`
	TotalScore   int          `json:"totalScore"`
	MaxScore     int          `json:"maxScore"`
	Percentage   int          `json:"percentage"`
	AllPassed    bool         `json:"allPassed"`
	ErrorCode    int          `json:"errorCode,omitempty"`
	CreatedAt    int64        `json:"createdAt"`
}

// EventFromRecord builds the announcement for a terminal record.
func EventFromRecord(r ResultRecord) ResultEvent {
	ev := ResultEvent{
		JobID:        r.JobID,
		SubmissionID: r.SubmissionID,
		Owner:        r.Owner,
		Status:       r.Status,
		ErrorCode:    r.ErrorCode,
		CreatedAt:    r.UpdatedAt.Unix(),
	}
	if r.Result != nil {
		ev.TotalScore = r.Result.TotalScore
		ev.MaxScore = r.Result.MaxScore
		ev.Percentage = r.Result.Percentage
		ev.AllPassed = r.Result.AllPassed
	}
	return ev
}
