package model

import "time"

// JobStatus is the lifecycle state of a montage job. Transitions are
// monotonic: queued -> processing -> completed|failed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Failure reasons recorded on JobError. Cancelled and timeout are lifecycle
// exits, distinct from planning and collaborator failures.
const (
	ReasonCancelled = "cancelled"
	ReasonTimeout   = "timeout"
	ReasonPlanning  = "planning"
	ReasonAssembly  = "assembly"
)

// Artifact keys are stable strings agreed by contract. A completed job
// always has ArtifactBestReel populated.
const (
	ArtifactBestReel = "best_reel_mp4"
	ArtifactCover    = "cover_jpg"
	ArtifactTimeline = "timeline_json"
)

// Segment is one trimmed contribution from a single source clip placed at a
// specific position in the final timeline.
type Segment struct {
	SourceRef  string  `json:"source_ref"`
	TrimStart  float64 `json:"trim_start"`
	TrimEnd    float64 `json:"trim_end"`
	OrderIndex int     `json:"order_index"`
}

// Length returns the trim window length in seconds.
func (s Segment) Length() float64 {
	return s.TrimEnd - s.TrimStart
}

// PlanDuration sums the trim windows of an ordered plan.
func PlanDuration(plan []Segment) float64 {
	var total float64
	for _, seg := range plan {
		total += seg.Length()
	}
	return total
}

// JobError is the structured failure reason recorded on a failed job.
type JobError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Message
}

// Job is the unit of work and its full history. The record is published
// wholesale on every transition, never partially.
type Job struct {
	ID        string            `json:"id"`
	Status    JobStatus         `json:"status"`
	Request   MontageRequest    `json:"request"`
	Plan      []Segment         `json:"plan,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Error     *JobError         `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SubmitResponse is returned when a job is accepted.
type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// StatusResponse is the read-only snapshot served to polling clients.
// Artifacts appear once completed, Error once failed.
type StatusResponse struct {
	JobID     string            `json:"job_id"`
	Status    JobStatus         `json:"status"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Error     *string           `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CancelResponse is returned when a cancel request is accepted.
type CancelResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Cancelled bool      `json:"cancelled"`
}
