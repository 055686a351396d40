package models

import "time"

// JobStatus is the lifecycle enum for a background job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobCancelled JobStatus = "cancelled"
	JobError     JobStatus = "error"
)

// Job is the Job Registry record.
type Job struct {
	JobID      string
	TraceID    string
	Profile    string
	Status     JobStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Result     *string
	Error      *string
}

// IsTerminal reports whether the job will never transition again.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobDone, JobCancelled, JobError:
		return true
	default:
		return false
	}
}
