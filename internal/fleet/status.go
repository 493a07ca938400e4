package fleet

import (
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
)

// JobStatus is the simplified lifecycle state of a deployment job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in-progress"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// executionStatus maps a per-device execution state.
func executionStatus(s types.JobExecutionStatus) JobStatus {
	switch s {
	case types.JobExecutionStatusQueued:
		return StatusPending
	case types.JobExecutionStatusInProgress:
		return StatusInProgress
	case types.JobExecutionStatusSucceeded:
		return StatusSucceeded
	case types.JobExecutionStatusFailed, types.JobExecutionStatusTimedOut, types.JobExecutionStatusRejected:
		return StatusFailed
	case types.JobExecutionStatusCanceled, types.JobExecutionStatusRemoved:
		return StatusCanceled
	default:
		return StatusPending
	}
}

// jobLevelStatus maps the job's own state, used when no execution exists.
func jobLevelStatus(s types.JobStatus) JobStatus {
	switch s {
	case types.JobStatusScheduled:
		return StatusPending
	case types.JobStatusInProgress:
		return StatusInProgress
	case types.JobStatusCompleted:
		return StatusSucceeded
	case types.JobStatusCanceled, types.JobStatusDeletionInProgress:
		return StatusCanceled
	default:
		return StatusPending
	}
}

// statusRank orders execution states for aggregation: the least settled wins.
var statusRank = map[JobStatus]int{
	StatusInProgress: 5,
	StatusPending:    4,
	StatusFailed:     3,
	StatusCanceled:   2,
	StatusSucceeded:  1,
}

// aggregate folds the job state and its executions into one status.
// A canceled job stays canceled regardless of its executions.
func aggregate(job types.JobStatus, executions []JobExecution) JobStatus {
	if job == types.JobStatusCanceled || job == types.JobStatusDeletionInProgress {
		return StatusCanceled
	}
	if len(executions) == 0 {
		return jobLevelStatus(job)
	}
	best := executions[0].Status
	for _, e := range executions[1:] {
		if statusRank[e.Status] > statusRank[best] {
			best = e.Status
		}
	}
	return best
}
