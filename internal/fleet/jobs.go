package fleet

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobs"
	"github.com/FactbirdHQ/fbedge-examples/internal/metrics"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// Job rollout settings applied to every deployment.
const (
	rolloutPerMinute     = 10
	inProgressTimeoutMin = 10

	// DefaultListLimit is the number of jobs List returns when n <= 0.
	DefaultListLimit = 10
	listPageSize     = 100
	maxExecutions    = 100

	// DefaultCancelComment is recorded when Cancel is given no comment.
	DefaultCancelComment = "Manual cancellation"
	cancelReasonCode     = "USER_INITIATED"
)

// DeploymentJob is a job created by Submit.
type DeploymentJob struct {
	JobID     string      `json:"jobId"`
	JobARN    string      `json:"jobArn"`
	ThingARN  string      `json:"thingArn"`
	Document  JobDocument `json:"document"`
	Status    JobStatus   `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// JobExecution is one device's progress on a job.
type JobExecution struct {
	ThingARN  string    `json:"thingArn"`
	ThingName string    `json:"thingName"`
	Status    JobStatus `json:"status"`
	RawStatus string    `json:"rawStatus"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// JobState is the observed state of a job.
type JobState struct {
	JobID       string         `json:"jobId"`
	JobARN      string         `json:"jobArn"`
	Status      JobStatus      `json:"status"`
	RawStatus   string         `json:"rawStatus"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt time.Time      `json:"completedAt,omitempty"`
	Comment     string         `json:"comment,omitempty"`
	Executions  []JobExecution `json:"executions"`
}

// JobSummary is one entry of List or ListForThing. For ListForThing the
// status is the device's execution status and JobARN is empty.
type JobSummary struct {
	JobID     string    `json:"jobId"`
	JobARN    string    `json:"jobArn"`
	Status    JobStatus `json:"status"`
	RawStatus string    `json:"rawStatus"`
	CreatedAt time.Time `json:"createdAt"`
}

// CancelOutcome reports what Cancel did.
type CancelOutcome struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Changed bool      `json:"changed"`
}

// Jobs submits and monitors deployment jobs.
type Jobs struct {
	api IoTAPI
	// Destination, when set, is added to every download document.
	Destination string

	now   func() time.Time
	newID func(time.Time) string
}

// NewJobs returns a Jobs using the session's IoT client.
func NewJobs(sess *cloud.Session) *Jobs {
	return NewJobsWithAPI(iot.NewFromConfig(sess.Config))
}

// NewJobsWithAPI returns a Jobs over an explicit IoT client.
func NewJobsWithAPI(api IoTAPI) *Jobs {
	return &Jobs{api: api, now: time.Now, newID: jobs.GenerateDeploymentID}
}

// Submit creates a download job for one device. The URL is validated
// locally first; a malformed URL never reaches the service.
func (j *Jobs) Submit(ctx context.Context, thingARN, rawURL string) result.Result[*DeploymentJob] {
	const op = "fleet.Submit"

	doc, err := NewDownloadDocument(rawURL, j.Destination)
	if err != nil {
		return result.Failure[*DeploymentJob](result.KindInvalidInput, op, err)
	}
	thingARN = strings.TrimSpace(thingARN)
	if thingARN == "" {
		return result.Failure[*DeploymentJob](result.KindInvalidInput, op, errors.New("thing ARN is empty"))
	}
	body, err := doc.Encode()
	if err != nil {
		return result.Failure[*DeploymentJob](result.KindInvalidInput, op, err)
	}

	created := j.now()
	jobID := j.newID(created)
	thing := thingNameFromARN(thingARN)

	log.Debug().Str("jobId", jobID).Str("document", body).Msg("Creating deployment job")

	out, err := j.api.CreateJob(ctx, &iot.CreateJobInput{
		JobId:           aws.String(jobID),
		Targets:         []string{thingARN},
		Document:        aws.String(body),
		Description:     aws.String("Download file to edge device " + thing),
		TargetSelection: types.TargetSelectionSnapshot,
		JobExecutionsRolloutConfig: &types.JobExecutionsRolloutConfig{
			MaximumPerMinute: aws.Int32(rolloutPerMinute),
		},
		TimeoutConfig: &types.TimeoutConfig{
			InProgressTimeoutInMinutes: aws.Int64(inProgressTimeoutMin),
		},
	})
	if err != nil {
		return cloud.Fail[*DeploymentJob](op, err)
	}

	job := &DeploymentJob{
		JobID:     aws.ToString(out.JobId),
		JobARN:    aws.ToString(out.JobArn),
		ThingARN:  thingARN,
		Document:  doc,
		Status:    StatusPending,
		CreatedAt: created.UTC(),
	}
	if job.JobID == "" {
		job.JobID = jobID
	}

	metrics.New(metrics.Namespace).
		Dimension("Thing", thing).
		Count("DeploymentJobCreated").
		Property("jobId", job.JobID).
		Flush()

	log.Info().
		Str("jobId", job.JobID).
		Str("jobArn", job.JobARN).
		Str("thing", thing).
		Str("url", doc.URL).
		Msg("Deployment job created")

	return result.Success(job)
}

// Status describes a job and folds its executions into one status.
func (j *Jobs) Status(ctx context.Context, jobID string) result.Result[*JobState] {
	const op = "fleet.Status"

	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return result.Failure[*JobState](result.KindInvalidInput, op, errors.New("job id is empty"))
	}

	out, err := j.api.DescribeJob(ctx, &iot.DescribeJobInput{JobId: aws.String(jobID)})
	if err != nil {
		return cloud.Fail[*JobState](op, err)
	}
	if out.Job == nil {
		return result.Failure[*JobState](result.KindNotFound, op, errors.New("job "+jobID+" has no description"))
	}

	job := out.Job
	state := &JobState{
		JobID:       aws.ToString(job.JobId),
		JobARN:      aws.ToString(job.JobArn),
		RawStatus:   string(job.Status),
		CreatedAt:   aws.ToTime(job.CreatedAt),
		CompletedAt: aws.ToTime(job.CompletedAt),
		Comment:     aws.ToString(job.Comment),
		Executions:  j.executions(ctx, jobID),
	}
	if state.JobID == "" {
		state.JobID = jobID
	}
	state.Status = aggregate(job.Status, state.Executions)

	log.Info().
		Str("jobId", state.JobID).
		Str("status", string(state.Status)).
		Str("rawStatus", state.RawStatus).
		Int("executions", len(state.Executions)).
		Msg("Job status")

	return result.Success(state)
}

// executions lists per-device executions. Failures degrade to none.
func (j *Jobs) executions(ctx context.Context, jobID string) []JobExecution {
	out, err := j.api.ListJobExecutionsForJob(ctx, &iot.ListJobExecutionsForJobInput{
		JobId:      aws.String(jobID),
		MaxResults: aws.Int32(maxExecutions),
	})
	if err != nil {
		log.Warn().Err(err).Str("jobId", jobID).Msg("Could not list job executions")
		return nil
	}

	execs := make([]JobExecution, 0, len(out.ExecutionSummaries))
	for _, s := range out.ExecutionSummaries {
		arn := aws.ToString(s.ThingArn)
		e := JobExecution{ThingARN: arn, ThingName: thingNameFromARN(arn)}
		if sum := s.JobExecutionSummary; sum != nil {
			e.RawStatus = string(sum.Status)
			e.Status = executionStatus(sum.Status)
			e.UpdatedAt = aws.ToTime(sum.LastUpdatedAt)
		} else {
			e.Status = StatusPending
		}
		log.Debug().Str("thing", e.ThingName).Str("status", e.RawStatus).Msg("Job execution")
		execs = append(execs, e)
	}
	return execs
}

// List returns the n most recent jobs in the account, newest first. The
// service does not order ListJobs by creation time, so every page is read
// before sorting.
func (j *Jobs) List(ctx context.Context, n int) result.Result[[]JobSummary] {
	const op = "fleet.List"

	var all []JobSummary
	input := &iot.ListJobsInput{MaxResults: aws.Int32(listPageSize)}
	for {
		out, err := j.api.ListJobs(ctx, input)
		if err != nil {
			return cloud.Fail[[]JobSummary](op, err)
		}
		for _, s := range out.Jobs {
			id := aws.ToString(s.JobId)
			all = append(all, JobSummary{
				JobID:     id,
				JobARN:    aws.ToString(s.JobArn),
				Status:    jobLevelStatus(s.Status),
				RawStatus: string(s.Status),
				CreatedAt: createdAt(id, s.CreatedAt),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	all = newestFirst(all, n)
	log.Info().Int("jobs", len(all)).Msg("Deployment jobs listed")
	return result.Success(all)
}

// ListForThing returns the n most recent jobs that targeted one device,
// newest first, with that device's execution status.
func (j *Jobs) ListForThing(ctx context.Context, thingName string, n int) result.Result[[]JobSummary] {
	const op = "fleet.ListForThing"

	thingName = strings.TrimSpace(thingName)
	if thingName == "" {
		return result.Failure[[]JobSummary](result.KindInvalidInput, op, errors.New("thing name is empty"))
	}

	var all []JobSummary
	input := &iot.ListJobExecutionsForThingInput{
		ThingName:  aws.String(thingName),
		MaxResults: aws.Int32(listPageSize),
	}
	for {
		out, err := j.api.ListJobExecutionsForThing(ctx, input)
		if err != nil {
			return cloud.Fail[[]JobSummary](op, err)
		}
		for _, s := range out.ExecutionSummaries {
			id := aws.ToString(s.JobId)
			js := JobSummary{JobID: id, Status: StatusPending}
			var queued *time.Time
			if sum := s.JobExecutionSummary; sum != nil {
				js.Status = executionStatus(sum.Status)
				js.RawStatus = string(sum.Status)
				queued = sum.QueuedAt
			}
			js.CreatedAt = createdAt(id, queued)
			all = append(all, js)
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	all = newestFirst(all, n)
	log.Info().Str("thing", thingName).Int("jobs", len(all)).Msg("Device jobs listed")
	return result.Success(all)
}

// createdAt prefers the service timestamp and falls back to the one encoded
// in a deployment job ID.
func createdAt(jobID string, t *time.Time) time.Time {
	if at := aws.ToTime(t); !at.IsZero() {
		return at
	}
	if at, ok := jobs.CreatedAt(jobID); ok {
		return at
	}
	return time.Time{}
}

// newestFirst sorts by creation time and keeps at most n entries
// (DefaultListLimit when n <= 0).
func newestFirst(all []JobSummary, n int) []JobSummary {
	if n <= 0 {
		n = DefaultListLimit
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].CreatedAt.After(all[b].CreatedAt) })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Cancel asks a pending or running job to stop. A job already in a
// terminal state is left alone and reported unchanged.
func (j *Jobs) Cancel(ctx context.Context, jobID, comment string) result.Result[*CancelOutcome] {
	const op = "fleet.Cancel"

	state, err := j.Status(ctx, jobID).Get()
	if err != nil {
		return result.FromError[*CancelOutcome](op, err)
	}
	if state.Status.Terminal() {
		log.Info().Str("jobId", state.JobID).Str("status", string(state.Status)).Msg("Job already finished, nothing to cancel")
		return result.Success(&CancelOutcome{JobID: state.JobID, Status: state.Status})
	}

	if strings.TrimSpace(comment) == "" {
		comment = DefaultCancelComment
	}
	if _, err := j.api.CancelJob(ctx, &iot.CancelJobInput{
		JobId:      aws.String(state.JobID),
		ReasonCode: aws.String(cancelReasonCode),
		Comment:    aws.String(comment),
	}); err != nil {
		return cloud.Fail[*CancelOutcome](op, err)
	}

	log.Info().Str("jobId", state.JobID).Str("reason", comment).Msg("Job canceled")
	return result.Success(&CancelOutcome{JobID: state.JobID, Status: StatusCanceled, Changed: true})
}
