package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FactbirdHQ/fbedge-examples/internal/metrics"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

const thingARN = "arn:aws:iot:eu-west-1:123456789012:thing/hailo-edge-01"

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code + " from service"}
}

// fakeIoT records calls and serves canned responses.
type fakeIoT struct {
	thing    *iot.DescribeThingOutput
	thingErr error

	createErr error
	created   []*iot.CreateJobInput

	job       *types.Job
	jobErr    error
	execs     []types.JobExecutionSummaryForJob
	execsErr  error
	listPages [][]types.JobSummary
	listCalls int
	listErr   error

	thingPages    [][]types.JobExecutionSummaryForThing
	thingQueries  []*iot.ListJobExecutionsForThingInput
	thingExecsErr error

	canceled  []*iot.CancelJobInput
	cancelErr error

	calls int
}

func (f *fakeIoT) DescribeThing(ctx context.Context, in *iot.DescribeThingInput, _ ...func(*iot.Options)) (*iot.DescribeThingOutput, error) {
	f.calls++
	if f.thingErr != nil {
		return nil, f.thingErr
	}
	return f.thing, nil
}

func (f *fakeIoT) DescribeEndpoint(ctx context.Context, in *iot.DescribeEndpointInput, _ ...func(*iot.Options)) (*iot.DescribeEndpointOutput, error) {
	f.calls++
	return &iot.DescribeEndpointOutput{EndpointAddress: aws.String("abc123-ats.iot.eu-west-1.amazonaws.com")}, nil
}

func (f *fakeIoT) CreateJob(ctx context.Context, in *iot.CreateJobInput, _ ...func(*iot.Options)) (*iot.CreateJobOutput, error) {
	f.calls++
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &iot.CreateJobOutput{
		JobId:  in.JobId,
		JobArn: aws.String("arn:aws:iot:eu-west-1:123456789012:job/" + aws.ToString(in.JobId)),
	}, nil
}

func (f *fakeIoT) DescribeJob(ctx context.Context, in *iot.DescribeJobInput, _ ...func(*iot.Options)) (*iot.DescribeJobOutput, error) {
	f.calls++
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	return &iot.DescribeJobOutput{Job: f.job}, nil
}

func (f *fakeIoT) ListJobExecutionsForJob(ctx context.Context, in *iot.ListJobExecutionsForJobInput, _ ...func(*iot.Options)) (*iot.ListJobExecutionsForJobOutput, error) {
	f.calls++
	if f.execsErr != nil {
		return nil, f.execsErr
	}
	return &iot.ListJobExecutionsForJobOutput{ExecutionSummaries: f.execs}, nil
}

func (f *fakeIoT) ListJobs(ctx context.Context, in *iot.ListJobsInput, _ ...func(*iot.Options)) (*iot.ListJobsOutput, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.listCalls
	f.listCalls++
	out := &iot.ListJobsOutput{Jobs: f.listPages[page]}
	if page+1 < len(f.listPages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func (f *fakeIoT) ListJobExecutionsForThing(ctx context.Context, in *iot.ListJobExecutionsForThingInput, _ ...func(*iot.Options)) (*iot.ListJobExecutionsForThingOutput, error) {
	f.calls++
	if f.thingExecsErr != nil {
		return nil, f.thingExecsErr
	}
	page := len(f.thingQueries)
	f.thingQueries = append(f.thingQueries, in)
	out := &iot.ListJobExecutionsForThingOutput{ExecutionSummaries: f.thingPages[page]}
	if page+1 < len(f.thingPages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func (f *fakeIoT) CancelJob(ctx context.Context, in *iot.CancelJobInput, _ ...func(*iot.Options)) (*iot.CancelJobOutput, error) {
	f.calls++
	f.canceled = append(f.canceled, in)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &iot.CancelJobOutput{JobId: in.JobId}, nil
}

type fakeShadow struct {
	err error
}

func (f *fakeShadow) GetThingShadow(ctx context.Context, in *iotdataplane.GetThingShadowInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.GetThingShadowOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &iotdataplane.GetThingShadowOutput{Payload: []byte(`{"state":{"reported":{"model":"yolov8n"}}}`)}, nil
}

func shadowOf(s ShadowAPI) ShadowFactory {
	return func(context.Context) (ShadowAPI, error) { return s, nil }
}

func registeredThing() *iot.DescribeThingOutput {
	return &iot.DescribeThingOutput{
		ThingName:     aws.String("hailo-edge-01"),
		ThingArn:      aws.String(thingARN),
		ThingId:       aws.String("6f1c2b1e-0d2a-4bb3-9f4e-2c1d5c0b9a77"),
		ThingTypeName: aws.String("hailo8"),
		Attributes:    map[string]string{"line": "3"},
		Version:       4,
	}
}

func TestCheck_Registered(t *testing.T) {
	api := &fakeIoT{thing: registeredThing()}
	res := NewDevicesWithAPI(api, shadowOf(&fakeShadow{})).Check(context.Background(), "hailo-edge-01")
	require.True(t, res.OK())

	rec := res.Value()
	assert.Equal(t, "hailo-edge-01", rec.ThingName)
	assert.Equal(t, thingARN, rec.ARN)
	assert.Equal(t, "hailo8", rec.Type)
	assert.Equal(t, "3", rec.Attributes["line"])
	assert.Equal(t, int64(4), rec.Version)
	assert.True(t, rec.ShadowAvailable)
}

func TestCheck_ShadowMissingIsNotAnError(t *testing.T) {
	api := &fakeIoT{thing: registeredThing()}
	res := NewDevicesWithAPI(api, shadowOf(&fakeShadow{err: apiError("ResourceNotFoundException")})).Check(context.Background(), "hailo-edge-01")
	require.True(t, res.OK())
	assert.False(t, res.Value().ShadowAvailable)
}

func TestCheck_Failures(t *testing.T) {
	tests := []struct {
		name  string
		thing string
		err   error
		want  result.Kind
	}{
		{"unregistered", "ghost", apiError("ResourceNotFoundException"), result.KindNotFound},
		{"denied", "hailo-edge-01", apiError("UnauthorizedException"), result.KindCredentials},
		{"throttled", "hailo-edge-01", apiError("ThrottlingException"), result.KindTransient},
		{"empty name", " ", nil, result.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeIoT{thingErr: tt.err}
			res := NewDevicesWithAPI(api, nil).Check(context.Background(), tt.thing)
			require.False(t, res.OK())
			assert.Equal(t, tt.want, res.Kind())
			assert.Nil(t, res.Value())
		})
	}
}

func TestDataPlaneFactoryResolvesEndpointOnce(t *testing.T) {
	api := &fakeIoT{}
	factory := dataPlane(aws.Config{Region: "eu-west-1"}, api)

	a, err := factory(context.Background())
	require.NoError(t, err)
	b, err := factory(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, api.calls)
}

func testJobs(api IoTAPI) *Jobs {
	j := NewJobsWithAPI(api)
	j.now = func() time.Time { return time.Date(2026, 10, 19, 10, 15, 0, 0, time.UTC) }
	j.newID = func(at time.Time) string { return "deploy_download_" + at.Format("20060102_150405") + "_ab12cd34" }
	return j
}

func TestSubmit(t *testing.T) {
	api := &fakeIoT{}
	j := testJobs(api)
	j.Destination = "/opt/models/model.hef"

	res := j.Submit(context.Background(), thingARN, "https://models.example.com/yolov8n.hef?X-Amz-Signature=abc")
	require.True(t, res.OK())

	job := res.Value()
	assert.Equal(t, "deploy_download_20261019_101500_ab12cd34", job.JobID)
	assert.Equal(t, "arn:aws:iot:eu-west-1:123456789012:job/deploy_download_20261019_101500_ab12cd34", job.JobARN)
	assert.Equal(t, StatusPending, job.Status)

	require.Len(t, api.created, 1)
	in := api.created[0]
	assert.Equal(t, []string{thingARN}, in.Targets)
	assert.Equal(t, types.TargetSelectionSnapshot, in.TargetSelection)
	assert.Equal(t, int32(10), aws.ToInt32(in.JobExecutionsRolloutConfig.MaximumPerMinute))
	assert.Equal(t, int64(10), aws.ToInt64(in.TimeoutConfig.InProgressTimeoutInMinutes))
	assert.Equal(t, "Download file to edge device hailo-edge-01", aws.ToString(in.Description))

	var doc map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Document)), &doc))
	assert.Equal(t, map[string]string{
		"action":      "download",
		"url":         "https://models.example.com/yolov8n.hef?X-Amz-Signature=abc",
		"destination": "/opt/models/model.hef",
	}, doc)
}

func TestSubmit_RejectsLocallyWithoutNetworkCall(t *testing.T) {
	for _, u := range []string{"", "models.example.com/model.hef", "ftp://models.example.com/x", "https://", "://bad", "/relative/path"} {
		t.Run(u, func(t *testing.T) {
			api := &fakeIoT{}
			res := testJobs(api).Submit(context.Background(), thingARN, u)
			require.False(t, res.OK())
			assert.Equal(t, result.KindInvalidInput, res.Kind())
			assert.Nil(t, res.Value())
			assert.Zero(t, api.calls)
		})
	}
}

func TestSubmit_EmptyThingARN(t *testing.T) {
	api := &fakeIoT{}
	res := testJobs(api).Submit(context.Background(), "", "https://models.example.com/m.hef")
	assert.Equal(t, result.KindInvalidInput, res.Kind())
	assert.Zero(t, api.calls)
}

func TestSubmit_Conflict(t *testing.T) {
	api := &fakeIoT{createErr: apiError("ResourceAlreadyExistsException")}
	res := testJobs(api).Submit(context.Background(), thingARN, "https://models.example.com/m.hef")
	require.False(t, res.OK())
	assert.Equal(t, result.KindConflict, res.Kind())
}

func execution(status types.JobExecutionStatus) types.JobExecutionSummaryForJob {
	return types.JobExecutionSummaryForJob{
		ThingArn:            aws.String(thingARN),
		JobExecutionSummary: &types.JobExecutionSummary{Status: status},
	}
}

func describedJob(status types.JobStatus) *types.Job {
	return &types.Job{
		JobId:     aws.String("deploy_download_20261019_101500_ab12cd34"),
		JobArn:    aws.String("arn:aws:iot:eu-west-1:123456789012:job/deploy_download_20261019_101500_ab12cd34"),
		Status:    status,
		CreatedAt: aws.Time(time.Date(2026, 10, 19, 10, 15, 0, 0, time.UTC)),
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		job   types.JobStatus
		execs []types.JobExecutionSummaryForJob
		want  JobStatus
	}{
		{"queued", types.JobStatusInProgress, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusQueued)}, StatusPending},
		{"running", types.JobStatusInProgress, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusInProgress)}, StatusInProgress},
		{"succeeded", types.JobStatusCompleted, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusSucceeded)}, StatusSucceeded},
		{"timed out", types.JobStatusCompleted, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusTimedOut)}, StatusFailed},
		{"rejected", types.JobStatusCompleted, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusRejected)}, StatusFailed},
		{"removed", types.JobStatusCompleted, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusRemoved)}, StatusCanceled},
		{"job canceled", types.JobStatusCanceled, []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusInProgress)}, StatusCanceled},
		{"mixed", types.JobStatusInProgress, []types.JobExecutionSummaryForJob{
			execution(types.JobExecutionStatusSucceeded),
			execution(types.JobExecutionStatusFailed),
			execution(types.JobExecutionStatusQueued),
		}, StatusPending},
		{"no executions completed", types.JobStatusCompleted, nil, StatusSucceeded},
		{"no executions scheduled", types.JobStatusScheduled, nil, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeIoT{job: describedJob(tt.job), execs: tt.execs}
			res := testJobs(api).Status(context.Background(), "deploy_download_20261019_101500_ab12cd34")
			require.True(t, res.OK())
			assert.Equal(t, tt.want, res.Value().Status)
			assert.Equal(t, string(tt.job), res.Value().RawStatus)
			assert.Len(t, res.Value().Executions, len(tt.execs))
		})
	}
}

func TestStatus_ExecutionListingFailureFallsBackToJob(t *testing.T) {
	api := &fakeIoT{job: describedJob(types.JobStatusInProgress), execsErr: apiError("ThrottlingException")}
	res := testJobs(api).Status(context.Background(), "deploy_download_20261019_101500_ab12cd34")
	require.True(t, res.OK())
	assert.Equal(t, StatusInProgress, res.Value().Status)
	assert.Empty(t, res.Value().Executions)
}

func TestStatus_NotFound(t *testing.T) {
	api := &fakeIoT{jobErr: apiError("ResourceNotFoundException")}
	res := testJobs(api).Status(context.Background(), "deploy_download_missing")
	require.False(t, res.OK())
	assert.Equal(t, result.KindNotFound, res.Kind())
}

func jobSummary(id string, created time.Time) types.JobSummary {
	return types.JobSummary{
		JobId:     aws.String(id),
		JobArn:    aws.String("arn:aws:iot:eu-west-1:123456789012:job/" + id),
		Status:    types.JobStatusCompleted,
		CreatedAt: aws.Time(created),
	}
}

func TestList(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeIoT{listPages: [][]types.JobSummary{
		{jobSummary("j2", base.Add(2*time.Hour)), jobSummary("j5", base.Add(5*time.Hour))},
		{jobSummary("j1", base.Add(time.Hour)), jobSummary("j4", base.Add(4*time.Hour))},
		{jobSummary("j3", base.Add(3*time.Hour))},
	}}

	res := testJobs(api).List(context.Background(), 3)
	require.True(t, res.OK())

	var ids []string
	for _, s := range res.Value() {
		ids = append(ids, s.JobID)
		assert.Equal(t, StatusSucceeded, s.Status)
	}
	assert.Equal(t, []string{"j5", "j4", "j3"}, ids)
	assert.Equal(t, 3, api.listCalls)
}

func TestList_ReadsEveryPageBeforeSorting(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	var pages [][]types.JobSummary
	for p := 0; p < 8; p++ {
		var page []types.JobSummary
		for i := 0; i < 4; i++ {
			page = append(page, jobSummary(fmt.Sprintf("j-%d-%d", p, i), base.Add(time.Duration(p*4+i)*time.Minute)))
		}
		pages = append(pages, page)
	}
	api := &fakeIoT{listPages: pages}

	res := testJobs(api).List(context.Background(), 0)
	require.True(t, res.OK())
	assert.Len(t, res.Value(), DefaultListLimit)
	assert.Equal(t, 8, api.listCalls)
	// The newest job sits on the last page.
	assert.Equal(t, "j-7-3", res.Value()[0].JobID)
}

func TestList_CreatedAtFallsBackToJobID(t *testing.T) {
	noStamp := jobSummary("deploy_download_20261002_120000_0a1b2c3d", time.Time{})
	noStamp.CreatedAt = nil
	api := &fakeIoT{listPages: [][]types.JobSummary{{
		jobSummary("j-old", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)),
		noStamp,
	}}}

	res := testJobs(api).List(context.Background(), 5)
	require.True(t, res.OK())
	list := res.Value()
	require.Len(t, list, 2)
	assert.Equal(t, "deploy_download_20261002_120000_0a1b2c3d", list[0].JobID)
	assert.True(t, list[0].CreatedAt.Equal(time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "j-old", list[1].JobID)
}

func TestList_Failure(t *testing.T) {
	api := &fakeIoT{listErr: apiError("ExpiredTokenException")}
	res := testJobs(api).List(context.Background(), 5)
	assert.Equal(t, result.KindCredentials, res.Kind())
}

func thingExecution(id string, status types.JobExecutionStatus, queued *time.Time) types.JobExecutionSummaryForThing {
	return types.JobExecutionSummaryForThing{
		JobId: aws.String(id),
		JobExecutionSummary: &types.JobExecutionSummary{
			Status:   status,
			QueuedAt: queued,
		},
	}
}

func TestListForThing(t *testing.T) {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeIoT{thingPages: [][]types.JobExecutionSummaryForThing{
		{
			thingExecution("j1", types.JobExecutionStatusSucceeded, aws.Time(base.Add(time.Hour))),
			thingExecution("j3", types.JobExecutionStatusInProgress, aws.Time(base.Add(3*time.Hour))),
		},
		{
			thingExecution("deploy_download_20261001_020000_0a1b2c3d", types.JobExecutionStatusTimedOut, nil),
			{JobId: aws.String("j0")},
		},
	}}

	res := testJobs(api).ListForThing(context.Background(), " hailo-edge-01 ", 3)
	require.True(t, res.OK(), "list failed: %v", res.Err())

	list := res.Value()
	require.Len(t, list, 3)
	assert.Equal(t, "j3", list[0].JobID)
	assert.Equal(t, StatusInProgress, list[0].Status)
	assert.Equal(t, "deploy_download_20261001_020000_0a1b2c3d", list[1].JobID)
	assert.Equal(t, StatusFailed, list[1].Status)
	assert.Equal(t, "TIMED_OUT", list[1].RawStatus)
	assert.True(t, list[1].CreatedAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, "j1", list[2].JobID)
	assert.Empty(t, list[2].JobARN)

	require.Len(t, api.thingQueries, 2)
	assert.Equal(t, "hailo-edge-01", aws.ToString(api.thingQueries[0].ThingName))
	assert.Nil(t, api.thingQueries[0].NextToken)
	assert.Equal(t, "page-1", aws.ToString(api.thingQueries[1].NextToken))
}

func TestListForThing_EmptyName(t *testing.T) {
	api := &fakeIoT{}
	res := testJobs(api).ListForThing(context.Background(), "  ", 5)
	assert.Equal(t, result.KindInvalidInput, res.Kind())
	assert.Zero(t, api.calls)
}

func TestListForThing_Failure(t *testing.T) {
	api := &fakeIoT{thingExecsErr: apiError("ResourceNotFoundException")}
	res := testJobs(api).ListForThing(context.Background(), "ghost-device", 5)
	assert.Equal(t, result.KindNotFound, res.Kind())
}

func TestCancel_InProgress(t *testing.T) {
	api := &fakeIoT{
		job:   describedJob(types.JobStatusInProgress),
		execs: []types.JobExecutionSummaryForJob{execution(types.JobExecutionStatusQueued)},
	}
	res := testJobs(api).Cancel(context.Background(), "deploy_download_20261019_101500_ab12cd34", "")
	require.True(t, res.OK())
	assert.True(t, res.Value().Changed)
	assert.Equal(t, StatusCanceled, res.Value().Status)

	require.Len(t, api.canceled, 1)
	assert.Equal(t, "USER_INITIATED", aws.ToString(api.canceled[0].ReasonCode))
	assert.Equal(t, DefaultCancelComment, aws.ToString(api.canceled[0].Comment))
}

func TestCancel_TerminalIsNoOp(t *testing.T) {
	for _, st := range []types.JobExecutionStatus{
		types.JobExecutionStatusSucceeded,
		types.JobExecutionStatusFailed,
		types.JobExecutionStatusCanceled,
	} {
		t.Run(string(st), func(t *testing.T) {
			api := &fakeIoT{job: describedJob(types.JobStatusCompleted), execs: []types.JobExecutionSummaryForJob{execution(st)}}
			res := testJobs(api).Cancel(context.Background(), "deploy_download_20261019_101500_ab12cd34", "rollback")
			require.True(t, res.OK())
			assert.False(t, res.Value().Changed)
			assert.True(t, res.Value().Status.Terminal())
			assert.Empty(t, api.canceled)
		})
	}
}

func TestCancel_Unknown(t *testing.T) {
	api := &fakeIoT{jobErr: apiError("ResourceNotFoundException")}
	res := testJobs(api).Cancel(context.Background(), "deploy_download_missing", "")
	require.False(t, res.OK())
	assert.Equal(t, result.KindNotFound, res.Kind())
	assert.Empty(t, api.canceled)
}

func TestCancel_ServiceFailure(t *testing.T) {
	api := &fakeIoT{job: describedJob(types.JobStatusInProgress), cancelErr: errors.New("dial tcp: i/o timeout")}
	res := testJobs(api).Cancel(context.Background(), "deploy_download_20261019_101500_ab12cd34", "stop")
	require.False(t, res.OK())
	assert.Equal(t, result.KindTransient, res.Kind())
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://bucket.s3.eu-west-1.amazonaws.com/models/hef/a.hef"))
	assert.NoError(t, ValidateURL("http://10.0.0.5:8080/model.hef"))
	assert.Error(t, ValidateURL("s3://bucket/model.hef"))
	assert.Error(t, ValidateURL("https:///model.hef"))
}
