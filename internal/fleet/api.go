// Package fleet checks device registrations and manages deployment jobs on
// AWS IoT Core.
package fleet

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
)

// IoTAPI is the subset of the IoT control plane used here.
type IoTAPI interface {
	DescribeThing(ctx context.Context, params *iot.DescribeThingInput, optFns ...func(*iot.Options)) (*iot.DescribeThingOutput, error)
	DescribeEndpoint(ctx context.Context, params *iot.DescribeEndpointInput, optFns ...func(*iot.Options)) (*iot.DescribeEndpointOutput, error)
	CreateJob(ctx context.Context, params *iot.CreateJobInput, optFns ...func(*iot.Options)) (*iot.CreateJobOutput, error)
	DescribeJob(ctx context.Context, params *iot.DescribeJobInput, optFns ...func(*iot.Options)) (*iot.DescribeJobOutput, error)
	ListJobExecutionsForJob(ctx context.Context, params *iot.ListJobExecutionsForJobInput, optFns ...func(*iot.Options)) (*iot.ListJobExecutionsForJobOutput, error)
	ListJobExecutionsForThing(ctx context.Context, params *iot.ListJobExecutionsForThingInput, optFns ...func(*iot.Options)) (*iot.ListJobExecutionsForThingOutput, error)
	ListJobs(ctx context.Context, params *iot.ListJobsInput, optFns ...func(*iot.Options)) (*iot.ListJobsOutput, error)
	CancelJob(ctx context.Context, params *iot.CancelJobInput, optFns ...func(*iot.Options)) (*iot.CancelJobOutput, error)
}

// ShadowAPI reads device shadows from the IoT data plane.
type ShadowAPI interface {
	GetThingShadow(ctx context.Context, params *iotdataplane.GetThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.GetThingShadowOutput, error)
}

var (
	_ IoTAPI    = (*iot.Client)(nil)
	_ ShadowAPI = (*iotdataplane.Client)(nil)
)
