package kvs

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

type fakeControl struct {
	describeErr  error
	retention    int32
	status       types.StreamStatus
	endpointErrs map[types.APIName]error
	channel      bool

	endpointCalls []types.APIName
}

func (f *fakeControl) DescribeStream(ctx context.Context, in *kinesisvideo.DescribeStreamInput, _ ...func(*kinesisvideo.Options)) (*kinesisvideo.DescribeStreamOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	status := f.status
	if status == "" {
		status = types.StatusActive
	}
	return &kinesisvideo.DescribeStreamOutput{StreamInfo: &types.StreamInfo{
		StreamName:           in.StreamName,
		StreamARN:            aws.String(testStreamARN),
		Status:               status,
		MediaType:            aws.String("video/h264"),
		DataRetentionInHours: aws.Int32(f.retention),
		CreationTime:         aws.Time(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
	}}, nil
}

func (f *fakeControl) GetDataEndpoint(ctx context.Context, in *kinesisvideo.GetDataEndpointInput, _ ...func(*kinesisvideo.Options)) (*kinesisvideo.GetDataEndpointOutput, error) {
	f.endpointCalls = append(f.endpointCalls, in.APIName)
	if err := f.endpointErrs[in.APIName]; err != nil {
		return nil, err
	}
	return &kinesisvideo.GetDataEndpointOutput{
		DataEndpoint: aws.String("https://" + string(in.APIName) + ".kinesisvideo.eu-west-1.amazonaws.com"),
	}, nil
}

func (f *fakeControl) DescribeSignalingChannel(ctx context.Context, in *kinesisvideo.DescribeSignalingChannelInput, _ ...func(*kinesisvideo.Options)) (*kinesisvideo.DescribeSignalingChannelOutput, error) {
	if !f.channel {
		return nil, apiError("ResourceNotFoundException")
	}
	return &kinesisvideo.DescribeSignalingChannelOutput{ChannelInfo: &types.ChannelInfo{
		ChannelName: in.ChannelName,
		ChannelARN:  aws.String("arn:aws:kinesisvideo:eu-west-1:123456789012:channel/line-3-camera/1"),
	}}, nil
}

func (f *fakeControl) GetSignalingChannelEndpoint(ctx context.Context, in *kinesisvideo.GetSignalingChannelEndpointInput, _ ...func(*kinesisvideo.Options)) (*kinesisvideo.GetSignalingChannelEndpointOutput, error) {
	return &kinesisvideo.GetSignalingChannelEndpointOutput{ResourceEndpointList: []types.ResourceEndpointListItem{
		{Protocol: types.ChannelProtocolWss, ResourceEndpoint: aws.String("wss://v-1234.kinesisvideo.eu-west-1.amazonaws.com")},
	}}, nil
}

func TestLocate(t *testing.T) {
	api := &fakeControl{retention: 24, channel: true}
	res := NewLocatorWithAPI(api).Locate(context.Background(), " line-3-camera ")
	require.True(t, res.OK(), "locate failed: %v", res.Err())

	desc := res.Value()
	assert.Equal(t, "line-3-camera", desc.Name)
	assert.Equal(t, testStreamARN, desc.ARN)
	assert.True(t, desc.Active())
	assert.Equal(t, int32(24), desc.RetentionHours)
	assert.Equal(t, "https://GET_MEDIA.kinesisvideo.eu-west-1.amazonaws.com", desc.DataEndpoint)
	assert.Equal(t, "https://LIST_FRAGMENTS.kinesisvideo.eu-west-1.amazonaws.com", desc.ArchiveEndpoint)
	assert.Equal(t, "wss://v-1234.kinesisvideo.eu-west-1.amazonaws.com", desc.SignalingEndpoint)
}

func TestLocate_NoRetentionSkipsArchive(t *testing.T) {
	api := &fakeControl{}
	res := NewLocatorWithAPI(api).Locate(context.Background(), "line-3-camera")
	require.True(t, res.OK())

	assert.Empty(t, res.Value().ArchiveEndpoint)
	assert.Empty(t, res.Value().SignalingEndpoint)
	assert.Equal(t, []types.APIName{types.APINameGetMedia}, api.endpointCalls)
}

func TestLocate_InactiveStreamIsReturned(t *testing.T) {
	api := &fakeControl{status: types.StatusUpdating}
	res := NewLocatorWithAPI(api).Locate(context.Background(), "line-3-camera")
	require.True(t, res.OK())
	assert.False(t, res.Value().Active())
}

func TestLocate_ArchiveEndpointFailureIsNotFatal(t *testing.T) {
	api := &fakeControl{retention: 2, endpointErrs: map[types.APIName]error{
		types.APINameListFragments: apiError("AccessDeniedException"),
	}}
	res := NewLocatorWithAPI(api).Locate(context.Background(), "line-3-camera")
	require.True(t, res.OK())
	assert.Empty(t, res.Value().ArchiveEndpoint)
}

func TestLocate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		api    *fakeControl
		want   result.Kind
	}{
		{"empty name", "  ", &fakeControl{}, result.KindInvalidInput},
		{"missing stream", "nope", &fakeControl{describeErr: apiError("ResourceNotFoundException")}, result.KindNotFound},
		{"throttled", "line-3-camera", &fakeControl{describeErr: apiError("ClientLimitExceededException")}, result.KindTransient},
		{"denied", "line-3-camera", &fakeControl{describeErr: apiError("AccessDeniedException")}, result.KindCredentials},
		{"no media endpoint", "line-3-camera", &fakeControl{endpointErrs: map[types.APIName]error{
			types.APINameGetMedia: apiError("ResourceNotFoundException"),
		}}, result.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewLocatorWithAPI(tt.api).Locate(context.Background(), tt.stream)
			require.False(t, res.OK())
			assert.Equal(t, tt.want, res.Kind())
		})
	}
}
