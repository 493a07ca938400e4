// Package kvs locates Kinesis Video streams and captures sampled frames from
// them into dataset session directories.
package kvs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideoarchivedmedia"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideomedia"
)

// ControlAPI is the subset of the Kinesis Video control plane used here.
type ControlAPI interface {
	DescribeStream(ctx context.Context, params *kinesisvideo.DescribeStreamInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.DescribeStreamOutput, error)
	GetDataEndpoint(ctx context.Context, params *kinesisvideo.GetDataEndpointInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.GetDataEndpointOutput, error)
	DescribeSignalingChannel(ctx context.Context, params *kinesisvideo.DescribeSignalingChannelInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.DescribeSignalingChannelOutput, error)
	GetSignalingChannelEndpoint(ctx context.Context, params *kinesisvideo.GetSignalingChannelEndpointInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.GetSignalingChannelEndpointOutput, error)
}

// MediaAPI reads the live media stream.
type MediaAPI interface {
	GetMedia(ctx context.Context, params *kinesisvideomedia.GetMediaInput, optFns ...func(*kinesisvideomedia.Options)) (*kinesisvideomedia.GetMediaOutput, error)
}

// ArchiveAPI lists and reads archived fragments.
type ArchiveAPI interface {
	ListFragments(ctx context.Context, params *kinesisvideoarchivedmedia.ListFragmentsInput, optFns ...func(*kinesisvideoarchivedmedia.Options)) (*kinesisvideoarchivedmedia.ListFragmentsOutput, error)
	GetMediaForFragmentList(ctx context.Context, params *kinesisvideoarchivedmedia.GetMediaForFragmentListInput, optFns ...func(*kinesisvideoarchivedmedia.Options)) (*kinesisvideoarchivedmedia.GetMediaForFragmentListOutput, error)
}

var (
	_ ControlAPI = (*kinesisvideo.Client)(nil)
	_ MediaAPI   = (*kinesisvideomedia.Client)(nil)
	_ ArchiveAPI = (*kinesisvideoarchivedmedia.Client)(nil)
)

// newMediaClient builds a media client bound to a stream's data endpoint.
func newMediaClient(cfg aws.Config, endpoint string) *kinesisvideomedia.Client {
	return kinesisvideomedia.NewFromConfig(cfg, func(o *kinesisvideomedia.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// newArchiveClient builds an archived-media client bound to an endpoint.
func newArchiveClient(cfg aws.Config, endpoint string) *kinesisvideoarchivedmedia.Client {
	return kinesisvideoarchivedmedia.NewFromConfig(cfg, func(o *kinesisvideoarchivedmedia.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}
