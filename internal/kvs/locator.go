package kvs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo/types"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// StreamDescriptor is the immutable description of a located stream.
type StreamDescriptor struct {
	Name              string    `json:"name"`
	ARN               string    `json:"arn"`
	Status            string    `json:"status"`
	MediaType         string    `json:"mediaType,omitempty"`
	RetentionHours    int32     `json:"retentionHours"`
	CreatedAt         time.Time `json:"createdAt"`
	DataEndpoint      string    `json:"dataEndpoint"`
	ArchiveEndpoint   string    `json:"archiveEndpoint,omitempty"`
	SignalingEndpoint string    `json:"signalingEndpoint,omitempty"`
}

// Active reports whether the stream accepts reads.
func (d *StreamDescriptor) Active() bool {
	return d.Status == string(types.StatusActive)
}

// Locator resolves stream names into descriptors. It never caches.
type Locator struct {
	api ControlAPI
}

// NewLocator returns a Locator using the session's Kinesis Video client.
func NewLocator(sess *cloud.Session) *Locator {
	return &Locator{api: kinesisvideo.NewFromConfig(sess.Config)}
}

// NewLocatorWithAPI returns a Locator over an explicit control-plane client.
func NewLocatorWithAPI(api ControlAPI) *Locator {
	return &Locator{api: api}
}

// Locate describes the stream and resolves its media endpoints. A missing
// stream is a not-found failure; throttling and network errors are transient.
func (l *Locator) Locate(ctx context.Context, name string) result.Result[*StreamDescriptor] {
	const op = "kvs.Locate"

	name = strings.TrimSpace(name)
	if name == "" {
		return result.Failure[*StreamDescriptor](result.KindInvalidInput, op, errors.New("stream name is empty"))
	}

	out, err := l.api.DescribeStream(ctx, &kinesisvideo.DescribeStreamInput{StreamName: aws.String(name)})
	if err != nil {
		return cloud.Fail[*StreamDescriptor](op, err)
	}
	info := out.StreamInfo
	if info == nil {
		return result.Failure[*StreamDescriptor](result.KindNotFound, op, errors.New("stream "+name+" has no description"))
	}

	desc := &StreamDescriptor{
		Name:           aws.ToString(info.StreamName),
		ARN:            aws.ToString(info.StreamARN),
		Status:         string(info.Status),
		MediaType:      aws.ToString(info.MediaType),
		RetentionHours: aws.ToInt32(info.DataRetentionInHours),
		CreatedAt:      aws.ToTime(info.CreationTime),
	}
	if desc.Name == "" {
		desc.Name = name
	}
	if !desc.Active() {
		log.Warn().Str("stream", name).Str("status", desc.Status).Msg("Stream is not active")
	}

	desc.DataEndpoint, err = l.endpoint(ctx, desc.ARN, types.APINameGetMedia)
	if err != nil {
		return cloud.Fail[*StreamDescriptor](op, err)
	}

	if desc.RetentionHours > 0 {
		desc.ArchiveEndpoint, err = l.endpoint(ctx, desc.ARN, types.APINameListFragments)
		if err != nil {
			log.Warn().Err(err).Str("stream", name).Msg("Archive endpoint unavailable")
		}
	}

	desc.SignalingEndpoint = l.signalingEndpoint(ctx, name)

	log.Info().
		Str("stream", desc.Name).
		Str("arn", desc.ARN).
		Str("status", desc.Status).
		Int32("retentionHours", desc.RetentionHours).
		Str("dataEndpoint", desc.DataEndpoint).
		Bool("archive", desc.ArchiveEndpoint != "").
		Bool("signaling", desc.SignalingEndpoint != "").
		Msg("Stream located")

	return result.Success(desc)
}

func (l *Locator) endpoint(ctx context.Context, arn string, api types.APIName) (string, error) {
	out, err := l.api.GetDataEndpoint(ctx, &kinesisvideo.GetDataEndpointInput{
		StreamARN: aws.String(arn),
		APIName:   api,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.DataEndpoint), nil
}

// signalingEndpoint returns the WSS viewer endpoint of a signaling channel
// sharing the stream's name, or "" when there is none.
func (l *Locator) signalingEndpoint(ctx context.Context, name string) string {
	ch, err := l.api.DescribeSignalingChannel(ctx, &kinesisvideo.DescribeSignalingChannelInput{
		ChannelName: aws.String(name),
	})
	if err != nil || ch.ChannelInfo == nil {
		if err != nil && cloud.Classify(err) != result.KindNotFound {
			log.Debug().Err(err).Str("channel", name).Msg("Signaling channel lookup failed")
		}
		return ""
	}

	out, err := l.api.GetSignalingChannelEndpoint(ctx, &kinesisvideo.GetSignalingChannelEndpointInput{
		ChannelARN: ch.ChannelInfo.ChannelARN,
		SingleMasterChannelEndpointConfiguration: &types.SingleMasterChannelEndpointConfiguration{
			Protocols: []types.ChannelProtocol{types.ChannelProtocolWss},
			Role:      types.ChannelRoleViewer,
		},
	})
	if err != nil {
		log.Debug().Err(err).Str("channel", name).Msg("Signaling endpoint lookup failed")
		return ""
	}
	for _, ep := range out.ResourceEndpointList {
		if ep.Protocol == types.ChannelProtocolWss {
			return aws.ToString(ep.ResourceEndpoint)
		}
	}
	return ""
}
