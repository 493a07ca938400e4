package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeBus) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEmitCaptureCompleted(t *testing.T) {
	bus := &fakeBus{}
	e := NewEmitter(bus, "fbedge")

	err := e.EmitCaptureCompleted(context.Background(), CaptureCompleted{
		StreamID:         "line-3-camera",
		SessionTimestamp: "20261019_080030",
		FrameCount:       30,
		Termination:      "duration_reached",
		CompletedAt:      time.Date(2026, 10, 19, 8, 1, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, bus.inputs, 1)

	entry := bus.inputs[0].Entries[0]
	assert.Equal(t, "fbedge", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, DetailCaptureCompleted, aws.ToString(entry.DetailType))

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "line-3-camera", detail["streamId"])
	assert.Equal(t, float64(30), detail["frameCount"])
}

func TestEmit_DisabledWithoutBus(t *testing.T) {
	bus := &fakeBus{}
	assert.NoError(t, NewEmitter(bus, "").EmitDeploymentJobCreated(context.Background(), DeploymentJobCreated{JobID: "j"}))
	assert.Empty(t, bus.inputs)

	var nilEmitter *Emitter
	assert.False(t, nilEmitter.Enabled())
	assert.NoError(t, nilEmitter.EmitCaptureCompleted(context.Background(), CaptureCompleted{}))
}

func TestEmit_Failures(t *testing.T) {
	bus := &fakeBus{err: errors.New("throttled")}
	err := NewEmitter(bus, "fbedge").EmitDeploymentJobCreated(context.Background(), DeploymentJobCreated{JobID: "j"})
	assert.ErrorContains(t, err, "PutEvents")

	bus = &fakeBus{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{
			{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
		},
	}}
	err = NewEmitter(bus, "fbedge").EmitDeploymentJobCreated(context.Background(), DeploymentJobCreated{JobID: "j"})
	assert.ErrorContains(t, err, "InternalFailure")
}
