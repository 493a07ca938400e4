// Package events publishes capture and deployment notifications to EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Source is the EventBridge source of every event emitted here.
const Source = "fbedge.examples"

// Detail types.
const (
	DetailCaptureCompleted     = "CaptureCompleted"
	DetailDeploymentJobCreated = "DeploymentJobCreated"
)

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventBridgeAPI = (*eventbridge.Client)(nil)

// CaptureCompleted is emitted after a capture session's manifest is written.
type CaptureCompleted struct {
	StreamID         string    `json:"streamId"`
	SessionTimestamp string    `json:"sessionTimestamp"`
	FrameCount       int       `json:"frameCount"`
	FragmentsRead    int       `json:"fragmentsRead"`
	Termination      string    `json:"termination"`
	ArchiveKey       string    `json:"archiveKey,omitempty"`
	CompletedAt      time.Time `json:"completedAt"`
}

// DeploymentJobCreated is emitted after a deployment job is accepted.
type DeploymentJobCreated struct {
	JobID     string    `json:"jobId"`
	JobARN    string    `json:"jobArn"`
	ThingARN  string    `json:"thingArn"`
	URL       string    `json:"url"`
	Origin    string    `json:"origin,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Emitter publishes events to one bus. A nil or zero Emitter drops events,
// which is how the tools run without a bus configured.
type Emitter struct {
	client EventBridgeAPI
	bus    string
}

// NewEmitter returns an Emitter for bus. An empty bus name disables emission.
func NewEmitter(client EventBridgeAPI, bus string) *Emitter {
	return &Emitter{client: client, bus: bus}
}

// Enabled reports whether events are actually sent.
func (e *Emitter) Enabled() bool {
	return e != nil && e.client != nil && e.bus != ""
}

// EmitCaptureCompleted publishes a finished capture session, keyed by stream.
// It is a no-op when the emitter is disabled.
func (e *Emitter) EmitCaptureCompleted(ctx context.Context, evt CaptureCompleted) error {
	return e.emit(ctx, DetailCaptureCompleted, evt.StreamID, evt)
}

// EmitDeploymentJobCreated publishes a newly created deployment job, keyed by
// job ID. It is a no-op when the emitter is disabled.
func (e *Emitter) EmitDeploymentJobCreated(ctx context.Context, evt DeploymentJobCreated) error {
	return e.emit(ctx, DetailDeploymentJobCreated, evt.JobID, evt)
}

func (e *Emitter) emit(ctx context.Context, detailType, subject string, event any) error {
	if !e.Enabled() {
		return nil
	}

	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", detailType, err)
	}

	out, err := e.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(e.bus),
				Source:       aws.String(Source),
				DetailType:   aws.String(detailType),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Str("detailType", detailType).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if out.FailedEntryCount > 0 {
		for i, entry := range out.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("subject", subject).
					Str("detailType", detailType).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("subject", subject).Str("detailType", detailType).Msg("Event emitted to EventBridge")
	return nil
}
