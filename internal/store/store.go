// Package store keeps a ledger of capture sessions and deployment jobs so
// that datasets and model rollouts can be traced after the fact.
//
// The ledger uses a single DynamoDB table. Captures live under
// STREAM#{streamId} with sort key CAPTURE#{sessionTimestamp}; deployments
// live under JOB#{jobId} with sort key META. A TTL attribute (expiresAt)
// ages records out after RecordTTL.
package store

import (
	"context"
	"time"
)

// RecordTTL is how long ledger records are kept.
const RecordTTL = 90 * 24 * time.Hour

// Ledger records what the tools did. Get methods return (nil, nil) when the
// record does not exist. Put methods replace the whole item.
type Ledger interface {
	PutCapture(ctx context.Context, rec *CaptureRecord) error
	// ListCaptures returns a stream's captures, newest first.
	ListCaptures(ctx context.Context, streamID string) ([]CaptureRecord, error)

	PutDeployment(ctx context.Context, rec *DeploymentRecord) error
	GetDeployment(ctx context.Context, jobID string) (*DeploymentRecord, error)
	// UpdateDeploymentStatus changes only the status of an existing record.
	UpdateDeploymentStatus(ctx context.Context, jobID, status string) error
}

// CaptureRecord summarizes one capture session.
type CaptureRecord struct {
	StreamID         string `dynamodbav:"-" json:"streamId"`
	SessionTimestamp string `dynamodbav:"-" json:"sessionTimestamp"`
	SessionDir       string `dynamodbav:"sessionDir" json:"sessionDir"`
	StartMode        string `dynamodbav:"startMode" json:"startMode"`
	FrameCount       int    `dynamodbav:"frameCount" json:"frameCount"`
	FragmentsRead    int    `dynamodbav:"fragmentsRead" json:"fragmentsRead"`
	BytesRead        int64  `dynamodbav:"bytesRead" json:"bytesRead"`
	Termination      string `dynamodbav:"termination" json:"termination"`
	ArchiveKey       string `dynamodbav:"archiveKey,omitempty" json:"archiveKey,omitempty"`
	Host             string `dynamodbav:"host,omitempty" json:"host,omitempty"`
	CreatedAt        int64  `dynamodbav:"createdAt" json:"createdAt"`
}

// DeploymentRecord tracks one deployment job.
type DeploymentRecord struct {
	JobID    string `dynamodbav:"-" json:"jobId"`
	JobARN   string `dynamodbav:"jobArn" json:"jobArn"`
	ThingARN string `dynamodbav:"thingArn" json:"thingArn"`
	URL      string `dynamodbav:"url" json:"url"`
	// Origin names what triggered the deployment, e.g. "cli" or an S3 object URI.
	Origin    string `dynamodbav:"origin,omitempty" json:"origin,omitempty"`
	Status    string `dynamodbav:"status" json:"status"`
	CreatedAt int64  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt int64  `dynamodbav:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Noop is a Ledger that records nothing. It is used when no table is configured.
type Noop struct{}

var _ Ledger = Noop{}

func (Noop) PutCapture(context.Context, *CaptureRecord) error { return nil }

func (Noop) ListCaptures(context.Context, string) ([]CaptureRecord, error) { return nil, nil }

func (Noop) PutDeployment(context.Context, *DeploymentRecord) error { return nil }

func (Noop) GetDeployment(context.Context, string) (*DeploymentRecord, error) { return nil, nil }

func (Noop) UpdateDeploymentStatus(context.Context, string, string) error { return nil }
