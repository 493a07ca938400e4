// Package jobutil provides the lifecycle side effects shared by the CLI and
// the deploy Lambda: ledger writes, EventBridge notifications, and session
// archive upload.
//
// Side effects are best-effort. A ledger or event failure is logged and
// never turns a completed capture or an accepted job into a failure.
package jobutil

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/events"
	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/kvs"
	"github.com/FactbirdHQ/fbedge-examples/internal/store"
)

// Recorder persists and announces finished work. A zero Recorder records
// nothing.
type Recorder struct {
	Ledger store.Ledger
	Events *events.Emitter
}

func (r Recorder) ledger() store.Ledger {
	if r.Ledger == nil {
		return store.Noop{}
	}
	return r.Ledger
}

// CaptureDone records a finished capture session. archiveKey is empty when
// the session was not uploaded.
func (r Recorder) CaptureDone(ctx context.Context, s *kvs.CaptureSummary, mode kvs.StartMode, archiveKey string) {
	host, _ := os.Hostname()
	rec := &store.CaptureRecord{
		StreamID:         s.StreamID,
		SessionTimestamp: s.SessionTimestamp,
		SessionDir:       s.SessionDir,
		StartMode:        string(mode),
		FrameCount:       s.FrameCount,
		FragmentsRead:    s.FragmentsRead,
		BytesRead:        s.BytesRead,
		Termination:      string(s.Termination),
		ArchiveKey:       archiveKey,
		Host:             host,
		CreatedAt:        s.StartedAt.Unix(),
	}
	if err := r.ledger().PutCapture(ctx, rec); err != nil {
		logSideEffect(err, "ledger", s.StreamID, s.SessionTimestamp)
	}

	err := r.Events.EmitCaptureCompleted(ctx, events.CaptureCompleted{
		StreamID:         s.StreamID,
		SessionTimestamp: s.SessionTimestamp,
		FrameCount:       s.FrameCount,
		FragmentsRead:    s.FragmentsRead,
		Termination:      string(s.Termination),
		ArchiveKey:       archiveKey,
		CompletedAt:      s.EndedAt.UTC(),
	})
	if err != nil {
		logSideEffect(err, "event", s.StreamID, s.SessionTimestamp)
	}
}

// DeploymentCreated records an accepted deployment job. origin names what
// triggered it.
func (r Recorder) DeploymentCreated(ctx context.Context, job *fleet.DeploymentJob, origin string) {
	rec := &store.DeploymentRecord{
		JobID:     job.JobID,
		JobARN:    job.JobARN,
		ThingARN:  job.ThingARN,
		URL:       job.Document.URL,
		Origin:    origin,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt.Unix(),
	}
	if err := r.ledger().PutDeployment(ctx, rec); err != nil {
		logSideEffect(err, "ledger", job.JobID, "")
	}

	err := r.Events.EmitDeploymentJobCreated(ctx, events.DeploymentJobCreated{
		JobID:     job.JobID,
		JobARN:    job.JobARN,
		ThingARN:  job.ThingARN,
		URL:       job.Document.URL,
		Origin:    origin,
		CreatedAt: job.CreatedAt.UTC(),
	})
	if err != nil {
		logSideEffect(err, "event", job.JobID, "")
	}
}

// DeploymentStatus refreshes the recorded status of a job. Jobs the ledger
// never saw are ignored.
func (r Recorder) DeploymentStatus(ctx context.Context, jobID string, status fleet.JobStatus) {
	rec, err := r.ledger().GetDeployment(ctx, jobID)
	if err != nil {
		logSideEffect(err, "ledger", jobID, "")
		return
	}
	if rec == nil || rec.Status == string(status) {
		return
	}
	if err := r.ledger().UpdateDeploymentStatus(ctx, jobID, string(status)); err != nil {
		logSideEffect(err, "ledger", jobID, "")
	}
}

func logSideEffect(err error, target, subject, session string) {
	evt := log.Warn().Err(err).Str("target", target).Str("subject", subject)
	if session != "" {
		evt = evt.Str("session", session)
	}
	evt.Msg("Failed to record outcome, continuing")
}
