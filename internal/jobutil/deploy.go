package jobutil

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// DeviceChecker resolves a thing name to its registry entry.
type DeviceChecker interface {
	Check(ctx context.Context, thingName string) result.Result[*fleet.DeviceRecord]
}

// JobSubmitter creates deployment jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, thingARN, rawURL string) result.Result[*fleet.DeploymentJob]
}

var (
	_ DeviceChecker = (*fleet.Devices)(nil)
	_ JobSubmitter  = (*fleet.Jobs)(nil)
)

// Deployer runs the check-then-submit sequence for one device and records
// the accepted job.
type Deployer struct {
	Devices  DeviceChecker
	Jobs     JobSubmitter
	Recorder Recorder
}

// Deploy confirms thingName is registered, submits a download job for url,
// and records it under origin. The URL is validated before any call.
func (d *Deployer) Deploy(ctx context.Context, thingName, url, origin string) result.Result[*fleet.DeploymentJob] {
	const op = "jobutil.Deploy"

	if err := fleet.ValidateURL(url); err != nil {
		return result.Failure[*fleet.DeploymentJob](result.KindInvalidInput, op, err)
	}

	device, err := d.Devices.Check(ctx, thingName).Get()
	if err != nil {
		return result.FromError[*fleet.DeploymentJob](op, err)
	}
	if !device.ShadowAvailable {
		log.Debug().Str("thing", thingName).Msg("Device has no shadow yet; it may never have connected")
	}

	res := d.Jobs.Submit(ctx, device.ARN, url)
	if !res.OK() {
		return res
	}

	job := res.Value()
	d.Recorder.DeploymentCreated(ctx, job, origin)
	log.Info().
		Str("thing", thingName).
		Str("jobId", job.JobID).
		Str("origin", origin).
		Msg("Deployment submitted")
	return res
}
