// Package main provides a Lambda entry point that deploys newly uploaded
// compiled models to an edge device.
//
// This Lambda is triggered by S3 ObjectCreated events. For each object under
// models/hef/ ending in .hef, it:
//
//  1. Presigns a GET URL for the object (1 hour)
//  2. Confirms FBEDGE_THING_NAME is registered in AWS IoT
//  3. Creates a download job for that device
//  4. Records the job in the ledger and emits DeploymentJobCreated
//
// Memory: 256 MB
// Timeout: 1 minute
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobutil"
	"github.com/FactbirdHQ/fbedge-examples/internal/lambdaboot"
	"github.com/FactbirdHQ/fbedge-examples/internal/logging"
)

var (
	// Set at build time with -ldflags "-X main.commitHash=... -X main.buildTime=...".
	commitHash string
	buildTime  string
)

func main() {
	lambda.Start(newHandler().Handle)
}

// newHandler performs cold-start initialization. Any missing dependency is fatal.
func newHandler() *handler {
	initStart := time.Now()
	logging.InitJSON()
	ctx := context.Background()

	cfg := lambdaboot.InitConfig()
	sess := lambdaboot.InitSession(ctx, cfg)
	lambdaboot.LoadSSMOverlay(ctx, sess.Config, cfg)
	if cfg.ThingName == "" {
		log.Fatal().Msg("FBEDGE_THING_NAME is required (or {FBEDGE_SSM_PREFIX}/thing-name)")
	}

	s3s := lambdaboot.InitS3(sess.Config)
	jobs := fleet.NewJobs(sess)
	jobs.Destination = cfg.DeployDestination

	h := &handler{
		presign:   s3s.Presigner,
		thingName: cfg.ThingName,
		expiry:    urlExpiry,
		deployer: &jobutil.Deployer{
			Devices: fleet.NewDevices(sess),
			Jobs:    jobs,
			Recorder: jobutil.Recorder{
				Ledger: lambdaboot.InitLedgerOptional(sess.Config, cfg.LedgerTable),
				Events: lambdaboot.InitEventsOptional(sess.Config, cfg.EventBus),
			},
		},
	}

	lambdaboot.StartupLog("deploy-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		DynamoTable("ledger", cfg.LedgerTable).
		EventBus("events", cfg.EventBus).
		SSMParam("prefix", cfg.SSMPrefix).
		Feature("ledger", cfg.LedgerTable != "").
		Feature("events", cfg.EventBus != "").
		Config("thingName", cfg.ThingName).
		Config("account", sess.Account).
		Log()
	return h
}
