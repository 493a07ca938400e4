// Package lambdaboot provides shared cold-start bootstrap logic.
//
// The deploy Lambda and the CLI both need some subset of: configuration,
// a verified AWS session, S3, the DynamoDB ledger, EventBridge, and startup
// logging. This package extracts the common init patterns so each entry
// point is a short composition of helpers.
package lambdaboot

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/config"
	"github.com/FactbirdHQ/fbedge-examples/internal/events"
	"github.com/FactbirdHQ/fbedge-examples/internal/logging"
	"github.com/FactbirdHQ/fbedge-examples/internal/store"
)

// S3Clients holds the S3 client and presigner.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
}

// InitConfig reads configuration from the environment only. Fatals on a
// malformed value.
func InitConfig() *config.Config {
	cfg, err := config.LoadFrom("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

// InitSession verifies credentials and returns the session. Fatals if the
// identity call fails.
func InitSession(ctx context.Context, cfg *config.Config) *cloud.Session {
	sess, err := cloud.Probe(ctx, cfg.SessionConfig()).Get()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to establish AWS session")
	}
	return sess
}

// LoadSSMOverlay fills unset configuration from SSM Parameter Store when a
// prefix is configured. Fatals on error.
func LoadSSMOverlay(ctx context.Context, awsCfg aws.Config, cfg *config.Config) {
	if cfg.SSMPrefix == "" {
		return
	}
	if err := cfg.ApplySSM(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		log.Fatal().Err(err).Str("prefix", cfg.SSMPrefix).Msg("Failed to read configuration from SSM")
	}
}

// InitS3 creates an S3 client and presigner.
func InitS3(cfg aws.Config) S3Clients {
	client := s3.NewFromConfig(cfg)
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
	}
}

// InitLedgerOptional returns a DynamoDB ledger if table is set, or a no-op
// ledger (with a debug log) if not.
func InitLedgerOptional(cfg aws.Config, table string) store.Ledger {
	if table == "" {
		log.Debug().Msg("Ledger table not set, ledger disabled")
		return store.Noop{}
	}
	return store.NewDynamoLedger(dynamodb.NewFromConfig(cfg), table)
}

// InitEventsOptional returns an EventBridge emitter for bus. With an empty
// bus the emitter drops every event.
func InitEventsOptional(cfg aws.Config, bus string) *events.Emitter {
	if bus == "" {
		log.Debug().Msg("Event bus not set, events disabled")
		return events.NewEmitter(nil, "")
	}
	return events.NewEmitter(eventbridge.NewFromConfig(cfg), bus)
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
