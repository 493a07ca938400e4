// Command fbedge pulls training frames from Kinesis Video Streams and pushes
// model deployment jobs to IoT-registered edge devices.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/config"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobutil"
	"github.com/FactbirdHQ/fbedge-examples/internal/lambdaboot"
	"github.com/FactbirdHQ/fbedge-examples/internal/logging"
	"github.com/FactbirdHQ/fbedge-examples/internal/metrics"
)

// Global flags
var (
	regionFlag   string
	profileFlag  string
	logLevelFlag string
	envFileFlag  string
	jsonFlag     bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "fbedge",
	Short: "Edge AI helpers for Kinesis Video Streams and AWS IoT",
	Long: `fbedge collects training frames from a Kinesis Video stream into a local
dataset and deploys model artifacts to edge devices through AWS IoT Jobs.

Settings come from the environment (FBEDGE_*, AWS_*), optionally seeded from
a .env file and overlaid from SSM Parameter Store. Flags override both.

Examples:
  fbedge probe --check-storage
  fbedge stream describe line-3-camera
  fbedge capture --stream line-3-camera --fps 2 --duration 30s
  fbedge capture --mode archive --duration 10m --archive
  fbedge deploy --thing edge-01 --url https://models.example.com/yolo.hef
  fbedge jobs status 20261019_080030_abcd1234
  fbedge dirs init`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&regionFlag, "region", "", "AWS region (overrides AWS_REGION)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "AWS shared config profile (overrides AWS_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides FBEDGE_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")

	rootCmd.AddCommand(probeCmd, streamCmd, captureCmd, capturesCmd, deviceCmd, deployCmd, jobsCmd, dirsCmd, archiveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is what every AWS-facing command works with after bootstrap.
type app struct {
	cfg      *config.Config
	sess     *cloud.Session
	recorder jobutil.Recorder
}

// loadConfig initializes logging and reads configuration with global flags
// applied. Exits on invalid configuration.
func loadConfig() *config.Config {
	logging.Init()
	if logLevelFlag != "" {
		zerolog.SetGlobalLevel(logging.ParseLevel(logLevelFlag))
	}

	cfg, err := config.LoadFrom(envFileFlag)
	if err != nil {
		cli.HandleFailure(err)
	}
	if regionFlag != "" {
		cfg.Region = regionFlag
	}
	if profileFlag != "" {
		cfg.Profile = profileFlag
	}
	if !cfg.Metrics {
		metrics.SetOutput(io.Discard)
	}
	return cfg
}

// connect loads configuration, verifies credentials, and applies the SSM
// overlay. Exits if the probe fails.
func connect(ctx context.Context) *app {
	cfg := loadConfig()
	return connectWith(ctx, cfg, cloud.NewProber())
}

func connectWith(ctx context.Context, cfg *config.Config, prober *cloud.Prober) *app {
	sess, err := prober.Probe(ctx, cfg.SessionConfig()).Get()
	if err != nil {
		cli.HandleFailure(err)
	}
	lambdaboot.LoadSSMOverlay(ctx, sess.Config, cfg)

	return &app{
		cfg:  cfg,
		sess: sess,
		recorder: jobutil.Recorder{
			Ledger: lambdaboot.InitLedgerOptional(sess.Config, cfg.LedgerTable),
			Events: lambdaboot.InitEventsOptional(sess.Config, cfg.EventBus),
		},
	}
}

func (a *app) s3() *s3.Client {
	return s3.NewFromConfig(a.sess.Config)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}
