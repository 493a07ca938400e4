// Package config reads the tools' settings from the environment, optionally
// seeded from a .env file and overlaid from SSM Parameter Store.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/dataset"
	"github.com/FactbirdHQ/fbedge-examples/internal/kvs"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// Config holds every setting read at startup. It is not reloaded.
type Config struct {
	StreamID        string
	VideoSource     string
	TargetFPS       float64
	CaptureDuration time.Duration
	Lookback        time.Duration
	FrameMaxWidth   int
	MaxFrames       int

	DataDir   string
	ModelsDir string

	RetryAttempts  int
	RetryBaseDelay time.Duration

	ThingName         string
	DeployDestination string

	LedgerTable   string
	EventBus      string
	ArchiveBucket string
	SSMPrefix     string
	Metrics       bool

	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit dotenv path. Variables already set in
// the environment win over the file.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	p := &parser{}
	cfg := &Config{
		StreamID:        getEnv("FBEDGE_STREAM_ID", ""),
		VideoSource:     getEnv("FBEDGE_VIDEO_SOURCE", "live"),
		TargetFPS:       p.float("FBEDGE_TARGET_FPS", 2),
		CaptureDuration: p.duration("FBEDGE_CAPTURE_DURATION", 30*time.Second),
		Lookback:        p.duration("FBEDGE_LOOKBACK", 5*time.Minute),
		FrameMaxWidth:   p.int("FBEDGE_FRAME_MAX_WIDTH", 0),
		MaxFrames:       p.int("FBEDGE_MAX_FRAMES", 0),

		DataDir:   getEnv("FBEDGE_DATA_DIR", "data"),
		ModelsDir: getEnv("FBEDGE_MODELS_DIR", "models"),

		RetryAttempts:  p.int("FBEDGE_RETRY_ATTEMPTS", 3),
		RetryBaseDelay: p.duration("FBEDGE_RETRY_BASE_DELAY", 500*time.Millisecond),

		ThingName:         getEnv("FBEDGE_THING_NAME", ""),
		DeployDestination: getEnv("FBEDGE_DEPLOY_DESTINATION", ""),

		LedgerTable:   getEnv("FBEDGE_LEDGER_TABLE", ""),
		EventBus:      getEnv("FBEDGE_EVENT_BUS", ""),
		ArchiveBucket: getEnv("FBEDGE_ARCHIVE_BUCKET", ""),
		SSMPrefix:     strings.TrimSuffix(getEnv("FBEDGE_SSM_PREFIX", ""), "/"),
		Metrics:       p.bool("FBEDGE_METRICS", false),

		Region:          getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", "")),
		Profile:         getEnv("AWS_PROFILE", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SessionToken:    getEnv("AWS_SESSION_TOKEN", ""),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, &result.Error{Kind: result.KindInvalidInput, Op: "config.Load", Err: err}
	}
	return cfg, nil
}

// SessionConfig returns the options for building a cloud session.
func (c *Config) SessionConfig() cloud.SessionConfig {
	return cloud.SessionConfig{
		Region:          c.Region,
		Profile:         c.Profile,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
}

// Layout returns the dataset directory layout.
func (c *Config) Layout() dataset.Layout {
	return dataset.Layout{DataDir: c.DataDir, ModelsDir: c.ModelsDir}
}

// RetryPolicy returns the fragment fetch retry policy.
func (c *Config) RetryPolicy() kvs.RetryPolicy {
	p := kvs.DefaultRetryPolicy()
	if c.RetryAttempts > 0 {
		p.Attempts = c.RetryAttempts
	}
	if c.RetryBaseDelay > 0 {
		p.BaseDelay = c.RetryBaseDelay
	}
	return p
}

// CaptureConfig returns the capture settings derived from the configuration.
func (c *Config) CaptureConfig() (kvs.CaptureConfig, error) {
	mode, err := kvs.ParseStartMode(c.VideoSource)
	if err != nil {
		return kvs.CaptureConfig{}, err
	}
	return kvs.CaptureConfig{
		Mode:      mode,
		TargetFPS: c.TargetFPS,
		Duration:  c.CaptureDuration,
		Lookback:  c.Lookback,
		MaxFrames: c.MaxFrames,
		Retry:     c.RetryPolicy(),
		RawDir:    c.Layout().RawDir(),
	}, nil
}

// SSMAPI reads parameters from SSM Parameter Store.
type SSMAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

var _ SSMAPI = (*ssm.Client)(nil)

// SSM parameter names under the configured prefix.
const (
	ParamStreamID  = "stream-id"
	ParamThingName = "thing-name"
)

// ApplySSM fills fields that are still empty from {SSMPrefix}/stream-id and
// {SSMPrefix}/thing-name. Values already set are never replaced. Missing
// parameters are not an error.
func (c *Config) ApplySSM(ctx context.Context, api SSMAPI) error {
	if c.SSMPrefix == "" {
		return nil
	}

	targets := map[string]*string{}
	if c.StreamID == "" {
		targets[c.SSMPrefix+"/"+ParamStreamID] = &c.StreamID
	}
	if c.ThingName == "" {
		targets[c.SSMPrefix+"/"+ParamThingName] = &c.ThingName
	}
	if len(targets) == 0 {
		return nil
	}

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}

	start := time.Now()
	out, err := api.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("SSM GetParameters under %s: %w", c.SSMPrefix, err)
	}

	for _, p := range out.Parameters {
		if dst, ok := targets[aws.ToString(p.Name)]; ok {
			*dst = aws.ToString(p.Value)
		}
	}
	log.Debug().
		Str("prefix", c.SSMPrefix).
		Int("loaded", len(out.Parameters)).
		Strs("missing", out.InvalidParameters).
		Dur("elapsed", time.Since(start)).
		Msg("Configuration overlay loaded from SSM")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// parser collects malformed values instead of silently using defaults.
type parser struct {
	errs []error
}

func (p *parser) int(key string, defaultValue int) int {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, s))
		return defaultValue
	}
	return v
}

func (p *parser) float(key string, defaultValue float64) float64 {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, s))
		return defaultValue
	}
	return v
}

func (p *parser) bool(key string, defaultValue bool) bool {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, s))
		return defaultValue
	}
	return v
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue
	}
	d, err := ParseDuration(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

// ParseDuration accepts a Go duration ("90s", "1m30s") or a plain number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", s)
	}
	return d, nil
}
