package cloud

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/metrics"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// CallerIdentityAPI is the subset of the STS client used by the prober.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// BucketListerAPI is the subset of the S3 client used for the storage probe.
type BucketListerAPI interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

var (
	_ CallerIdentityAPI = (*sts.Client)(nil)
	_ BucketListerAPI   = (*s3.Client)(nil)
)

// Prober validates credentials by resolving the caller identity.
type Prober struct {
	// CheckStorage additionally lists S3 buckets. Its outcome is logged only.
	CheckStorage bool

	loadConfig func(context.Context, SessionConfig) (aws.Config, error)
	newSTS     func(aws.Config) CallerIdentityAPI
	newS3      func(aws.Config) BucketListerAPI
}

// NewProber returns a Prober backed by the real SDK clients.
func NewProber() *Prober {
	return &Prober{
		loadConfig: LoadConfig,
		newSTS:     func(cfg aws.Config) CallerIdentityAPI { return sts.NewFromConfig(cfg) },
		newS3:      func(cfg aws.Config) BucketListerAPI { return s3.NewFromConfig(cfg) },
	}
}

// Probe is shorthand for NewProber().Probe.
func Probe(ctx context.Context, cfg SessionConfig) result.Result[*Session] {
	return NewProber().Probe(ctx, cfg)
}

// Probe builds credentials from cfg and confirms them with a single
// identity call. On failure no session is returned.
func (p *Prober) Probe(ctx context.Context, cfg SessionConfig) result.Result[*Session] {
	const op = "cloud.Probe"
	start := time.Now()

	awsCfg, err := p.loadConfig(ctx, cfg)
	if err != nil {
		p.recordMetric("config_error", start)
		return Fail[*Session](op, err)
	}

	out, err := p.newSTS(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		p.recordMetric(Classify(err).String(), start)
		return Fail[*Session](op, err)
	}

	sess := &Session{
		Config:  awsCfg,
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}
	sess.Temporary = isTemporary(ctx, awsCfg, sess.ARN)

	log.Info().
		Str("account", sess.Account).
		Str("arn", sess.ARN).
		Str("region", awsCfg.Region).
		Bool("temporary", sess.Temporary).
		Dur("duration", time.Since(start)).
		Msg("AWS connection verified")

	if p.CheckStorage {
		p.probeStorage(ctx, awsCfg)
	}

	p.recordMetric("success", start)
	return result.Success(sess)
}

// probeStorage lists buckets to confirm S3 permissions. Failures are not fatal.
func (p *Prober) probeStorage(ctx context.Context, cfg aws.Config) {
	out, err := p.newS3(cfg).ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		log.Warn().Err(err).Str("kind", Classify(err).String()).Msg("S3 access check failed")
		return
	}
	log.Info().Int("buckets", len(out.Buckets)).Msg("S3 access verified")
}

func (p *Prober) recordMetric(outcome string, start time.Time) {
	metrics.New(metrics.Namespace).
		Dimension("Result", outcome).
		Metric("ProbeMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Count("ProbeResult").
		Flush()
}

// isTemporary reports whether the session uses short-lived credentials.
func isTemporary(ctx context.Context, cfg aws.Config, arn string) bool {
	if strings.Contains(arn, ":assumed-role/") || strings.Contains(arn, ":federated-user/") {
		return true
	}
	if cfg.Credentials == nil {
		return false
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return false
	}
	return creds.SessionToken != "" || creds.CanExpire
}
