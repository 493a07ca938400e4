// Package cloud establishes authenticated AWS sessions and classifies AWS
// errors into result kinds.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// SessionConfig carries the optional inputs used to build AWS credentials.
// Any subset may be empty; the SDK default chain fills the gaps.
type SessionConfig struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// HasStaticKeys reports whether both halves of an access key pair are set.
func (c SessionConfig) HasStaticKeys() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Session is an authenticated AWS configuration plus the identity it resolved
// to. It is created once by Probe and passed explicitly to every client.
type Session struct {
	Config    aws.Config
	Account   string
	ARN       string
	UserID    string
	Temporary bool
}

// Region returns the region the session is bound to.
func (s *Session) Region() string {
	return s.Config.Region
}

// LoadConfig resolves an aws.Config from cfg. Explicit keys win over a named
// profile, and a profile wins over the default chain.
func LoadConfig(ctx context.Context, cfg SessionConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	switch {
	case cfg.HasStaticKeys():
		log.Debug().Bool("sessionToken", cfg.SessionToken != "").Msg("Using explicit AWS credentials")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	case cfg.Profile != "":
		log.Debug().Str("profile", cfg.Profile).Msg("Using shared config profile")
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	default:
		log.Debug().Msg("Using default AWS credential chain")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		return aws.Config{}, result.Errorf(result.KindInvalidInput, "cloud.LoadConfig", "no region configured (set AWS_REGION or --region)")
	}

	log.Debug().Str("region", awsCfg.Region).Msg("AWS config loaded")
	return awsCfg, nil
}
