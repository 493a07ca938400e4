package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/metrics"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
	"github.com/FactbirdHQ/fbedge-examples/internal/s3util"
)

const (
	modelPrefix = "models/hef/"
	modelExt    = ".hef"
	urlExpiry   = time.Hour
)

// deployer is satisfied by *jobutil.Deployer.
type deployer interface {
	Deploy(ctx context.Context, thingName, url, origin string) result.Result[*fleet.DeploymentJob]
}

type handler struct {
	presign   s3util.PresignAPI
	deployer  deployer
	thingName string
	expiry    time.Duration

	warm bool
}

// Handle deploys every model object in the event. Records that are not
// compiled models are skipped. Only transient failures are returned, so the
// invocation is retried for them and nothing else.
func (h *handler) Handle(ctx context.Context, evt events.S3Event) error {
	if !h.warm {
		h.warm = true
		log.Info().Str("function", "deploy-lambda").Msg("Cold start, first invocation")
	}

	var retry []error
	for _, record := range evt.Records {
		bucket := record.S3.Bucket.Name
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			log.Warn().Err(err).Str("key", record.S3.Object.Key).Msg("Skipping undecodable object key")
			continue
		}
		if !isModelKey(key) {
			log.Debug().Str("key", key).Msg("Skipping key: not a compiled model")
			continue
		}

		if err := h.deployObject(ctx, bucket, key); err != nil {
			log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Failed to deploy model")
			if result.KindOf(err).Retryable() {
				retry = append(retry, err)
			}
		}
	}
	return errors.Join(retry...)
}

func (h *handler) deployObject(ctx context.Context, bucket, key string) error {
	start := time.Now()
	origin := fmt.Sprintf("s3://%s/%s", bucket, key)

	presigned, err := s3util.GeneratePresignedURL(ctx, h.presign, bucket, key, h.expiry)
	if err != nil {
		return err
	}

	job, err := h.deployer.Deploy(ctx, h.thingName, presigned, origin).Get()
	outcome := "success"
	if err != nil {
		outcome = result.KindOf(err).String()
	}
	metrics.New(metrics.Namespace).
		Dimension("Function", "deploy-lambda").
		Dimension("Result", outcome).
		Metric("DeployMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Count("ModelDeployments").
		Property("model", path.Base(key)).
		Flush()
	if err != nil {
		return err
	}

	log.Info().
		Str("origin", origin).
		Str("thing", h.thingName).
		Str("jobId", job.JobID).
		Dur("elapsed", time.Since(start)).
		Msg("Model deployment job created")
	return nil
}

// isModelKey reports whether key is a compiled model directly under models/hef/.
func isModelKey(key string) bool {
	if !strings.HasPrefix(key, modelPrefix) || !strings.HasSuffix(strings.ToLower(key), modelExt) {
		return false
	}
	name := strings.TrimPrefix(key, modelPrefix)
	return name != modelExt && !strings.Contains(name, "/")
}
