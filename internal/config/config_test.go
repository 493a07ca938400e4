package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FactbirdHQ/fbedge-examples/internal/kvs"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

var managedVars = []string{
	"FBEDGE_STREAM_ID", "FBEDGE_VIDEO_SOURCE", "FBEDGE_TARGET_FPS", "FBEDGE_CAPTURE_DURATION",
	"FBEDGE_LOOKBACK", "FBEDGE_FRAME_MAX_WIDTH", "FBEDGE_MAX_FRAMES", "FBEDGE_DATA_DIR", "FBEDGE_MODELS_DIR",
	"FBEDGE_RETRY_ATTEMPTS", "FBEDGE_RETRY_BASE_DELAY", "FBEDGE_THING_NAME", "FBEDGE_DEPLOY_DESTINATION",
	"FBEDGE_LEDGER_TABLE", "FBEDGE_EVENT_BUS", "FBEDGE_ARCHIVE_BUCKET", "FBEDGE_SSM_PREFIX", "FBEDGE_METRICS",
	"AWS_REGION", "AWS_DEFAULT_REGION", "AWS_PROFILE", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedVars {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.VideoSource)
	assert.Equal(t, 2.0, cfg.TargetFPS)
	assert.Equal(t, 30*time.Second, cfg.CaptureDuration)
	assert.Equal(t, 5*time.Minute, cfg.Lookback)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "models", cfg.ModelsDir)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.False(t, cfg.Metrics)
	assert.Empty(t, cfg.StreamID)
	assert.Zero(t, cfg.MaxFrames)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("FBEDGE_STREAM_ID", "line-3-camera")
	t.Setenv("FBEDGE_VIDEO_SOURCE", "archive")
	t.Setenv("FBEDGE_TARGET_FPS", "0.5")
	t.Setenv("FBEDGE_CAPTURE_DURATION", "90")
	t.Setenv("FBEDGE_LOOKBACK", "1h")
	t.Setenv("FBEDGE_MAX_FRAMES", "120")
	t.Setenv("FBEDGE_SSM_PREFIX", "/fbedge/prod/")
	t.Setenv("FBEDGE_METRICS", "1")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "line-3-camera", cfg.StreamID)
	assert.Equal(t, 0.5, cfg.TargetFPS)
	assert.Equal(t, 90*time.Second, cfg.CaptureDuration)
	assert.Equal(t, time.Hour, cfg.Lookback)
	assert.Equal(t, "/fbedge/prod", cfg.SSMPrefix)
	assert.True(t, cfg.Metrics)
	assert.Equal(t, "eu-west-1", cfg.SessionConfig().Region)

	cc, err := cfg.CaptureConfig()
	require.NoError(t, err)
	assert.Equal(t, kvs.StartBackward, cc.Mode)
	assert.Equal(t, filepath.Join("data", "raw"), cc.RawDir)
	assert.Equal(t, 3, cc.Retry.Attempts)
	assert.Equal(t, 120, cc.MaxFrames)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FBEDGE_STREAM_ID=from-file\nFBEDGE_THING_NAME=edge-from-file\n"), 0o644))
	t.Setenv("FBEDGE_STREAM_ID", "from-env")
	// godotenv only fills variables that are absent, not merely empty.
	require.NoError(t, os.Unsetenv("FBEDGE_THING_NAME"))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.StreamID)
	assert.Equal(t, "edge-from-file", cfg.ThingName)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	clearEnv(t)
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_Malformed(t *testing.T) {
	clearEnv(t)
	t.Setenv("FBEDGE_TARGET_FPS", "fast")
	t.Setenv("FBEDGE_RETRY_ATTEMPTS", "three")
	t.Setenv("FBEDGE_MAX_FRAMES", "lots")

	_, err := LoadFrom("")
	require.Error(t, err)
	assert.Equal(t, result.KindInvalidInput, result.KindOf(err))
	assert.ErrorContains(t, err, "FBEDGE_TARGET_FPS")
	assert.ErrorContains(t, err, "FBEDGE_RETRY_ATTEMPTS")
	assert.ErrorContains(t, err, "FBEDGE_MAX_FRAMES")
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"30":    30 * time.Second,
		"1.5":   1500 * time.Millisecond,
		"2m":    2 * time.Minute,
		"1m30s": 90 * time.Second,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDuration("soon")
	assert.Error(t, err)
}

type fakeSSM struct {
	params map[string]string
	names  []string
	err    error
}

func (f *fakeSSM) GetParameters(ctx context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.names = append(f.names, in.Names...)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, n := range in.Names {
		if v, ok := f.params[n]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(n), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, n)
		}
	}
	return out, nil
}

func TestApplySSM(t *testing.T) {
	api := &fakeSSM{params: map[string]string{
		"/fbedge/prod/stream-id":  "ssm-stream",
		"/fbedge/prod/thing-name": "ssm-thing",
	}}
	cfg := &Config{SSMPrefix: "/fbedge/prod", ThingName: "explicit-thing"}

	require.NoError(t, cfg.ApplySSM(context.Background(), api))
	assert.Equal(t, "ssm-stream", cfg.StreamID)
	assert.Equal(t, "explicit-thing", cfg.ThingName)
	assert.Equal(t, []string{"/fbedge/prod/stream-id"}, api.names)
}

func TestApplySSM_MissingParametersAndNoPrefix(t *testing.T) {
	api := &fakeSSM{}
	cfg := &Config{SSMPrefix: "/fbedge/dev"}
	require.NoError(t, cfg.ApplySSM(context.Background(), api))
	assert.Empty(t, cfg.StreamID)

	api = &fakeSSM{}
	require.NoError(t, (&Config{}).ApplySSM(context.Background(), api))
	assert.Empty(t, api.names)
}

func TestApplySSM_Error(t *testing.T) {
	api := &fakeSSM{err: errors.New("AccessDeniedException")}
	err := (&Config{SSMPrefix: "/fbedge/prod"}).ApplySSM(context.Background(), api)
	assert.ErrorContains(t, err, "/fbedge/prod")
}
