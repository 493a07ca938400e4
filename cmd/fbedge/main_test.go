package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FactbirdHQ/fbedge-examples/internal/config"
	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/kvs"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

func resetCaptureFlags(t *testing.T) {
	t.Cleanup(func() {
		captureStreamFlag, captureModeFlag = "", ""
		captureDurationFlag, captureLookbackFlag = "", ""
		captureFPSFlag = 0
		captureWidthFlag = -1
		captureMaxFlag = -1
	})
}

func TestApplyCaptureFlags(t *testing.T) {
	resetCaptureFlags(t)
	cfg := &config.Config{StreamID: "env-cam", TargetFPS: 2, CaptureDuration: 30 * time.Second, Lookback: 5 * time.Minute, VideoSource: "live"}

	captureStreamFlag = "line-3-camera"
	captureFPSFlag = 0.5
	captureDurationFlag = "90"
	captureLookbackFlag = "90"
	captureModeFlag = "archive"
	captureWidthFlag = 640
	captureMaxFlag = 120

	require.NoError(t, applyCaptureFlags(cfg))
	assert.Equal(t, "line-3-camera", cfg.StreamID)
	assert.Equal(t, 0.5, cfg.TargetFPS)
	assert.Equal(t, 90*time.Second, cfg.CaptureDuration)
	assert.Equal(t, 90*time.Second, cfg.Lookback)
	assert.Equal(t, "archive", cfg.VideoSource)
	assert.Equal(t, 640, cfg.FrameMaxWidth)
	assert.Equal(t, 120, cfg.MaxFrames)
}

func TestApplyCaptureFlags_UnsetKeepsConfig(t *testing.T) {
	resetCaptureFlags(t)
	captureWidthFlag = -1
	captureMaxFlag = -1
	cfg := &config.Config{StreamID: "env-cam", TargetFPS: 2, CaptureDuration: 30 * time.Second, FrameMaxWidth: 1280, MaxFrames: 50}

	require.NoError(t, applyCaptureFlags(cfg))
	assert.Equal(t, "env-cam", cfg.StreamID)
	assert.Equal(t, 2.0, cfg.TargetFPS)
	assert.Equal(t, 30*time.Second, cfg.CaptureDuration)
	assert.Equal(t, 1280, cfg.FrameMaxWidth)
	assert.Equal(t, 50, cfg.MaxFrames)
}

func TestApplyCaptureFlags_ZeroMaxFramesLiftsLimit(t *testing.T) {
	resetCaptureFlags(t)
	captureMaxFlag = 0
	cfg := &config.Config{MaxFrames: 50}

	require.NoError(t, applyCaptureFlags(cfg))
	assert.Zero(t, cfg.MaxFrames)
}

func TestApplyCaptureFlags_BadDuration(t *testing.T) {
	resetCaptureFlags(t)
	captureDurationFlag = "half a minute"
	assert.Error(t, applyCaptureFlags(&config.Config{}))
}

func TestResolveStream(t *testing.T) {
	assert.Equal(t, "arg-cam", resolveStream("arg-cam", "env-cam"))
	assert.Equal(t, "env-cam", resolveStream("", "env-cam"))
}

func TestCaptureOutput(t *testing.T) {
	out := captureOutput(&kvs.CaptureSummary{
		StreamID:    "line-3-camera",
		FrameCount:  10,
		Termination: kvs.TerminationFetch,
		Err:         errors.New("connection reset"),
	}, "")

	assert.Equal(t, 10, out["frameCount"])
	assert.Equal(t, kvs.TerminationFetch, out["termination"])
	assert.Equal(t, "connection reset", out["error"])
	assert.NotContains(t, out, "archiveKey")
}

type fakeLister struct {
	thing string
	n     int
	calls []string
}

func (f *fakeLister) List(ctx context.Context, n int) result.Result[[]fleet.JobSummary] {
	f.calls = append(f.calls, "List")
	f.n = n
	return result.Success([]fleet.JobSummary{{JobID: "fleet-job"}})
}

func (f *fakeLister) ListForThing(ctx context.Context, thingName string, n int) result.Result[[]fleet.JobSummary] {
	f.calls = append(f.calls, "ListForThing")
	f.thing, f.n = thingName, n
	if thingName == "ghost-device" {
		return result.Failure[[]fleet.JobSummary](result.KindNotFound, "fleet.ListForThing", errors.New("no such thing"))
	}
	return result.Success([]fleet.JobSummary{{JobID: "device-job"}})
}

func TestListJobs_FleetWide(t *testing.T) {
	f := &fakeLister{}
	list, err := listJobs(context.Background(), f, "", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"List"}, f.calls)
	assert.Equal(t, 7, f.n)
	assert.Equal(t, "fleet-job", list[0].JobID)
}

func TestListJobs_ForThing(t *testing.T) {
	f := &fakeLister{}
	list, err := listJobs(context.Background(), f, "hailo-edge-01", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"ListForThing"}, f.calls)
	assert.Equal(t, "hailo-edge-01", f.thing)
	assert.Equal(t, "device-job", list[0].JobID)

	_, err = listJobs(context.Background(), f, "ghost-device", 3)
	assert.Equal(t, result.KindNotFound, result.KindOf(err))
}
