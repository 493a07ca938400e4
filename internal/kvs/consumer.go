package kvs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
	"github.com/FactbirdHQ/fbedge-examples/internal/dataset"
	"github.com/FactbirdHQ/fbedge-examples/internal/metrics"
	"github.com/FactbirdHQ/fbedge-examples/internal/mkv"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// StartMode selects where a capture begins.
type StartMode string

const (
	// StartLive reads from the live edge forward.
	StartLive StartMode = "live"
	// StartBackward walks archived fragments from now into the past.
	StartBackward StartMode = "backward"
)

// ParseStartMode accepts "live", "backward", and "archive" as an alias of backward.
func ParseStartMode(s string) (StartMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "live":
		return StartLive, nil
	case "backward", "archive":
		return StartBackward, nil
	default:
		return "", result.Errorf(result.KindInvalidInput, "kvs.ParseStartMode", "unknown start mode %q (want live or archive)", s)
	}
}

// Termination records why a capture stopped.
type Termination string

const (
	TerminationDuration  Termination = "duration_reached"
	TerminationMaxFrames Termination = "max_frames_reached"
	TerminationExhausted Termination = "stream_exhausted"
	TerminationFetch     Termination = "fetch_error"
	TerminationWrite     Termination = "write_error"
	TerminationCanceled  Termination = "canceled"
	TerminationWallClock Termination = "wall_clock_cap"
)

// DefaultWallClockGrace is added to the capture duration to bound real time spent.
const DefaultWallClockGrace = 30 * time.Second

// CaptureConfig parameterizes one capture session.
type CaptureConfig struct {
	Mode      StartMode
	TargetFPS float64
	// Duration is the span of source time to cover.
	Duration time.Duration
	// MaxFrames stops the capture once this many frames are saved. 0 means no limit.
	MaxFrames int
	// Lookback is the window searched for archived fragments in backward mode.
	Lookback time.Duration
	// WallClockGrace extends the real-time cap beyond Duration.
	WallClockGrace time.Duration
	Retry          RetryPolicy
	// RawDir is the dataset raw root; sessions go under RawDir/{stream}.
	RawDir string
}

func (c CaptureConfig) validate() error {
	switch {
	case math.IsNaN(c.TargetFPS) || math.IsInf(c.TargetFPS, 0) || c.TargetFPS <= 0:
		return fmt.Errorf("target fps must be a positive number, got %v", c.TargetFPS)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	case c.MaxFrames < 0:
		return fmt.Errorf("max frames must not be negative, got %d", c.MaxFrames)
	case c.RawDir == "":
		return errors.New("raw data directory is not set")
	case c.Mode != StartLive && c.Mode != StartBackward:
		return fmt.Errorf("unknown start mode %q", c.Mode)
	}
	return nil
}

// CaptureSummary is the outcome of a capture session.
type CaptureSummary struct {
	StreamID         string
	SessionTimestamp string
	SessionDir       string
	ManifestPath     string
	FrameCount       int
	FragmentsRead    int
	BytesRead        int64
	DecodeFailures   int
	Termination      Termination
	StartedAt        time.Time
	EndedAt          time.Time
	// Err is the error that ended the capture, if any.
	Err error
}

// FrameDecoder turns samples into JPEG images.
type FrameDecoder interface {
	Decodable(track mkv.Track, frame mkv.Frame) bool
	ToJPEG(ctx context.Context, track mkv.Track, frame mkv.Frame) ([]byte, error)
}

// SourceFactory opens the fragment source for a capture.
type SourceFactory func(ctx context.Context, desc *StreamDescriptor, cfg CaptureConfig, now time.Time) (FragmentSource, error)

// Consumer captures sampled frames from a stream into a session directory.
type Consumer struct {
	open    SourceFactory
	decoder FrameDecoder
	now     func() time.Time
}

// NewConsumer returns a Consumer reading through the session's credentials.
func NewConsumer(sess *cloud.Session, decoder FrameDecoder) *Consumer {
	return NewConsumerWithSource(sessionSources(sess), decoder)
}

// NewConsumerWithSource returns a Consumer over an explicit source factory.
func NewConsumerWithSource(open SourceFactory, decoder FrameDecoder) *Consumer {
	return &Consumer{open: open, decoder: decoder, now: time.Now}
}

func sessionSources(sess *cloud.Session) SourceFactory {
	return func(ctx context.Context, desc *StreamDescriptor, cfg CaptureConfig, now time.Time) (FragmentSource, error) {
		if cfg.Mode == StartBackward {
			if desc.ArchiveEndpoint == "" {
				return nil, result.Errorf(result.KindInvalidInput, "kvs.Capture",
					"stream %s has no archive endpoint (retention %dh)", desc.Name, desc.RetentionHours)
			}
			lookback := cfg.Lookback
			if lookback <= 0 {
				lookback = cfg.Duration
			}
			return NewArchiveSource(newArchiveClient(sess.Config, desc.ArchiveEndpoint), desc.ARN, now.Add(-lookback), now), nil
		}
		return NewLiveSource(newMediaClient(sess.Config, desc.DataEndpoint), desc.ARN), nil
	}
}

// captureRun is the mutable state of one capture.
type captureRun struct {
	cfg     CaptureConfig
	dir     *dataset.SessionDir
	sampler *Sampler

	firstSeen   time.Time
	seen        bool
	fragments   int
	bytes       int64
	decodeFails int
	firstFrame  *time.Time
	lastFrame   *time.Time
}

// Capture samples frames from desc at cfg.TargetFPS until the source-time
// span reaches cfg.Duration or cfg.MaxFrames frames are saved. It also stops
// when the stream is exhausted, a fetch fails after retries, ctx is
// canceled, or the wall-clock cap passes, even while a read is blocked. The
// session manifest is written in every case once the session directory
// exists.
func (c *Consumer) Capture(ctx context.Context, desc *StreamDescriptor, cfg CaptureConfig) result.Result[*CaptureSummary] {
	const op = "kvs.Capture"

	if desc == nil {
		return result.Failure[*CaptureSummary](result.KindInvalidInput, op, errors.New("stream descriptor is nil"))
	}
	if cfg.WallClockGrace <= 0 {
		cfg.WallClockGrace = DefaultWallClockGrace
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if err := cfg.validate(); err != nil {
		return result.Failure[*CaptureSummary](result.KindInvalidInput, op, err)
	}

	started := c.now()
	dir, err := dataset.NewSessionDir(cfg.RawDir, desc.Name, started)
	if err != nil {
		return result.FromError[*CaptureSummary](op, err)
	}

	log.Info().
		Str("stream", desc.Name).
		Str("mode", string(cfg.Mode)).
		Float64("fps", cfg.TargetFPS).
		Dur("duration", cfg.Duration).
		Int("max_frames", cfg.MaxFrames).
		Str("session", dir.Path).
		Msg("Capture started")

	run := &captureRun{cfg: cfg, dir: dir, sampler: NewSampler(cfg.TargetFPS)}
	reason, runErr := c.run(ctx, desc, run, started)
	ended := c.now()

	manifest := dataset.Manifest{
		StreamARN:      desc.ARN,
		StartMode:      string(cfg.Mode),
		TargetFPS:      cfg.TargetFPS,
		Duration:       cfg.Duration.Seconds(),
		MaxFrames:      cfg.MaxFrames,
		StartedAt:      started.UTC(),
		EndedAt:        ended.UTC(),
		FirstFrameAt:   run.firstFrame,
		LastFrameAt:    run.lastFrame,
		FragmentsRead:  run.fragments,
		BytesRead:      run.bytes,
		ProcessingTime: ended.Sub(started).Seconds(),
		Termination:    string(reason),
	}
	if runErr != nil {
		manifest.Error = runErr.Error()
	}
	manifestPath, err := dir.WriteManifest(manifest)
	if err != nil {
		return result.FromError[*CaptureSummary](op, fmt.Errorf("write session manifest: %w", err))
	}

	summary := &CaptureSummary{
		StreamID:         desc.Name,
		SessionTimestamp: dir.Timestamp,
		SessionDir:       dir.Path,
		ManifestPath:     manifestPath,
		FrameCount:       dir.FrameCount(),
		FragmentsRead:    run.fragments,
		BytesRead:        run.bytes,
		DecodeFailures:   run.decodeFails,
		Termination:      reason,
		StartedAt:        started,
		EndedAt:          ended,
		Err:              runErr,
	}

	metrics.New(metrics.Namespace).
		Dimension("Stream", desc.Name).
		Dimension("Termination", string(reason)).
		Metric("CaptureFrames", float64(summary.FrameCount), metrics.UnitCount).
		Metric("CaptureFragments", float64(summary.FragmentsRead), metrics.UnitCount).
		Metric("CaptureBytes", float64(summary.BytesRead), metrics.UnitBytes).
		Metric("CaptureMs", float64(ended.Sub(started).Milliseconds()), metrics.UnitMilliseconds).
		Property("session", dir.Timestamp).
		Flush()

	evt := log.Info()
	if runErr != nil {
		evt = log.Warn().Err(runErr)
	}
	evt.Str("stream", desc.Name).
		Int("frames", summary.FrameCount).
		Int("fragments", summary.FragmentsRead).
		Int64("bytes", summary.BytesRead).
		Str("termination", string(reason)).
		Str("manifest", manifestPath).
		Msg("Capture finished")

	// Nothing was read at all: surface the fetch failure itself.
	if reason == TerminationFetch && run.fragments == 0 {
		return cloud.Fail[*CaptureSummary](op, runErr)
	}
	return result.Success(summary)
}

func (c *Consumer) run(parent context.Context, desc *StreamDescriptor, run *captureRun, started time.Time) (Termination, error) {
	cfg := run.cfg

	// A quiet live stream blocks inside Next, so the cap is also enforced
	// through the context every fetch runs under.
	ctx, cancel := context.WithTimeout(parent, cfg.Duration+cfg.WallClockGrace)
	defer cancel()
	deadline := started.Add(cfg.Duration + cfg.WallClockGrace)

	// interrupted reports why ctx ended, or "" if it has not.
	interrupted := func() (Termination, error) {
		switch {
		case parent.Err() != nil:
			return TerminationCanceled, parent.Err()
		case ctx.Err() != nil:
			return TerminationWallClock, nil
		}
		return "", nil
	}

	src, err := withRetry(ctx, cfg.Retry, "open source", func() (FragmentSource, error) {
		return c.open(ctx, desc, cfg, started)
	})
	if err != nil {
		if reason, ierr := interrupted(); reason != "" {
			return reason, ierr
		}
		return TerminationFetch, err
	}
	defer src.Close()

	for {
		if reason, err := interrupted(); reason != "" {
			return reason, err
		}
		if c.now().After(deadline) {
			return TerminationWallClock, nil
		}

		frag, err := withRetry(ctx, cfg.Retry, "fetch fragment", func() (*mkv.Fragment, error) {
			return src.Next(ctx)
		})
		if errors.Is(err, io.EOF) {
			return TerminationExhausted, nil
		}
		if err != nil {
			if reason, ierr := interrupted(); reason != "" {
				return reason, ierr
			}
			return TerminationFetch, err
		}

		run.fragments++
		run.bytes += frag.Bytes

		reason, err := c.consume(ctx, run, frag)
		if err != nil {
			return TerminationWrite, err
		}
		if reason != "" {
			return reason, nil
		}
	}
}

// consume applies sampling to one fragment's frames. It returns a non-empty
// reason once the source-time span reaches the configured duration or the
// frame limit is hit.
func (c *Consumer) consume(ctx context.Context, run *captureRun, frag *mkv.Fragment) (Termination, error) {
	for _, frame := range frag.Frames {
		track, ok := frag.Track(frame.Track)
		if !ok || !c.decoder.Decodable(track, frame) {
			continue
		}

		if !run.seen {
			run.firstSeen = frame.Timestamp
			run.seen = true
		}
		if absDuration(frame.Timestamp.Sub(run.firstSeen)) >= run.cfg.Duration {
			return TerminationDuration, nil
		}
		if !run.sampler.Due(frame.Timestamp) {
			continue
		}

		data, err := c.decoder.ToJPEG(ctx, track, frame)
		if err != nil {
			run.decodeFails++
			log.Warn().Err(err).Str("fragment", frag.Number).Time("timestamp", frame.Timestamp).Msg("Frame decode failed, skipping")
			continue
		}

		rec, err := run.dir.WriteFrame(frame.Timestamp, frag.Number, data)
		if err != nil {
			return "", err
		}
		run.sampler.Mark(frame.Timestamp)

		ts := rec.Timestamp
		if run.firstFrame == nil {
			run.firstFrame = &ts
		}
		run.lastFrame = &ts

		log.Debug().Int("index", rec.Index).Time("timestamp", ts).Msg("Frame saved")

		if run.cfg.MaxFrames > 0 && rec.Index >= run.cfg.MaxFrames {
			return TerminationMaxFrames, nil
		}
	}
	return "", nil
}
