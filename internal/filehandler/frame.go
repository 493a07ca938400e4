// Package filehandler turns single encoded video samples from a stream into
// JPEG files for the training dataset. MJPEG samples are already JPEG; H.264
// key frames are converted to Annex B and decoded by ffmpeg.
package filehandler

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/mkv"
)

// Matroska codec IDs understood by the decoder.
const (
	CodecMJPEG = "V_MJPEG"
	CodecH264  = "V_MPEG4/ISO/AVC"
)

// FrameJPEGQuality is the ffmpeg qscale used for decoded key frames
// (2 is roughly 95% JPEG quality).
const FrameJPEGQuality = 2

// ffmpegTimeout bounds the decode of a single key frame.
const ffmpegTimeout = 15 * time.Second

// FrameDecoder converts encoded samples into JPEG bytes.
type FrameDecoder struct {
	// MaxWidth downsizes frames wider than this. Zero keeps the source size.
	MaxWidth int

	ffmpegOnce sync.Once
	ffmpegPath string
	ffmpegErr  error

	// runFFmpeg decodes an Annex-B access unit to JPEG. Replaced in tests.
	runFFmpeg func(ctx context.Context, annexB []byte) ([]byte, error)
}

// NewFrameDecoder returns a decoder that resizes frames to maxWidth.
func NewFrameDecoder(maxWidth int) *FrameDecoder {
	d := &FrameDecoder{MaxWidth: maxWidth}
	d.runFFmpeg = d.decodeWithFFmpeg
	return d
}

// Decodable reports whether a sample can be turned into a standalone image:
// any MJPEG sample, or an H.264 key frame.
func (d *FrameDecoder) Decodable(track mkv.Track, frame mkv.Frame) bool {
	switch track.CodecID {
	case CodecMJPEG:
		return true
	case CodecH264:
		return frame.Keyframe
	default:
		return false
	}
}

// ToJPEG converts one sample to JPEG, resizing when MaxWidth is set.
func (d *FrameDecoder) ToJPEG(ctx context.Context, track mkv.Track, frame mkv.Frame) ([]byte, error) {
	var data []byte

	switch track.CodecID {
	case CodecMJPEG:
		if _, err := jpeg.DecodeConfig(bytes.NewReader(frame.Data)); err != nil {
			return nil, fmt.Errorf("invalid MJPEG sample: %w", err)
		}
		data = frame.Data

	case CodecH264:
		if !frame.Keyframe {
			return nil, fmt.Errorf("H.264 sample at %s is not a key frame", frame.Timestamp.Format(time.RFC3339Nano))
		}
		annexB, err := ToAnnexB(track.CodecPrivate, frame.Data)
		if err != nil {
			return nil, fmt.Errorf("convert sample to Annex-B: %w", err)
		}
		data, err = d.runFFmpeg(ctx, annexB)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported codec %q", track.CodecID)
	}

	if d.MaxWidth > 0 {
		return ResizeJPEG(data, d.MaxWidth)
	}
	return data, nil
}

func (d *FrameDecoder) lookupFFmpeg() (string, error) {
	d.ffmpegOnce.Do(func() {
		d.ffmpegPath, d.ffmpegErr = exec.LookPath("ffmpeg")
		if d.ffmpegErr != nil {
			d.ffmpegErr = fmt.Errorf("ffmpeg not found: H.264 frame decoding requires ffmpeg: %w", d.ffmpegErr)
		}
	})
	return d.ffmpegPath, d.ffmpegErr
}

// decodeWithFFmpeg pipes a single access unit through ffmpeg and reads back
// one MJPEG image.
func (d *FrameDecoder) decodeWithFFmpeg(ctx context.Context, annexB []byte) ([]byte, error) {
	ffmpegPath, err := d.lookupFFmpeg()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-q:v", strconv.Itoa(FrameJPEGQuality),
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(annexB)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame decode failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no image for %d-byte access unit", len(annexB))
	}

	log.Debug().
		Int("input_bytes", len(annexB)).
		Int("output_bytes", stdout.Len()).
		Dur("duration", time.Since(start)).
		Msg("Key frame decoded")

	return stdout.Bytes(), nil
}
