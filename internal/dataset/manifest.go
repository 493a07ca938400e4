package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// Manifest is the session_metadata.json document describing one capture.
type Manifest struct {
	StreamID         string        `json:"stream_id"`
	StreamARN        string        `json:"stream_arn,omitempty"`
	SessionTimestamp string        `json:"session_timestamp"`
	StartMode        string        `json:"start_mode"`
	TargetFPS        float64       `json:"target_fps"`
	Duration         float64       `json:"duration_seconds"`
	MaxFrames        int           `json:"max_frames_limit,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	FirstFrameAt     *time.Time    `json:"first_frame_at,omitempty"`
	LastFrameAt      *time.Time    `json:"last_frame_at,omitempty"`
	FrameCount       int           `json:"frame_count"`
	FragmentsRead    int           `json:"fragments_read"`
	BytesRead        int64         `json:"bytes_read"`
	ProcessingTime   float64       `json:"processing_seconds"`
	Termination      string        `json:"termination"`
	Error            string        `json:"error,omitempty"`
	Frames           []FrameRecord `json:"frames"`
}

// WriteManifest stores m as the session's metadata. The frame list and count
// always come from the session itself, and an existing manifest is never
// replaced. The file is created exclusively in place, so it works on
// filesystems without hard links such as vfat and exFAT.
func (s *SessionDir) WriteManifest(m Manifest) (string, error) {
	const op = "dataset.WriteManifest"

	m.StreamID = s.StreamID
	m.SessionTimestamp = s.Timestamp
	m.Frames = s.Frames()
	m.FrameCount = len(m.Frames)
	if m.Frames == nil {
		m.Frames = []FrameRecord{}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	final := s.ManifestPath()
	f, err := os.OpenFile(final, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", result.Errorf(result.KindConflict, op, "manifest %s already exists", final)
		}
		return "", fmt.Errorf("create manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(final)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(final)
		return "", fmt.Errorf("close manifest: %w", err)
	}
	return final, nil
}

// ReadManifest loads a session manifest from a session directory or file path.
func ReadManifest(path string) (*Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ManifestName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &result.Error{Kind: result.KindNotFound, Op: "dataset.ReadManifest", Err: err}
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
