package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// SessionTimeFormat names session directories (YYYYMMDD_HHMMSS, UTC).
const SessionTimeFormat = "20060102_150405"

// ManifestName is the session metadata file written at the end of a capture.
const ManifestName = "session_metadata.json"

// FrameRecord describes one saved frame.
type FrameRecord struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Fragment  string    `json:"fragment_number,omitempty"`
	Path      string    `json:"path"`
	Bytes     int       `json:"bytes"`
}

// SessionDir is an exclusively owned capture session directory.
type SessionDir struct {
	Path      string
	StreamID  string
	Timestamp string
	StartedAt time.Time

	frames []FrameRecord
}

// NewSessionDir creates {rawRoot}/{streamID}/{YYYYMMDD_HHMMSS}. The leaf is
// created exclusively: an existing directory is a conflict, never reused.
func NewSessionDir(rawRoot, streamID string, at time.Time) (*SessionDir, error) {
	const op = "dataset.NewSessionDir"

	if err := validateStreamID(streamID); err != nil {
		return nil, &result.Error{Kind: result.KindInvalidInput, Op: op, Err: err}
	}

	at = at.UTC()
	stamp := at.Format(SessionTimeFormat)
	parent := filepath.Join(rawRoot, streamID)
	path := filepath.Join(parent, stamp)

	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, &result.Error{Kind: result.KindUnknown, Op: op, Err: err}
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, result.Errorf(result.KindConflict, op, "session directory %s already exists", path)
		}
		return nil, &result.Error{Kind: result.KindUnknown, Op: op, Err: err}
	}

	log.Debug().Str("path", path).Msg("Session directory created")
	return &SessionDir{Path: path, StreamID: streamID, Timestamp: stamp, StartedAt: at}, nil
}

// FrameName returns the file name for a 1-based frame index.
func FrameName(index int) string {
	return fmt.Sprintf("frame_%03d.jpg", index)
}

// WriteFrame saves the next frame. Indices are contiguous from 1.
func (s *SessionDir) WriteFrame(ts time.Time, fragment string, data []byte) (FrameRecord, error) {
	index := len(s.frames) + 1
	name := FrameName(index)

	f, err := os.OpenFile(filepath.Join(s.Path, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return FrameRecord{}, fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return FrameRecord{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return FrameRecord{}, fmt.Errorf("close %s: %w", name, err)
	}

	rec := FrameRecord{Index: index, Timestamp: ts.UTC(), Fragment: fragment, Path: name, Bytes: len(data)}
	s.frames = append(s.frames, rec)
	return rec, nil
}

// Frames returns the frames written so far.
func (s *SessionDir) Frames() []FrameRecord {
	return append([]FrameRecord(nil), s.frames...)
}

// FrameCount is the number of frames written.
func (s *SessionDir) FrameCount() int {
	return len(s.frames)
}

// ManifestPath is where WriteManifest stores the session metadata.
func (s *SessionDir) ManifestPath() string {
	return filepath.Join(s.Path, ManifestName)
}

func validateStreamID(id string) error {
	switch {
	case id == "":
		return errors.New("stream id is empty")
	case id == "." || id == "..":
		return fmt.Errorf("stream id %q is not a valid directory name", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("stream id %q must not contain path separators", id)
	}
	return nil
}
