package dataset

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

var sessionTime = time.Date(2026, 10, 19, 10, 15, 30, 0, time.UTC)

func TestLayout_Setup(t *testing.T) {
	root := t.TempDir()
	l := Layout{DataDir: filepath.Join(root, "data"), ModelsDir: filepath.Join(root, "models")}

	paths, err := l.Setup()
	require.NoError(t, err)

	for _, dir := range []string{paths.Raw, paths.Processed, paths.Models[ModelONNX], paths.Models[ModelHEF], paths.Models[ModelCheckpoints]} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "data", "raw"), paths.Raw)
	assert.Equal(t, filepath.Join(root, "models", "hef"), paths.Models[ModelHEF])

	// Idempotent.
	_, err = l.Setup()
	assert.NoError(t, err)
}

func TestNewSessionDir(t *testing.T) {
	raw := t.TempDir()

	s, err := NewSessionDir(raw, "line-3", sessionTime)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(raw, "line-3", "20261019_101530"), s.Path)
	assert.Equal(t, "20261019_101530", s.Timestamp)
	info, err := os.Stat(s.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewSessionDir_ExistingIsConflict(t *testing.T) {
	raw := t.TempDir()
	existing := filepath.Join(raw, "line-3", "20261019_101530")
	require.NoError(t, os.MkdirAll(existing, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "frame_001.jpg"), []byte("keep"), 0o644))

	_, err := NewSessionDir(raw, "line-3", sessionTime)
	require.Error(t, err)
	assert.Equal(t, result.KindConflict, result.KindOf(err))

	data, err := os.ReadFile(filepath.Join(existing, "frame_001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data), "existing session content must not be touched")
}

func TestNewSessionDir_InvalidStreamID(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := NewSessionDir(t.TempDir(), id, sessionTime)
		assert.Equal(t, result.KindInvalidInput, result.KindOf(err), "stream id %q", id)
	}
}

func TestWriteFrame_ContiguousIndices(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec, err := s.WriteFrame(sessionTime.Add(time.Duration(i)*time.Second), "frag-1", []byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, i+1, rec.Index)
	}

	for i, name := range []string{"frame_001.jpg", "frame_002.jpg", "frame_003.jpg"} {
		data, err := os.ReadFile(filepath.Join(s.Path, name))
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, data)
	}
	assert.Equal(t, 3, s.FrameCount())
	assert.Equal(t, "frame_1000.jpg", FrameName(1000))
}

func TestWriteManifest(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)
	_, err = s.WriteFrame(sessionTime, "1", []byte{1})
	require.NoError(t, err)
	_, err = s.WriteFrame(sessionTime.Add(time.Second), "1", []byte{2})
	require.NoError(t, err)

	path, err := s.WriteManifest(Manifest{
		StartMode:   "live",
		TargetFPS:   2,
		FrameCount:  99, // overridden by the session
		Termination: "duration_reached",
	})
	require.NoError(t, err)
	assert.Equal(t, s.ManifestPath(), path)

	m, err := ReadManifest(s.Path)
	require.NoError(t, err)
	assert.Equal(t, "line-3", m.StreamID)
	assert.Equal(t, "20261019_101530", m.SessionTimestamp)
	assert.Equal(t, 2, m.FrameCount)
	assert.Len(t, m.Frames, 2)
	assert.Equal(t, "frame_002.jpg", m.Frames[1].Path)

	// Exactly one manifest, no leftover temp files.
	entries, err := os.ReadDir(s.Path)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = s.WriteManifest(Manifest{})
	assert.Equal(t, result.KindConflict, result.KindOf(err))
}

func TestWriteManifest_EmptySession(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)

	_, err = s.WriteManifest(Manifest{Termination: "stream_exhausted"})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.ManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"frames": []`)
	assert.Contains(t, string(raw), `"frame_count": 0`)
}

func TestWriteManifest_ConflictKeepsFirst(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)

	_, err = s.WriteManifest(Manifest{Termination: "max_frames_reached", MaxFrames: 12})
	require.NoError(t, err)
	before, err := os.ReadFile(s.ManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(before), `"max_frames_limit": 12`)

	_, err = s.WriteManifest(Manifest{Termination: "canceled"})
	assert.Equal(t, result.KindConflict, result.KindOf(err))

	after, err := os.ReadFile(s.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(s.Path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ManifestName, entries[0].Name())
}

func TestWriteManifest_NoFrameLimitOmitted(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)

	_, err = s.WriteManifest(Manifest{Termination: "duration_reached"})
	require.NoError(t, err)

	raw, err := os.ReadFile(s.ManifestPath())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "max_frames_limit")
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	assert.Equal(t, result.KindNotFound, result.KindOf(err))
}

func TestWriteArchive(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)
	_, err = s.WriteFrame(sessionTime, "1", bytes.Repeat([]byte{0xAB}, 4096))
	require.NoError(t, err)
	_, err = s.WriteManifest(Manifest{StartMode: "live"})
	require.NoError(t, err)

	var buf bytes.Buffer
	stats, err := WriteArchive(s.Path, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	zr.RegisterDecompressor(zipMethodZstd, zstd.ZipDecompressor())

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
		assert.Equal(t, zipMethodZstd, f.Method)
		if f.Name == "line-3/20261019_101530/frame_001.jpg" {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Len(t, data, 4096)
		}
	}
	assert.True(t, names["line-3/20261019_101530/frame_001.jpg"])
	assert.True(t, names["line-3/20261019_101530/session_metadata.json"])
}

func TestWriteArchive_IncompleteSession(t *testing.T) {
	s, err := NewSessionDir(t.TempDir(), "line-3", sessionTime)
	require.NoError(t, err)

	_, err = WriteArchive(s.Path, io.Discard)
	assert.Error(t, err)
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "captures/line-3/20261019_101530.zip", ArchiveKey("line-3", "20261019_101530"))
}
