package dataset

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard.
const zipMethodZstd uint16 = zstd.ZipMethodWinZip

// ArchiveStats summarizes a written archive.
type ArchiveStats struct {
	Files int
	Bytes int64
}

// WriteArchive writes every regular file of a session directory into a
// zstd-compressed ZIP. Entries are named {stream}/{session}/{file} so
// archives from different sessions can be extracted side by side.
func WriteArchive(sessionPath string, w io.Writer) (ArchiveStats, error) {
	if _, err := ReadManifest(sessionPath); err != nil {
		return ArchiveStats{}, fmt.Errorf("session %s is not complete: %w", sessionPath, err)
	}

	entries, err := os.ReadDir(sessionPath)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("read session directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	prefix := path.Join(filepath.Base(filepath.Dir(sessionPath)), filepath.Base(sessionPath))

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})

	var stats ArchiveStats
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		n, err := addFile(zw, filepath.Join(sessionPath, entry.Name()), path.Join(prefix, entry.Name()))
		if err != nil {
			zw.Close()
			return stats, err
		}
		stats.Files++
		stats.Bytes += n
	}

	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("close ZIP writer: %w", err)
	}

	log.Debug().
		Str("session", sessionPath).
		Int("files", stats.Files).
		Int64("bytes", stats.Bytes).
		Msg("Session archive written")
	return stats, nil
}

func addFile(zw *zip.Writer, src, name string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", src, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("ZIP header for %s: %w", src, err)
	}
	header.Name = name
	header.Method = zipMethodZstd

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("create ZIP entry for %s: %w", name, err)
	}
	n, err := io.Copy(writer, f)
	if err != nil {
		return n, fmt.Errorf("write to ZIP for %s: %w", name, err)
	}
	return n, nil
}

// CreateArchiveFile writes the session archive to a temporary file and
// returns its path. The caller removes the file when done.
func CreateArchiveFile(sessionPath string) (string, ArchiveStats, error) {
	tmp, err := os.CreateTemp("", "fbedge-session-*.zip")
	if err != nil {
		return "", ArchiveStats{}, fmt.Errorf("create temp ZIP: %w", err)
	}

	stats, err := WriteArchive(sessionPath, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temp ZIP: %w", closeErr)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", stats, err
	}
	return tmp.Name(), stats, nil
}

// ArchiveKey is the object key used when uploading a session archive.
func ArchiveKey(streamID, sessionTimestamp string) string {
	return path.Join("captures", streamID, sessionTimestamp+".zip")
}
