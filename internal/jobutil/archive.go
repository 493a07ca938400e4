package jobutil

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/dataset"
	"github.com/FactbirdHQ/fbedge-examples/internal/s3util"
)

// UploadSession archives a finished capture session and uploads it to
// bucket under dataset.ArchiveKey. It returns the object key.
func UploadSession(ctx context.Context, client s3util.PutObjectAPI, bucket, sessionPath string) (string, error) {
	m, err := dataset.ReadManifest(sessionPath)
	if err != nil {
		return "", err
	}

	tmp, stats, err := dataset.CreateArchiveFile(sessionPath)
	if err != nil {
		return "", fmt.Errorf("archive session: %w", err)
	}
	defer os.Remove(tmp)

	key := dataset.ArchiveKey(m.StreamID, m.SessionTimestamp)
	tags := map[string]string{
		"stream":  m.StreamID,
		"session": m.SessionTimestamp,
	}
	if err := s3util.UploadFile(ctx, client, bucket, key, tmp, "application/zip", tags); err != nil {
		return "", err
	}

	log.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int("files", stats.Files).
		Int64("bytes", stats.Bytes).
		Msg("Session archive uploaded")
	return key, nil
}
