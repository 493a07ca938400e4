package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobutil"
)

var archiveBucketFlag string

var archiveCmd = &cobra.Command{
	Use:   "archive <session-dir>",
	Short: "Zip a finished capture session and upload it to S3",
	Args:  cobra.ExactArgs(1),
	Run:   runArchive,
}

func init() {
	archiveCmd.Flags().StringVar(&archiveBucketFlag, "bucket", "", "Destination bucket (default FBEDGE_ARCHIVE_BUCKET)")
}

func runArchive(cmd *cobra.Command, args []string) {
	sessionPath := cli.ValidateAndResolveDirectory(args[0])
	a := connect(cmd.Context())

	bucket := archiveBucketFlag
	if bucket == "" {
		bucket = a.cfg.ArchiveBucket
	}
	if bucket == "" {
		log.Fatal().Msg("No bucket given (use --bucket or FBEDGE_ARCHIVE_BUCKET)")
	}

	key, err := jobutil.UploadSession(cmd.Context(), a.s3(), bucket, sessionPath)
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(map[string]string{"bucket": bucket, "key": key})
		return
	}
	fmt.Printf("Uploaded s3://%s/%s\n", bucket, key)
}
