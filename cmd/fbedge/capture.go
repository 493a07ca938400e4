package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/config"
	"github.com/FactbirdHQ/fbedge-examples/internal/filehandler"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobutil"
	"github.com/FactbirdHQ/fbedge-examples/internal/kvs"
)

// Capture flags
var (
	captureStreamFlag   string
	captureFPSFlag      float64
	captureDurationFlag string
	captureModeFlag     string
	captureLookbackFlag string
	captureWidthFlag    int
	captureMaxFlag      int
	captureArchiveFlag  bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Sample frames from a stream into a new dataset session",
	Long: `Capture reads a Kinesis Video stream, keeps at most --fps decodable frames
per second of source time, and writes them as JPEG files to
{data}/raw/{stream}/{YYYYMMDD_HHMMSS}/ together with session_metadata.json.

--mode live starts at the live edge; --mode archive walks retained fragments
backward from now. --max-frames stops the capture early once that many frames
are saved. With --archive the finished session is zipped and uploaded
to FBEDGE_ARCHIVE_BUCKET.`,
	Args: cobra.NoArgs,
	Run:  runCapture,
}

func init() {
	captureCmd.Flags().StringVarP(&captureStreamFlag, "stream", "s", "", "Stream name (default FBEDGE_STREAM_ID)")
	captureCmd.Flags().Float64Var(&captureFPSFlag, "fps", 0, "Frames kept per second of source time (default FBEDGE_TARGET_FPS)")
	captureCmd.Flags().StringVarP(&captureDurationFlag, "duration", "d", "", "Source time to cover, e.g. 30s or 90 (default FBEDGE_CAPTURE_DURATION)")
	captureCmd.Flags().StringVar(&captureModeFlag, "mode", "", "Start mode: live or archive (default FBEDGE_VIDEO_SOURCE)")
	captureCmd.Flags().StringVar(&captureLookbackFlag, "lookback", "", "Archive search window (default FBEDGE_LOOKBACK)")
	captureCmd.Flags().IntVar(&captureWidthFlag, "max-width", -1, "Downscale frames wider than this; 0 keeps the source size (default FBEDGE_FRAME_MAX_WIDTH)")
	captureCmd.Flags().IntVar(&captureMaxFlag, "max-frames", -1, "Stop after saving this many frames; 0 means no limit (default FBEDGE_MAX_FRAMES)")
	captureCmd.Flags().BoolVar(&captureArchiveFlag, "archive", false, "Upload the finished session to FBEDGE_ARCHIVE_BUCKET")
}

// applyCaptureFlags overrides configuration with the capture flags that were set.
func applyCaptureFlags(cfg *config.Config) error {
	if captureStreamFlag != "" {
		cfg.StreamID = captureStreamFlag
	}
	if captureFPSFlag > 0 {
		cfg.TargetFPS = captureFPSFlag
	}
	if captureModeFlag != "" {
		cfg.VideoSource = captureModeFlag
	}
	if captureWidthFlag >= 0 {
		cfg.FrameMaxWidth = captureWidthFlag
	}
	if captureMaxFlag >= 0 {
		cfg.MaxFrames = captureMaxFlag
	}
	durations := []struct {
		value string
		dst   *time.Duration
	}{
		{captureDurationFlag, &cfg.CaptureDuration},
		{captureLookbackFlag, &cfg.Lookback},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := config.ParseDuration(d.value)
		if err != nil {
			return err
		}
		*d.dst = v
	}
	return nil
}

func runCapture(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := connect(ctx)

	if err := applyCaptureFlags(a.cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid capture flags")
	}
	if captureArchiveFlag && a.cfg.ArchiveBucket == "" {
		log.Fatal().Msg("--archive requires FBEDGE_ARCHIVE_BUCKET")
	}

	captureCfg, err := a.cfg.CaptureConfig()
	if err != nil {
		cli.HandleFailure(err)
	}

	name := resolveStream("", a.cfg.StreamID)
	desc, err := kvs.NewLocator(a.sess).Locate(ctx, name).Get()
	if err != nil {
		cli.HandleFailure(err)
	}

	consumer := kvs.NewConsumer(a.sess, filehandler.NewFrameDecoder(a.cfg.FrameMaxWidth))
	summary, err := consumer.Capture(ctx, desc, captureCfg).Get()
	if err != nil {
		cli.HandleFailure(err)
	}

	var archiveKey string
	if captureArchiveFlag {
		archiveKey, err = jobutil.UploadSession(ctx, a.s3(), a.cfg.ArchiveBucket, summary.SessionDir)
		if err != nil {
			log.Error().Err(err).Str("session", summary.SessionDir).Msg("Failed to upload session archive")
		}
	}
	a.recorder.CaptureDone(ctx, summary, captureCfg.Mode, archiveKey)

	if jsonFlag {
		printJSON(captureOutput(summary, archiveKey))
		return
	}
	printCapture(summary, archiveKey)
}

func captureOutput(s *kvs.CaptureSummary, archiveKey string) map[string]any {
	out := map[string]any{
		"streamId":         s.StreamID,
		"sessionTimestamp": s.SessionTimestamp,
		"sessionDir":       s.SessionDir,
		"manifest":         s.ManifestPath,
		"frameCount":       s.FrameCount,
		"fragmentsRead":    s.FragmentsRead,
		"bytesRead":        s.BytesRead,
		"decodeFailures":   s.DecodeFailures,
		"termination":      s.Termination,
	}
	if s.Err != nil {
		out["error"] = s.Err.Error()
	}
	if archiveKey != "" {
		out["archiveKey"] = archiveKey
	}
	return out
}

func printCapture(s *kvs.CaptureSummary, archiveKey string) {
	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("Capture Summary")
	fmt.Println("============================================")
	fmt.Printf("Stream:       %s\n", s.StreamID)
	fmt.Printf("Session:      %s\n", s.SessionDir)
	fmt.Printf("Frames saved: %d\n", s.FrameCount)
	fmt.Printf("Fragments:    %d (%s)\n", s.FragmentsRead, cli.FormatBytes(s.BytesRead))
	if s.DecodeFailures > 0 {
		fmt.Printf("Undecodable:  %d\n", s.DecodeFailures)
	}
	fmt.Printf("Elapsed:      %s\n", cli.FormatDurationShort(s.EndedAt.Sub(s.StartedAt)))
	fmt.Printf("Stopped by:   %s\n", s.Termination)
	if s.Err != nil {
		fmt.Printf("Last error:   %v\n", s.Err)
	}
	if archiveKey != "" {
		fmt.Printf("Archive:      %s\n", archiveKey)
	}
	fmt.Printf("Manifest:     %s\n", s.ManifestPath)
}
