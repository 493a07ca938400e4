package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/kvs"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Inspect Kinesis Video streams",
}

var streamDescribeCmd = &cobra.Command{
	Use:   "describe [stream]",
	Short: "Locate a stream and resolve its endpoints",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStreamDescribe,
}

func init() {
	streamCmd.AddCommand(streamDescribeCmd)
}

// resolveStream picks the stream name from the argument, the configuration,
// or an interactive prompt, in that order.
func resolveStream(arg, configured string) string {
	if arg != "" {
		return arg
	}
	if configured != "" {
		return configured
	}
	return cli.PromptForStream("")
}

func runStreamDescribe(cmd *cobra.Command, args []string) {
	a := connect(cmd.Context())

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	name := resolveStream(arg, a.cfg.StreamID)

	desc, err := kvs.NewLocator(a.sess).Locate(cmd.Context(), name).Get()
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(desc)
		return
	}
	printStream(desc)
}

func printStream(d *kvs.StreamDescriptor) {
	fmt.Printf("Stream:     %s\n", d.Name)
	fmt.Printf("ARN:        %s\n", d.ARN)
	fmt.Printf("Status:     %s\n", d.Status)
	if d.MediaType != "" {
		fmt.Printf("Media type: %s\n", d.MediaType)
	}
	fmt.Printf("Retention:  %dh\n", d.RetentionHours)
	fmt.Printf("GetMedia:   %s\n", d.DataEndpoint)
	if d.ArchiveEndpoint != "" {
		fmt.Printf("Archive:    %s\n", d.ArchiveEndpoint)
	}
	if d.SignalingEndpoint != "" {
		fmt.Printf("Signaling:  %s\n", d.SignalingEndpoint)
	}
}
