package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
)

var capturesCmd = &cobra.Command{
	Use:   "captures [stream]",
	Short: "List recorded capture sessions from the ledger",
	Long:  `Captures lists the sessions recorded in FBEDGE_LEDGER_TABLE for a stream, newest first.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runCaptures,
}

func runCaptures(cmd *cobra.Command, args []string) {
	a := connect(cmd.Context())
	if a.cfg.LedgerTable == "" {
		fmt.Println("No ledger configured (set FBEDGE_LEDGER_TABLE).")
		return
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	name := resolveStream(arg, a.cfg.StreamID)

	records, err := a.recorder.Ledger.ListCaptures(cmd.Context(), name)
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(records)
		return
	}
	if len(records) == 0 {
		fmt.Printf("No captures recorded for %s.\n", name)
		return
	}
	fmt.Printf("Captures of %s (%d)\n", name, len(records))
	fmt.Println("--------------------------------------------")
	for _, r := range records {
		line := fmt.Sprintf("   %s  %4d frames  %-16s  %s", r.SessionTimestamp, r.FrameCount, r.Termination, time.Unix(r.CreatedAt, 0).Format(time.RFC3339))
		if r.ArchiveKey != "" {
			line += "  " + r.ArchiveKey
		}
		fmt.Println(line)
	}
}
