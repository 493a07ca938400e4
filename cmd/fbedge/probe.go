package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
)

var checkStorageFlag bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Verify AWS credentials and connectivity",
	Args:  cobra.NoArgs,
	Run:   runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&checkStorageFlag, "check-storage", false, "Also verify S3 access by listing buckets")
}

func runProbe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	prober := cloud.NewProber()
	prober.CheckStorage = checkStorageFlag

	a := connectWith(cmd.Context(), cfg, prober)
	if jsonFlag {
		printJSON(map[string]any{
			"account":   a.sess.Account,
			"arn":       a.sess.ARN,
			"region":    a.sess.Region(),
			"temporary": a.sess.Temporary,
		})
		return
	}

	fmt.Println("AWS connection OK")
	fmt.Printf("Account:   %s\n", a.sess.Account)
	fmt.Printf("Identity:  %s\n", a.sess.ARN)
	fmt.Printf("Region:    %s\n", a.sess.Region())
	fmt.Printf("Temporary: %t\n", a.sess.Temporary)
}
