package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "Manage the local dataset and model directories",
}

var dirsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the raw, processed, and model directories",
	Args:  cobra.NoArgs,
	Run:   runDirsInit,
}

func init() {
	dirsCmd.AddCommand(dirsInitCmd)
}

func runDirsInit(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	paths, err := cfg.Layout().Setup()
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(paths)
		return
	}
	fmt.Printf("Raw:       %s\n", paths.Raw)
	fmt.Printf("Processed: %s\n", paths.Processed)
	kinds := make([]string, 0, len(paths.Models))
	for k := range paths.Models {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("Models:    %s\n", paths.Models[k])
	}
}
