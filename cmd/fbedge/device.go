package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect IoT-registered devices",
}

var deviceCheckCmd = &cobra.Command{
	Use:   "check [thing]",
	Short: "Confirm a device is registered and show its identity",
	Args:  cobra.MaximumNArgs(1),
	Run:   runDeviceCheck,
}

func init() {
	deviceCmd.AddCommand(deviceCheckCmd)
}

// resolveThing picks the thing name from the argument or the configuration.
func resolveThing(arg, configured string) string {
	if arg != "" {
		return arg
	}
	if configured != "" {
		return configured
	}
	return cli.Prompt(os.Stdin, os.Stdout, "Thing name", "")
}

func runDeviceCheck(cmd *cobra.Command, args []string) {
	a := connect(cmd.Context())

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	name := resolveThing(arg, a.cfg.ThingName)

	device, err := fleet.NewDevices(a.sess).Check(cmd.Context(), name).Get()
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(device)
		return
	}
	printDevice(device)
}

func printDevice(d *fleet.DeviceRecord) {
	fmt.Printf("Thing:   %s\n", d.ThingName)
	fmt.Printf("ARN:     %s\n", d.ARN)
	fmt.Printf("ID:      %s\n", d.ID)
	if d.Type != "" {
		fmt.Printf("Type:    %s\n", d.Type)
	}
	fmt.Printf("Version: %d\n", d.Version)
	fmt.Printf("Shadow:  %t\n", d.ShadowAvailable)

	if len(d.Attributes) > 0 {
		keys := make([]string, 0, len(d.Attributes))
		for k := range d.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("Attributes:")
		for _, k := range keys {
			fmt.Printf("   %s = %s\n", k, d.Attributes[k])
		}
	}
}
