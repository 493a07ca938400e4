package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobutil"
)

// Deploy flags
var (
	deployThingFlag       string
	deployURLFlag         string
	deployDestinationFlag string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Ask a device to download a model artifact",
	Long: `Deploy confirms the device is registered in AWS IoT, then creates an IoT job
whose document tells it to download --url. The URL must be absolute http(s);
it is not fetched here.`,
	Args: cobra.NoArgs,
	Run:  runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployThingFlag, "thing", "t", "", "Target thing name (default FBEDGE_THING_NAME)")
	deployCmd.Flags().StringVarP(&deployURLFlag, "url", "u", "", "Artifact URL the device downloads")
	deployCmd.Flags().StringVar(&deployDestinationFlag, "destination", "", "Path on the device to store the artifact (default FBEDGE_DEPLOY_DESTINATION)")
	_ = deployCmd.MarkFlagRequired("url")
}

func runDeploy(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	// Reject a bad URL before touching AWS.
	if err := fleet.ValidateURL(deployURLFlag); err != nil {
		log.Fatal().Err(err).Str("url", deployURLFlag).Msg("Invalid artifact URL")
	}

	a := connect(ctx)
	thing := resolveThing(deployThingFlag, a.cfg.ThingName)

	jobs := fleet.NewJobs(a.sess)
	jobs.Destination = a.cfg.DeployDestination
	if deployDestinationFlag != "" {
		jobs.Destination = deployDestinationFlag
	}

	d := &jobutil.Deployer{
		Devices:  fleet.NewDevices(a.sess),
		Jobs:     jobs,
		Recorder: a.recorder,
	}
	job, err := d.Deploy(ctx, thing, deployURLFlag, "cli").Get()
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(job)
		return
	}
	fmt.Println("Deployment job created")
	fmt.Printf("Job ID:  %s\n", job.JobID)
	fmt.Printf("Job ARN: %s\n", job.JobARN)
	fmt.Printf("Target:  %s\n", job.ThingARN)
	fmt.Printf("URL:     %s\n", job.Document.URL)
	fmt.Printf("\nFollow with: fbedge jobs status %s\n", job.JobID)
}
