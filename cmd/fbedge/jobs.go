package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FactbirdHQ/fbedge-examples/internal/cli"
	"github.com/FactbirdHQ/fbedge-examples/internal/fleet"
	"github.com/FactbirdHQ/fbedge-examples/internal/jobs"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// Jobs flags
var (
	jobsLimitFlag   int
	jobsThingFlag   string
	cancelReasonMsg string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Monitor and cancel deployment jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and per-device executions",
	Args:  cobra.ExactArgs(1),
	Run:   runJobsStatus,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs, newest first",
	Long: `List shows recent jobs newest first. With --thing it lists the jobs that
targeted that device instead, with the device's own execution status.`,
	Args: cobra.NoArgs,
	Run:   runJobsList,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job that has not finished",
	Args:  cobra.ExactArgs(1),
	Run:   runJobsCancel,
}

func init() {
	jobsListCmd.Flags().IntVarP(&jobsLimitFlag, "limit", "n", fleet.DefaultListLimit, "Maximum jobs to show")
	jobsListCmd.Flags().StringVar(&jobsThingFlag, "thing", "", "Only jobs that targeted this device")
	jobsCancelCmd.Flags().StringVar(&cancelReasonMsg, "comment", fleet.DefaultCancelComment, "Comment recorded with the cancellation")

	jobsCmd.AddCommand(jobsStatusCmd, jobsListCmd, jobsCancelCmd)
}

func runJobsStatus(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := connect(ctx)
	id := jobs.NormalizeID(args[0])

	state, err := fleet.NewJobs(a.sess).Status(ctx, id).Get()
	if err != nil {
		cli.HandleFailure(err)
	}
	a.recorder.DeploymentStatus(ctx, state.JobID, state.Status)

	if jsonFlag {
		printJSON(state)
		return
	}
	fmt.Printf("Job:     %s\n", state.JobID)
	fmt.Printf("Status:  %s (%s)\n", state.Status, state.RawStatus)
	if !state.CreatedAt.IsZero() {
		fmt.Printf("Created: %s\n", state.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if !state.CompletedAt.IsZero() {
		fmt.Printf("Done:    %s\n", state.CompletedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if state.Comment != "" {
		fmt.Printf("Comment: %s\n", state.Comment)
	}
	if len(state.Executions) > 0 {
		fmt.Println("Executions:")
		for _, e := range state.Executions {
			fmt.Printf("   %-24s %-12s %s\n", e.ThingName, e.Status, e.RawStatus)
		}
	}
}

func runJobsList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := connect(ctx)

	list, err := listJobs(ctx, fleet.NewJobs(a.sess), jobsThingFlag, jobsLimitFlag)
	if err != nil {
		cli.HandleFailure(err)
	}

	if jsonFlag {
		printJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No jobs found.")
		return
	}
	for i, j := range list {
		fmt.Printf("%2d. %-50s %-12s %s\n", i+1, j.JobID, j.Status, j.CreatedAt.Format("2006-01-02 15:04"))
	}
}

// JobLister is the part of fleet.Jobs the list command needs.
type JobLister interface {
	List(ctx context.Context, n int) result.Result[[]fleet.JobSummary]
	ListForThing(ctx context.Context, thingName string, n int) result.Result[[]fleet.JobSummary]
}

// listJobs lists fleet-wide jobs, or only one device's jobs when thing is set.
func listJobs(ctx context.Context, jl JobLister, thing string, n int) ([]fleet.JobSummary, error) {
	if thing != "" {
		return jl.ListForThing(ctx, thing, n).Get()
	}
	return jl.List(ctx, n).Get()
}

func runJobsCancel(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	a := connect(ctx)
	id := jobs.NormalizeID(args[0])

	outcome, err := fleet.NewJobs(a.sess).Cancel(ctx, id, cancelReasonMsg).Get()
	if err != nil {
		cli.HandleFailure(err)
	}
	a.recorder.DeploymentStatus(ctx, outcome.JobID, outcome.Status)

	if jsonFlag {
		printJSON(outcome)
		return
	}
	if outcome.Changed {
		fmt.Printf("Job %s canceled.\n", outcome.JobID)
		return
	}
	fmt.Printf("Job %s already %s; nothing to cancel.\n", outcome.JobID, outcome.Status)
}
