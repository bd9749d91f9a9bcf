package main

import (
	"context"
	"fmt"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run workload <name>",
	Short: "Add a single workload to the desired state",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunWorkload,
}

func init() {
	runCmd.Flags().String("agent", "", "agent this workload is assigned to (required)")
	runCmd.Flags().String("runtime", "", "runtime tag (required)")
	runCmd.Flags().String("runtime-config", "", "runtime-specific configuration, verbatim")
	runCmd.Flags().String("restart-policy", string(ankaios.RestartOnFailure), "restart policy (NEVER, ON_FAILURE, ALWAYS)")
	runCmd.Flags().StringToString("tag", nil, "key=value tags, may be repeated")
	_ = runCmd.MarkFlagRequired("agent")
	_ = runCmd.MarkFlagRequired("runtime")
}

func runRunWorkload(cmd *cobra.Command, args []string) error {
	name := args[0]
	agentName, _ := cmd.Flags().GetString("agent")
	runtimeTag, _ := cmd.Flags().GetString("runtime")
	runtimeConfig, _ := cmd.Flags().GetString("runtime-config")
	restartPolicy, _ := cmd.Flags().GetString("restart-policy")
	tags, _ := cmd.Flags().GetStringToString("tag")

	workload := &ankaios.Workload{
		Name:          name,
		Agent:         agentName,
		Runtime:       runtimeTag,
		RuntimeConfig: runtimeConfig,
		RestartPolicy: ankaios.RestartPolicy(restartPolicy),
	}
	for k, v := range tags {
		workload.Tags = append(workload.Tags, ankaios.Tag{Key: k, Value: v})
	}

	newState := ankaios.CompleteState{
		DesiredState: &ankaios.DesiredState{
			Workloads: map[string]*ankaios.Workload{name: workload},
		},
	}
	mask := fmt.Sprintf("desiredState.workloads.%s", name)

	client, err := newClient()
	if err != nil {
		return usageError(err)
	}
	if err := client.SetState(context.Background(), newState, []string{mask}); err != nil {
		return serverError(err)
	}
	fmt.Printf("workload %q scheduled on %q\n", name, agentName)
	return nil
}
