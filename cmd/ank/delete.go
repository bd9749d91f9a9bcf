package main

import (
	"context"
	"fmt"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete workload <name>",
	Short: "Remove a workload from the desired state",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteWorkload,
}

func runDeleteWorkload(cmd *cobra.Command, args []string) error {
	name := args[0]
	mask := fmt.Sprintf("desiredState.workloads.%s", name)

	// An empty CompleteState has nothing at mask, so UpdateState's masked
	// apply removes the path from the candidate instead of overwriting it.
	client, err := newClient()
	if err != nil {
		return usageError(err)
	}
	if err := client.SetState(context.Background(), ankaios.CompleteState{}, []string{mask}); err != nil {
		return serverError(err)
	}
	fmt.Printf("workload %q removed\n", name)
	return nil
}
