package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get workloads|agents|state",
	Short: "Read cluster state",
}

func init() {
	workloadsCmd := &cobra.Command{
		Use:  "workloads",
		RunE: runGet([]string{"desiredState.workloads"}),
	}
	agentsCmd := &cobra.Command{
		Use:  "agents",
		RunE: runGet([]string{"agents"}),
	}
	stateCmd := &cobra.Command{
		Use:  "state",
		RunE: runGetState,
	}
	stateCmd.Flags().StringSlice("field-mask", nil, "dotted-path field masks to restrict the response to")

	getCmd.AddCommand(workloadsCmd, agentsCmd, stateCmd)
}

func runGet(masks []string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return getAndPrint(masks)
	}
}

func runGetState(cmd *cobra.Command, args []string) error {
	masks, _ := cmd.Flags().GetStringSlice("field-mask")
	return getAndPrint(masks)
}

func getAndPrint(masks []string) error {
	client, err := newClient()
	if err != nil {
		return usageError(err)
	}

	state, err := client.GetState(context.Background(), masks)
	if err != nil {
		return serverError(err)
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return serverError(fmt.Errorf("encode response: %w", err))
	}
	fmt.Println(string(out))
	return nil
}
