package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// stateFile is the YAML shape `set state -f` reads (`run workload` takes
// its fields from flags instead), mirroring the Server's own startup manifest format so one file works in
// both places.
type stateFile struct {
	APIVersion string                    `yaml:"apiVersion"`
	Workloads  map[string]workloadFields `yaml:"workloads"`
}

type workloadFields struct {
	Agent         string            `yaml:"agent"`
	Runtime       string            `yaml:"runtime"`
	RuntimeConfig string            `yaml:"runtimeConfig"`
	RestartPolicy string            `yaml:"restartPolicy,omitempty"`
	Tags          map[string]string `yaml:"tags,omitempty"`
	Dependencies  map[string]string `yaml:"dependencies,omitempty"`
}

func (f *stateFile) toDesiredState() *ankaios.DesiredState {
	ds := &ankaios.DesiredState{APIVersion: f.APIVersion, Workloads: map[string]*ankaios.Workload{}}
	for name, w := range f.Workloads {
		workload := &ankaios.Workload{
			Name:          name,
			Agent:         w.Agent,
			Runtime:       w.Runtime,
			RuntimeConfig: w.RuntimeConfig,
			RestartPolicy: ankaios.RestartPolicy(w.RestartPolicy),
		}
		for k, v := range w.Tags {
			workload.Tags = append(workload.Tags, ankaios.Tag{Key: k, Value: v})
		}
		if len(w.Dependencies) > 0 {
			workload.Dependencies = map[string]ankaios.DependencyCondition{}
			for dep, cond := range w.Dependencies {
				workload.Dependencies[dep] = ankaios.DependencyCondition(cond)
			}
		}
		ds.Workloads[name] = workload
	}
	return ds
}

func loadStateFile(path string) (*ankaios.DesiredState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f stateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.toDesiredState(), nil
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace cluster state",
}

func init() {
	stateCmd := &cobra.Command{
		Use:  "state",
		RunE: runSetState,
	}
	stateCmd.Flags().StringP("file", "f", "", "YAML file describing the desired state (required)")
	stateCmd.Flags().StringSlice("update-mask", []string{"desiredState"}, "dotted-path masks applied by this update")
	_ = stateCmd.MarkFlagRequired("file")

	setCmd.AddCommand(stateCmd)
}

func runSetState(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	updateMask, _ := cmd.Flags().GetStringSlice("update-mask")

	ds, err := loadStateFile(file)
	if err != nil {
		return validationError(err)
	}

	client, err := newClient()
	if err != nil {
		return usageError(err)
	}

	if err := client.SetState(context.Background(), ankaios.CompleteState{DesiredState: ds}, updateMask); err != nil {
		return serverError(err)
	}
	fmt.Println("state updated")
	return nil
}
