package server

import (
	"testing"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/stretchr/testify/assert"
)

func TestValidateDesiredStateAcceptsValidGraph(t *testing.T) {
	ds := &ankaios.DesiredState{Workloads: map[string]*ankaios.Workload{
		"db":  {Name: "db", Agent: "agent_A", Runtime: "podman"},
		"app": {Name: "app", Agent: "agent_A", Runtime: "podman", Dependencies: map[string]ankaios.DependencyCondition{"db": ankaios.DependencyRunning}},
	}}

	assert.NoError(t, ValidateDesiredState(ds, map[string]bool{"podman": true}))
}

func TestValidateDesiredStateRejectsCircularDependency(t *testing.T) {
	ds := &ankaios.DesiredState{Workloads: map[string]*ankaios.Workload{
		"a": {Name: "a", Agent: "agent_A", Runtime: "podman", Dependencies: map[string]ankaios.DependencyCondition{"b": ankaios.DependencyRunning}},
		"b": {Name: "b", Agent: "agent_A", Runtime: "podman", Dependencies: map[string]ankaios.DependencyCondition{"a": ankaios.DependencyRunning}},
	}}

	assert.Error(t, ValidateDesiredState(ds, nil))
}

func TestValidateDesiredStateRejectsUnknownDependency(t *testing.T) {
	ds := &ankaios.DesiredState{Workloads: map[string]*ankaios.Workload{
		"app": {Name: "app", Agent: "agent_A", Runtime: "podman", Dependencies: map[string]ankaios.DependencyCondition{"missing": ankaios.DependencyRunning}},
	}}

	assert.Error(t, ValidateDesiredState(ds, nil))
}

func TestValidateDesiredStateRejectsMissingAgent(t *testing.T) {
	ds := &ankaios.DesiredState{Workloads: map[string]*ankaios.Workload{
		"w": {Name: "w", Runtime: "podman"},
	}}

	assert.Error(t, ValidateDesiredState(ds, nil))
}

func TestValidateDesiredStateSelfDependencyIsCircular(t *testing.T) {
	ds := &ankaios.DesiredState{Workloads: map[string]*ankaios.Workload{
		"a": {Name: "a", Agent: "agent_A", Runtime: "podman", Dependencies: map[string]ankaios.DependencyCondition{"a": ankaios.DependencyRunning}},
	}}

	assert.Error(t, ValidateDesiredState(ds, nil))
}
