package ankaios

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkloadStatesMapSetAndGet(t *testing.T) {
	m := NewWorkloadStatesMap()
	instance := WorkloadInstanceName{AgentName: "agent_A", WorkloadName: "nginx", ConfigHash: "abc123"}
	state := ExecutionState{State: Running, Substate: "", Timestamp: time.Unix(0, 0)}

	m.Set(instance, state)

	got, ok := m.Get(instance)
	assert.True(t, ok)
	assert.Equal(t, Running, got.State)
}

func TestWorkloadStatesMapStaleAndFreshCoexist(t *testing.T) {
	m := NewWorkloadStatesMap()
	stale := WorkloadInstanceName{AgentName: "agent_A", WorkloadName: "nginx", ConfigHash: "old"}
	fresh := WorkloadInstanceName{AgentName: "agent_A", WorkloadName: "nginx", ConfigHash: "new"}

	m.Set(stale, ExecutionState{State: Stopping})
	m.Set(fresh, ExecutionState{State: Pending})

	_, staleOK := m.Get(stale)
	_, freshOK := m.Get(fresh)
	assert.True(t, staleOK)
	assert.True(t, freshOK)
}

func TestWorkloadStatesMapRemovedPurgesEntry(t *testing.T) {
	m := NewWorkloadStatesMap()
	instance := WorkloadInstanceName{AgentName: "agent_A", WorkloadName: "nginx", ConfigHash: "abc123"}
	m.Set(instance, ExecutionState{State: Running})

	m.Set(instance, ExecutionState{State: Removed})

	_, ok := m.Get(instance)
	assert.False(t, ok)
	assert.Empty(t, m)
}

func TestWorkloadStatesMapMarkAgentDisconnectedPreservesRetryCount(t *testing.T) {
	m := NewWorkloadStatesMap()
	instance := WorkloadInstanceName{AgentName: "agent_A", WorkloadName: "nginx", ConfigHash: "abc123"}
	m.Set(instance, ExecutionState{State: Failed, Substate: SubstateStartingFailed, RetryCount: 3})

	m.MarkAgentDisconnected("agent_A", func() ExecutionState {
		return ExecutionState{State: AgentDisconnected}
	})

	got, ok := m.Get(instance)
	assert.True(t, ok)
	assert.Equal(t, AgentDisconnected, got.State)
	assert.Equal(t, 3, got.RetryCount)
}

func TestWorkloadStatesMapMergeAppliesDelta(t *testing.T) {
	m := NewWorkloadStatesMap()
	delta := NewWorkloadStatesMap()
	instance := WorkloadInstanceName{AgentName: "agent_B", WorkloadName: "cache", ConfigHash: "h1"}
	delta.Set(instance, ExecutionState{State: Running})

	m.Merge(delta)

	got, ok := m.Get(instance)
	assert.True(t, ok)
	assert.Equal(t, Running, got.State)
}
