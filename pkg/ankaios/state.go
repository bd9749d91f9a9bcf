package ankaios

// WorkloadStatesMap is the Server's aggregated view of actual state,
// keyed agent name -> workload name -> config hash. The three-level shape
// lets a stale instance's last-known state coexist with a freshly created
// replacement until the stale one is reported REMOVED.
type WorkloadStatesMap map[string]map[string]map[string]ExecutionState

// NewWorkloadStatesMap returns an empty, ready-to-use map.
func NewWorkloadStatesMap() WorkloadStatesMap {
	return WorkloadStatesMap{}
}

// Set records the execution state for one workload instance, last-writer
// wins on (agent, workload, hash). A REMOVED state deletes the entry
// instead of recording it.
func (m WorkloadStatesMap) Set(instance WorkloadInstanceName, state ExecutionState) {
	if state.Terminal() {
		m.delete(instance)
		return
	}
	byWorkload, ok := m[instance.AgentName]
	if !ok {
		byWorkload = map[string]map[string]ExecutionState{}
		m[instance.AgentName] = byWorkload
	}
	byHash, ok := byWorkload[instance.WorkloadName]
	if !ok {
		byHash = map[string]ExecutionState{}
		byWorkload[instance.WorkloadName] = byHash
	}
	byHash[instance.ConfigHash] = state
}

func (m WorkloadStatesMap) delete(instance WorkloadInstanceName) {
	byWorkload, ok := m[instance.AgentName]
	if !ok {
		return
	}
	byHash, ok := byWorkload[instance.WorkloadName]
	if !ok {
		return
	}
	delete(byHash, instance.ConfigHash)
	if len(byHash) == 0 {
		delete(byWorkload, instance.WorkloadName)
	}
	if len(byWorkload) == 0 {
		delete(m, instance.AgentName)
	}
}

// Get returns the recorded state for an instance, if any.
func (m WorkloadStatesMap) Get(instance WorkloadInstanceName) (ExecutionState, bool) {
	byWorkload, ok := m[instance.AgentName]
	if !ok {
		return ExecutionState{}, false
	}
	byHash, ok := byWorkload[instance.WorkloadName]
	if !ok {
		return ExecutionState{}, false
	}
	s, ok := byHash[instance.ConfigHash]
	return s, ok
}

// DeleteAgent purges every state recorded for an agent. The Server does not
// call it on disconnect: OnAgentDisconnect uses MarkAgentDisconnected, which
// keeps the entries in place.
func (m WorkloadStatesMap) DeleteAgent(agentName string) {
	delete(m, agentName)
}

// MarkAgentDisconnected overwrites every instance state currently recorded
// for an agent with AGENT_DISCONNECTED, preserving retry counters and
// leaving the entries in place so clients still see the last known
// workload set.
func (m WorkloadStatesMap) MarkAgentDisconnected(agentName string, now func() ExecutionState) {
	byWorkload, ok := m[agentName]
	if !ok {
		return
	}
	for workloadName, byHash := range byWorkload {
		for hash, prev := range byHash {
			next := now()
			next.RetryCount = prev.RetryCount
			byHash[hash] = next
		}
		byWorkload[workloadName] = byHash
	}
}

// Merge overlays delta on top of m, calling Set for every instance delta
// names. The Server applies single UpdateWorkloadState reports with Set
// directly rather than through Merge.
func (m WorkloadStatesMap) Merge(delta WorkloadStatesMap) {
	for agent, byWorkload := range delta {
		for workload, byHash := range byWorkload {
			for hash, state := range byHash {
				m.Set(WorkloadInstanceName{AgentName: agent, WorkloadName: workload, ConfigHash: hash}, state)
			}
		}
	}
}
