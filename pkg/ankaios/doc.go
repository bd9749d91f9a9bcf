/*
Package ankaios defines the shared data model of the orchestration core: the
desired state a cluster operator declares, the actual state agents observe,
and the types used to compute deltas between the two.

None of the types in this package own any I/O or concurrency; they are pure
value types shared by pkg/server, pkg/agent and pkg/transport so that the
wire format and the reconciliation logic agree on a single definition of
"workload".

# Identity

A Workload is identified within desiredState.workloads by its Name. A running
realization of a workload is identified by a WorkloadInstanceName, the triple
(workload name, agent name, config hash). Two instance names with the same
hash are considered the same container; a changed hash always means
delete-then-create, never in-place mutation (see ComputeInstanceHash).

# State shape

WorkloadStatesMap is keyed agent -> workload name -> instance hash, which
lets a stale state from a prior instance coexist briefly with its
replacement until the agent reports REMOVED and the entry is garbage
collected.
*/
package ankaios
