// Package runtime defines the Adaptor capability a workload's `runtime`
// tag resolves to (createWorkload/deleteWorkload/getReusableWorkloads,
// classified retriable/fatal errors) and a static registry keyed by tag
// string. ContainerdAdaptor is the concrete implementation backing the
// "containerd" (and, until a dedicated client exists, "podman") tags;
// pkg/runtime/fake provides an in-memory double for control loop tests.
package runtime
