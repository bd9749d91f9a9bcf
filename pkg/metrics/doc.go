/*
Package metrics exposes the Prometheus metrics and HTTP health/readiness
endpoints. cmd/ank-server serves them on its --metrics-listen address;
cmd/ank-agent serves none.

Collector samples a StateSource (the server's in-memory CompleteState) on a
fixed interval and publishes agent and workload-instance counts as gauges.
Desired-state update durations, reconciliation passes and agent
connects/reconnects are recorded inline by pkg/server and pkg/agent via
Timer and the package-level counter/histogram vars; the API request,
workload create/delete and control loop retry vars are registered but not
updated by any package.

GetHealth/GetReadiness back the /health and /ready HTTP endpoints.
GetReadiness reports "ready" only when the critical components
desiredStateStore and runtime are both registered healthy through
RegisterComponent/UpdateComponent; any other registered component affects
GetHealth only. No binary in this module registers components itself.
*/
package metrics
