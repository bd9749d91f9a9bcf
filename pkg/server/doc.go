// Package server implements the Ankaios Server: the single writer of
// desired state, the aggregator of actual state reported by Agents, and the
// handler for the AgentConnect stream's two session kinds (long-lived Agent
// sessions and short-lived client request/response sessions).
//
// Server.UpdateState is the serialization point for every desired-state
// mutation after LoadManifest's one-time startup seed (clone, mask-apply,
// validate, diff, commit, dispatch), playing
// a single-writer apply path, without Raft:
// Ankaios has exactly one Server per cluster. Reconciler runs the periodic,
// non-reactive half of reconciliation — a defensive sweep for connections
// that died without a clean Goodbye.
package server
