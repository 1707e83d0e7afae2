// Package orchestrator owns the declared list of managed services and runs
// one supervisor per service to a terminal state, sequentially in declaration
// order by default or concurrently when requested. Declaration order encodes
// dependencies: any service consuming another's resolved address is declared
// after it, and the handoff of that address goes through a write-once future
// resolved only when the upstream service reaches Healthy. The orchestrator
// aggregates the terminal results into a summary with per-service status,
// port and ownership, and derives the process exit code from the required
// services only.
package orchestrator
