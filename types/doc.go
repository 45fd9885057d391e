// Package types provides unified type definitions shared across the
// agentmem subsystem: the tagged experience payload, tier categories,
// stats snapshots, and the structured error model.
//
// Packages under this module should depend on types, never the other
// way around.
package types
