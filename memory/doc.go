// Package memory implements a tiered memory subsystem for a single agent.
//
// Five tiers hold experiences at different lifetimes: a fixed-capacity
// working set, a time-boxed short-term cache, a durable episodic store
// with vector similarity search, a confidence-weighted semantic concept
// graph, and a procedural skill library keyed by trigger patterns. A
// consolidator periodically promotes, extracts, generalizes, and decays
// records across the durable tiers.
//
// System is the entry point; everything else is reachable through it.
package memory
