// Package session records what happens during operator sessions: every turn
// input, structured action, delegation, tool call and reply is appended as an
// Event. The Store interface keeps the orchestrator independent of where the
// transcript lives; InMemoryStore is the process-local implementation.
package session
