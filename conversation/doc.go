// Package conversation holds the per-agent message log and keeps it inside
// the model's context window.
//
// A Store tracks the system prompt, the seed messages and the growing
// history. Every Append checks the estimated context usage; once it crosses
// the policy threshold the older part of the history is replaced by a single
// summary message produced by a Summarizer, while the most recent fraction of
// messages is kept verbatim.
package conversation
