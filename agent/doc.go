// Package agent implements conversational agents and the roster that holds
// them.
//
// An Agent binds a model descriptor to a conversation store, an inference
// configuration and summarization and refinement policies. Respond sends one
// prompt through the agent:
//
//  1. optionally refine the prompt with the scratchpad loop
//  2. ensure the model is loaded and render the conversation
//  3. complete, parse the fenced JSON reply and, on protocol failures, append
//     a corrective instruction to the in-flight request and retry
//  4. on success append the prompt and the cleaned reply to history, which may
//     trigger a summarization of older messages
//
// Failed replies and corrective instructions never reach the history.
package agent
