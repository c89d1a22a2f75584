// Package refine implements the scratchpad: an iterative pass that rewrites a
// request for clarity and completeness before an agent submits it.
//
// Each round asks the model for a REFINEMENT_RESPONSE and stops early when
// the model declares the plan done with a sufficient score, when the plan
// converges (sequence similarity to the previous round), when it stagnates
// (byte-identical rounds) or when every checklist item is satisfied. A round
// that fails is replaced by a neutral fallback so refinement never blocks the
// primary request.
package refine
