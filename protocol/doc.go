// Package protocol implements the structured response format agents use to
// signal intent.
//
// Every model reply must carry a JSON object inside a ```json fenced block.
// The object's "action" field selects one of six kinds: NORMAL_RESPONSE,
// DELEGATE_TASK, DELEGATE_BACK, USE_TOOL, TOOL_RETURN and
// REFINEMENT_RESPONSE. Parsing happens in two steps:
//
//   - Parse extracts the fenced block, decodes it and checks that an action
//     is present. Failures are ErrMissingDelimiter, ErrMalformedSyntax or a
//     *StructureError (ErrInvalidStructure).
//   - Decode validates the per-kind field contract and returns a typed
//     Action. Unknown kinds yield *UnknownActionError.
//
// Boolean fields that travel as the literal strings "True"/"False" (and
// "yes"/"no" for refinement) are native bools inside the typed actions and are
// converted back at encoding time.
package protocol
