package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fenced(body string) string { return "Sure.\n```json\n" + body + "\n```\nDone." }

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{"simple", "```json\n{\"a\":1}\n```", `{"a":1}`, nil},
		{"surrounding text", "pre ```json {} ``` post", "{}", nil},
		{"last end marker", "```json\n{\"code\":\"```go```\"}\n```", "{\"code\":\"```go```\"}", nil},
		{"no start", "{\"a\":1}", "", ErrMissingDelimiter},
		{"plain fence", "```\n{}\n```", "", ErrMissingDelimiter},
		{"no end", "```json\n{}", "", ErrMissingDelimiter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.raw)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantErr    error
		correction string
	}{
		{"missing delimiter", "just text", ErrMissingDelimiter, CorrectionMissingDelimiter},
		{"malformed", fenced(`{"action": "NORMAL_RESPONSE",}`), ErrMalformedSyntax, CorrectionMalformed},
		{"not an object", fenced(`["a"]`), ErrMalformedSyntax, CorrectionMalformed},
		{"null", fenced(`null`), ErrMalformedSyntax, CorrectionMalformed},
		{"trailing", fenced(`{"action":"X"} {}`), ErrMalformedSyntax, CorrectionMalformed},
		{"no action", fenced(`{"response": "hi"}`), ErrInvalidStructure, CorrectionInvalidStructure},
		{"action not string", fenced(`{"action": 3}`), ErrInvalidStructure, CorrectionInvalidStructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.correction, Correction(err))
		})
	}
	assert.Equal(t, "", Correction(errors.New("other")))
}

func TestRoundTrip(t *testing.T) {
	actions := []Action{
		NormalResponse{Response: "Hello there"},
		DelegateTask{Agent: "Hermes", CallerAgent: "Zeus", Reason: "needs code", UserInput: "write a parser"},
		DelegateBack{ReturnTo: "Zeus", ReturnFrom: "Hermes", Reason: "done", Success: true},
		DelegateBack{ReturnTo: "Zeus", ReturnFrom: "Hermes", Reason: "failed", Success: false},
		UseTool{Tool: "file_tools.read_file", Args: "path=/tmp/x"},
		ToolReturn{Tool: "file_tools.read_file", Result: "File not found", Success: false},
		RefinementResponse{
			NewPlan:   "1. read\n2. write",
			Done:      true,
			Score:     85,
			Why:       "clear",
			Checklist: Checklist{Objective: true, Inputs: true, Outputs: false, Constraints: true},
			Success:   true,
		},
	}
	for _, a := range actions {
		t.Run(string(a.Kind()), func(t *testing.T) {
			raw, err := Fence(a)
			require.NoError(t, err)
			rec, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, string(a.Kind()), rec.Action())
			got, err := Decode(rec)
			require.NoError(t, err)
			assert.Equal(t, a, got)
		})
	}
}

func TestEncode_WireLiterals(t *testing.T) {
	out, err := Encode(ToolReturn{Tool: "t", Result: "<ok>", Success: true})
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"action\": \"TOOL_RETURN\",\n    \"tool\": \"t\",\n    \"result\": \"<ok>\",\n    \"success\": \"True\"\n}", out)

	out, err = Encode(RefinementResponse{Done: false})
	require.NoError(t, err)
	assert.Contains(t, out, `"done": "no"`)
	assert.Contains(t, out, `"success": false`)
}

func TestDecode_MissingFields(t *testing.T) {
	valid := map[Kind]Record{
		KindNormalResponse: {"action": "NORMAL_RESPONSE", "response": "x"},
		KindDelegateTask:   {"action": "DELEGATE_TASK", "agent": "a", "caller_agent": "b", "reason": "c", "user_input": "d"},
		KindDelegateBack:   {"action": "DELEGATE_BACK", "return_to_agent": "a", "return_from_agent": "b", "reason": "c", "success": "True"},
		KindUseTool:        {"action": "USE_TOOL", "tool": "t", "args": ""},
		KindToolReturn:     {"action": "TOOL_RETURN", "tool": "t", "result": "r", "success": "False"},
		KindRefinementResponse: {
			"action": "REFINEMENT_RESPONSE", "new_plan": "p", "done": "no", "score": 10, "why": "w",
			"checklist": map[string]any{"objective": true, "inputs": false, "outputs": false, "constraints": false},
			"success": false,
		},
	}
	for kind, rec := range valid {
		_, err := Decode(rec)
		require.NoError(t, err, kind)
		for field := range rec {
			if field == "action" {
				continue
			}
			t.Run(string(kind)+"/"+field, func(t *testing.T) {
				broken := Record{}
				for k, v := range rec {
					if k != field {
						broken[k] = v
					}
				}
				_, err := Decode(broken)
				var se *StructureError
				require.True(t, errors.As(err, &se), "got %v", err)
				assert.Equal(t, field, se.Field)
				assert.True(t, errors.Is(err, ErrInvalidStructure))
			})
		}
	}
}

func TestDecode_FieldContracts(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string
	}{
		{"non-string agent", Record{"action": "DELEGATE_TASK", "agent": 1, "caller_agent": "b", "reason": "c", "user_input": "d"}, "agent"},
		{"bad success literal", Record{"action": "DELEGATE_BACK", "return_to_agent": "a", "return_from_agent": "b", "reason": "c", "success": "true"}, "success"},
		{"bool success", Record{"action": "TOOL_RETURN", "tool": "t", "result": "r", "success": true}, "success"},
		{"bad done", Record{"action": "REFINEMENT_RESPONSE", "new_plan": "p", "done": "maybe", "score": 1, "why": "", "checklist": map[string]any{}, "success": true}, "done"},
		{"score range", refinement(map[string]any{"score": 101}), "score"},
		{"score fraction", refinement(map[string]any{"score": 50.5}), "score"},
		{"score string", refinement(map[string]any{"score": "50"}), "score"},
		{"checklist type", refinement(map[string]any{"checklist": "all"}), "checklist"},
		{"checklist value", refinement(map[string]any{"checklist": map[string]any{"objective": "yes", "inputs": true, "outputs": true, "constraints": true}}), "checklist.objective"},
		{"checklist missing", refinement(map[string]any{"checklist": map[string]any{"objective": true}}), "checklist.inputs"},
		{"success type", refinement(map[string]any{"success": "True"}), "success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.rec)
			var se *StructureError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.field, se.Field)
		})
	}
}

func refinement(overrides map[string]any) Record {
	r := Record{
		"action": "REFINEMENT_RESPONSE", "new_plan": "p", "done": "yes", "score": 50, "why": "w",
		"checklist": map[string]any{"objective": true, "inputs": true, "outputs": true, "constraints": true},
		"success":   true,
	}
	for k, v := range overrides {
		r[k] = v
	}
	return r
}

func TestDecode_UnknownAction(t *testing.T) {
	_, err := Decode(Record{"action": "DANCE"})
	var ue *UnknownActionError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "DANCE", ue.Action)
	assert.False(t, errors.Is(err, ErrInvalidStructure))
}

func TestDecodeAs(t *testing.T) {
	_, err := DecodeAs(Record{"action": "NORMAL_RESPONSE", "response": "x"}, KindRefinementResponse)
	assert.True(t, errors.Is(err, ErrInvalidStructure))

	a, err := DecodeAs(Record{"action": "USE_TOOL", "tool": "t", "args": "a=1"}, KindUseTool)
	require.NoError(t, err)
	assert.Equal(t, UseTool{Tool: "t", Args: "a=1"}, a)
}

func TestDelegationPrompts(t *testing.T) {
	d := DelegateTask{Agent: "Hermes", CallerAgent: "Zeus", UserInput: "build the thing"}
	assert.Equal(t, "You were delegated from Zeus.\nbuild the thing.", d.Prompt())

	b := DelegateBack{ReturnTo: "Zeus", ReturnFrom: "Hermes", Reason: "finished", Success: true}
	assert.Equal(t, "You were delegated back from Hermes.\nreason: finished.\nsuccess: True.", b.Prompt())
}

func TestGuidelines(t *testing.T) {
	g := Guidelines()
	for _, k := range []Kind{KindNormalResponse, KindDelegateTask, KindDelegateBack, KindUseTool} {
		assert.Contains(t, g, string(k))
	}
	assert.NotContains(t, g, string(KindRefinementResponse))
	assert.Contains(t, RefinementGuideline, `"checklist"`)
}

func TestChecklist_Complete(t *testing.T) {
	assert.True(t, Checklist{true, true, true, true}.Complete())
	assert.False(t, Checklist{true, true, false, true}.Complete())
}
