package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentrelay/internal/util"
)

// Kind is the value of a record's "action" field.
type Kind string

const (
	KindNormalResponse     Kind = "NORMAL_RESPONSE"
	KindDelegateTask       Kind = "DELEGATE_TASK"
	KindDelegateBack       Kind = "DELEGATE_BACK"
	KindUseTool            Kind = "USE_TOOL"
	KindToolReturn         Kind = "TOOL_RETURN"
	KindRefinementResponse Kind = "REFINEMENT_RESPONSE"
)

// Action is one typed structured action.
type Action interface {
	Kind() Kind
}

// NormalResponse is a final answer for the operator.
type NormalResponse struct {
	Response string
}

// DelegateTask hands the turn to another agent.
type DelegateTask struct {
	Agent       string
	CallerAgent string
	Reason      string
	UserInput   string
}

// DelegateBack returns the turn to the agent that delegated it.
type DelegateBack struct {
	ReturnTo   string
	ReturnFrom string
	Reason     string
	Success    bool
}

// UseTool asks the orchestrator to run a tool. Args is the raw
// "key=value,key=value" argument string.
type UseTool struct {
	Tool string
	Args string
}

// ToolReturn is the result of a tool invocation.
type ToolReturn struct {
	Tool    string
	Result  string
	Success bool
}

// Checklist records which aspects of a plan a refinement pass considers
// covered.
type Checklist struct {
	Objective   bool `json:"objective"`
	Inputs      bool `json:"inputs"`
	Outputs     bool `json:"outputs"`
	Constraints bool `json:"constraints"`
}

// Complete reports whether every checklist item is satisfied.
func (c Checklist) Complete() bool {
	return c.Objective && c.Inputs && c.Outputs && c.Constraints
}

// RefinementResponse is one round of plan refinement.
type RefinementResponse struct {
	NewPlan   string
	Done      bool
	Score     int
	Why       string
	Checklist Checklist
	Success   bool
}

func (NormalResponse) Kind() Kind     { return KindNormalResponse }
func (DelegateTask) Kind() Kind       { return KindDelegateTask }
func (DelegateBack) Kind() Kind       { return KindDelegateBack }
func (UseTool) Kind() Kind            { return KindUseTool }
func (ToolReturn) Kind() Kind         { return KindToolReturn }
func (RefinementResponse) Kind() Kind { return KindRefinementResponse }

const (
	delegationTemplate     = "You were delegated from {{.caller}}.\n{{.input}}."
	delegationBackTemplate = "You were delegated back from {{.from}}.\nreason: {{.reason}}.\nsuccess: {{.success}}."
)

// Prompt renders the message the delegated agent receives.
func (d DelegateTask) Prompt() string {
	return util.MustRenderTemplate(delegationTemplate, map[string]any{
		"caller": d.CallerAgent,
		"input":  d.UserInput,
	})
}

// Prompt renders the message the agent returned to receives.
func (d DelegateBack) Prompt() string {
	return util.MustRenderTemplate(delegationBackTemplate, map[string]any{
		"from":    d.ReturnFrom,
		"reason":  d.Reason,
		"success": FormatBool(d.Success),
	})
}

// FormatBool renders the wire form of a string-typed boolean.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// marshalWire encodes without HTML escaping so tool output and code reach the
// model verbatim.
func marshalWire(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalJSON implements json.Marshaler with the wire field names.
func (a NormalResponse) MarshalJSON() ([]byte, error) {
	return marshalWire(struct {
		Action   Kind   `json:"action"`
		Response string `json:"response"`
	}{KindNormalResponse, a.Response})
}

// MarshalJSON implements json.Marshaler with the wire field names.
func (a DelegateTask) MarshalJSON() ([]byte, error) {
	return marshalWire(struct {
		Action      Kind   `json:"action"`
		Agent       string `json:"agent"`
		CallerAgent string `json:"caller_agent"`
		Reason      string `json:"reason"`
		UserInput   string `json:"user_input"`
	}{KindDelegateTask, a.Agent, a.CallerAgent, a.Reason, a.UserInput})
}

// MarshalJSON implements json.Marshaler; Success travels as "True"/"False".
func (a DelegateBack) MarshalJSON() ([]byte, error) {
	return marshalWire(struct {
		Action     Kind   `json:"action"`
		ReturnTo   string `json:"return_to_agent"`
		ReturnFrom string `json:"return_from_agent"`
		Reason     string `json:"reason"`
		Success    string `json:"success"`
	}{KindDelegateBack, a.ReturnTo, a.ReturnFrom, a.Reason, FormatBool(a.Success)})
}

// MarshalJSON implements json.Marshaler with the wire field names.
func (a UseTool) MarshalJSON() ([]byte, error) {
	return marshalWire(struct {
		Action Kind   `json:"action"`
		Tool   string `json:"tool"`
		Args   string `json:"args"`
	}{KindUseTool, a.Tool, a.Args})
}

// MarshalJSON implements json.Marshaler; Success travels as "True"/"False".
func (a ToolReturn) MarshalJSON() ([]byte, error) {
	return marshalWire(struct {
		Action  Kind   `json:"action"`
		Tool    string `json:"tool"`
		Result  string `json:"result"`
		Success string `json:"success"`
	}{KindToolReturn, a.Tool, a.Result, FormatBool(a.Success)})
}

// MarshalJSON implements json.Marshaler; Done travels as "yes"/"no".
func (a RefinementResponse) MarshalJSON() ([]byte, error) {
	return marshalWire(struct {
		Action    Kind      `json:"action"`
		NewPlan   string    `json:"new_plan"`
		Done      string    `json:"done"`
		Score     int       `json:"score"`
		Why       string    `json:"why"`
		Checklist Checklist `json:"checklist"`
		Success   bool      `json:"success"`
	}{KindRefinementResponse, a.NewPlan, formatYesNo(a.Done), a.Score, a.Why, a.Checklist, a.Success})
}

// Decode validates a record against the field contract of its action kind.
func Decode(r Record) (Action, error) {
	raw, ok := r["action"]
	if !ok {
		return nil, missingField("", "action")
	}
	action, ok := raw.(string)
	if !ok {
		return nil, invalidField("", "action", "Field action must be a string")
	}
	switch Kind(action) {
	case KindNormalResponse:
		return decodeNormalResponse(r)
	case KindDelegateTask:
		return decodeDelegateTask(r)
	case KindDelegateBack:
		return decodeDelegateBack(r)
	case KindUseTool:
		return decodeUseTool(r)
	case KindToolReturn:
		return decodeToolReturn(r)
	case KindRefinementResponse:
		return decodeRefinementResponse(r)
	default:
		return nil, &UnknownActionError{Action: action}
	}
}

// DecodeAs decodes r and checks that it is of kind k.
func DecodeAs(r Record, k Kind) (Action, error) {
	if got := Kind(r.Action()); got != k {
		return nil, invalidField(k, "action", fmt.Sprintf("Action must be '%s'", k))
	}
	return Decode(r)
}

func stringFields(r Record, k Kind, fields ...string) ([]string, error) {
	out := make([]string, len(fields))
	for i, f := range fields {
		v, ok := r[f]
		if !ok {
			return nil, missingField(k, f)
		}
		s, ok := v.(string)
		if !ok {
			return nil, invalidField(k, f, fmt.Sprintf("Field %s must be a string", f))
		}
		out[i] = s
	}
	return out, nil
}

func parseTrueFalse(k Kind, s string) (bool, error) {
	switch s {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, invalidField(k, "success", "Success field must be 'True' or 'False'")
	}
}

func decodeNormalResponse(r Record) (Action, error) {
	f, err := stringFields(r, KindNormalResponse, "response")
	if err != nil {
		return nil, err
	}
	return NormalResponse{Response: f[0]}, nil
}

func decodeDelegateTask(r Record) (Action, error) {
	f, err := stringFields(r, KindDelegateTask, "agent", "caller_agent", "reason", "user_input")
	if err != nil {
		return nil, err
	}
	return DelegateTask{Agent: f[0], CallerAgent: f[1], Reason: f[2], UserInput: f[3]}, nil
}

func decodeDelegateBack(r Record) (Action, error) {
	f, err := stringFields(r, KindDelegateBack, "return_to_agent", "return_from_agent", "reason", "success")
	if err != nil {
		return nil, err
	}
	ok, err := parseTrueFalse(KindDelegateBack, f[3])
	if err != nil {
		return nil, err
	}
	return DelegateBack{ReturnTo: f[0], ReturnFrom: f[1], Reason: f[2], Success: ok}, nil
}

func decodeUseTool(r Record) (Action, error) {
	f, err := stringFields(r, KindUseTool, "tool", "args")
	if err != nil {
		return nil, err
	}
	return UseTool{Tool: f[0], Args: f[1]}, nil
}

func decodeToolReturn(r Record) (Action, error) {
	f, err := stringFields(r, KindToolReturn, "tool", "result", "success")
	if err != nil {
		return nil, err
	}
	ok, err := parseTrueFalse(KindToolReturn, f[2])
	if err != nil {
		return nil, err
	}
	return ToolReturn{Tool: f[0], Result: f[1], Success: ok}, nil
}

func decodeRefinementResponse(r Record) (Action, error) {
	const k = KindRefinementResponse
	for _, field := range []string{"new_plan", "done", "score", "why", "checklist", "success"} {
		if _, ok := r[field]; !ok {
			return nil, missingField(k, field)
		}
	}
	f, err := stringFields(r, k, "new_plan", "done", "why")
	if err != nil {
		return nil, err
	}
	var done bool
	switch f[1] {
	case "yes":
		done = true
	case "no":
	default:
		return nil, invalidField(k, "done", "done must be 'yes' or 'no'")
	}
	score, err := integerField(r["score"])
	if err != nil || score < 0 || score > 100 {
		return nil, invalidField(k, "score", "score must be an integer between 0 and 100")
	}
	checklist, err := decodeChecklist(r["checklist"])
	if err != nil {
		return nil, err
	}
	success, ok := r["success"].(bool)
	if !ok {
		return nil, invalidField(k, "success", "success must be a boolean")
	}
	return RefinementResponse{
		NewPlan:   f[0],
		Done:      done,
		Score:     score,
		Why:       f[2],
		Checklist: checklist,
		Success:   success,
	}, nil
}

func integerField(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func decodeChecklist(v any) (Checklist, error) {
	const k = KindRefinementResponse
	m, ok := v.(map[string]any)
	if !ok {
		return Checklist{}, invalidField(k, "checklist", "checklist must be a dictionary")
	}
	var vals [4]bool
	for i, field := range []string{"objective", "inputs", "outputs", "constraints"} {
		raw, ok := m[field]
		if !ok {
			return Checklist{}, invalidField(k, "checklist."+field, "checklist missing required field: "+field)
		}
		b, ok := raw.(bool)
		if !ok {
			return Checklist{}, invalidField(k, "checklist."+field, fmt.Sprintf("checklist.%s must be a boolean", field))
		}
		vals[i] = b
	}
	return Checklist{Objective: vals[0], Inputs: vals[1], Outputs: vals[2], Constraints: vals[3]}, nil
}
