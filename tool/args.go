package tool

import (
	"fmt"
	"strconv"
	"strings"
)

// ParamType is the declared type of a tool argument.
type ParamType string

const (
	TypeString ParamType = "str"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
)

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool:
		return true
	}
	return false
}

// Param declares one tool argument. A param with HasDefault set is optional.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	HasDefault  bool
	Default     any
}

// Required declares a mandatory argument.
func Required(name string, typ ParamType, description string) Param {
	return Param{Name: name, Type: typ, Description: description}
}

// Optional declares an argument with a default value.
func Optional(name string, typ ParamType, def any, description string) Param {
	return Param{Name: name, Type: typ, Description: description, HasDefault: true, Default: def}
}

// Args holds coerced argument values keyed by parameter name.
type Args map[string]any

// String returns a string argument or "".
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an int argument or 0.
func (a Args) Int(name string) int {
	i, _ := a[name].(int)
	return i
}

// Float returns a float argument or 0.
func (a Args) Float(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

// Bool returns a bool argument or false.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// SplitArgs splits "key=value,key=value" into raw pairs. Keys and values are
// trimmed. A segment without "=" continues the previous value, so values may
// contain commas as long as the following text has no "=".
func SplitArgs(raw string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out
	}
	var last string
	for _, seg := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			if last != "" {
				out[last] += "," + seg
			}
			continue
		}
		last = strings.TrimSpace(key)
		out[last] = value
	}
	for k, v := range out {
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// ParseArgs splits raw and coerces every declared parameter. Unknown keys are
// ignored. A missing parameter without default is a *ValidationError.
func ParseArgs(raw string, params []Param) (Args, error) {
	pairs := SplitArgs(raw)
	args := make(Args, len(params))
	for _, p := range params {
		v, ok := pairs[p.Name]
		if !ok {
			if !p.HasDefault {
				return nil, &ValidationError{Field: p.Name, Message: "Missing required argument: " + p.Name}
			}
			args[p.Name] = p.Default
			continue
		}
		cv, err := coerce(v, p.Type)
		if err != nil {
			return nil, &ValidationError{Field: p.Name, Value: v, Message: err.Error()}
		}
		args[p.Name] = cv
	}
	return args, nil
}

func coerce(v string, t ParamType) (any, error) {
	switch t {
	case TypeBool:
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert %q to boolean", v)
	case TypeInt:
		i, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to int", v)
		}
		return i, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	default:
		return v, nil
	}
}
