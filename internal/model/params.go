package model

import "fmt"

// ParamKind discriminates the value types accepted by synth parameters.
type ParamKind int

const (
	ParamFloat ParamKind = iota
	ParamInt
	ParamBool
	ParamString
)

// ParamValue is a tagged synth parameter value, validated once at the API
// boundary instead of type-branching at every send site.
type ParamValue struct {
	kind ParamKind
	f    float64
	i    int64
	b    bool
	s    string
}

func Float(v float64) ParamValue { return ParamValue{kind: ParamFloat, f: v} }
func Int(v int64) ParamValue     { return ParamValue{kind: ParamInt, i: v} }
func Bool(v bool) ParamValue     { return ParamValue{kind: ParamBool, b: v} }
func String(v string) ParamValue { return ParamValue{kind: ParamString, s: v} }

func (v ParamValue) Kind() ParamKind { return v.kind }

// OSCArg converts the value to the representation scsynth expects on the
// wire: numbers as float32, booleans as 0/1 int32, strings verbatim.
func (v ParamValue) OSCArg() interface{} {
	switch v.kind {
	case ParamFloat:
		return float32(v.f)
	case ParamInt:
		return float32(v.i)
	case ParamBool:
		if v.b {
			return int32(1)
		}
		return int32(0)
	default:
		return v.s
	}
}

func (v ParamValue) String() string {
	switch v.kind {
	case ParamFloat:
		return fmt.Sprintf("%g", v.f)
	case ParamInt:
		return fmt.Sprintf("%d", v.i)
	case ParamBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return v.s
	}
}

// Params maps synth parameter names to values.
type Params map[string]ParamValue

// ParamFromAny converts a dynamically typed value (e.g. decoded JSON) into a
// ParamValue, rejecting unsupported types with an error naming the key.
func ParamFromAny(key string, value interface{}) (ParamValue, error) {
	switch v := value.(type) {
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	default:
		return ParamValue{}, fmt.Errorf("parameter %q has unsupported type %T (use bool, int, float, or string)", key, value)
	}
}

// Clone returns a shallow copy so sweeps can overlay values without
// mutating the caller's map.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}
