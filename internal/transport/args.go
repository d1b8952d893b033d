package transport

// Inbound OSC arguments arrive as interface values whose concrete types
// depend on the sender's type tags. scsynth is not consistent about int32
// vs float32, so every consumer coerces defensively instead of asserting.

// ToFloat64 coerces a numeric OSC argument.
func ToFloat64(arg interface{}) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// ToInt64 coerces an integral OSC argument, accepting whole floats.
func ToInt64(arg interface{}) (int64, bool) {
	switch v := arg.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// ToString coerces a string OSC argument; nil becomes the empty string, the
// convention used by the eval result channel.
func ToString(arg interface{}) (string, bool) {
	switch v := arg.(type) {
	case string:
		return v, true
	case nil:
		return "", true
	default:
		return "", false
	}
}
