package strategy

// Param readers tolerate the numeric types that arrive from YAML/JSON
// configuration, where integers often decode as float64.

// IntParam reads an integer parameter, falling back to def when absent or of
// the wrong type.
func IntParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// FloatParam reads a float parameter, falling back to def.
func FloatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// StringParam reads a string parameter, falling back to def.
func StringParam(params map[string]any, key string, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
