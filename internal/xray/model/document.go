package model

// TraceDocument holds the only document field forwarding depends on. The rest of the
// document is never decoded, so fields of any shape pass through untouched.
type TraceDocument struct {
	Inferred interface{} `json:"inferred"`
}

// IsInferred reports whether the inferred field is present and truthy.
// Inferred segments are synthesized by the backend for uninstrumented downstream calls.
func (td TraceDocument) IsInferred() bool {
	return isTruthy(td.Inferred)
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		// objects and arrays, even empty ones
		return true
	}
}
