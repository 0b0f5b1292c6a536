package timeline

import "fmt"

// ValidationError rejects an operation at the boundary: wrong file type,
// oversized file, or invalid trim bounds. It is always recoverable and its
// message is safe to show to the user.
type ValidationError struct {
	Constraint string // "type", "size" or "trim"
	Message    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func errWrongType(name, contentType string) *ValidationError {
	return &ValidationError{
		Constraint: "type",
		Message:    fmt.Sprintf("%s is not an MP4 video (got %s); only MP4 files are accepted", name, contentType),
	}
}

func errTooLarge(name string, size, limit int64) *ValidationError {
	return &ValidationError{
		Constraint: "size",
		Message:    fmt.Sprintf("%s is %d bytes; the limit is %d bytes (50 MB)", name, size, limit),
	}
}

func errBadTrim(start, end, duration float64) *ValidationError {
	return &ValidationError{
		Constraint: "trim",
		Message:    fmt.Sprintf("invalid trim bounds [%.3f, %.3f] for a %.3fs clip", start, end, duration),
	}
}
