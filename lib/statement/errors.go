package statement

import "fmt"

// ParseError is returned if a descriptor is not a valid statement
type ParseError struct {
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %q: %s", e.Text, e.Msg)
}

// PatchError is returned if parameters do not fit a parsed statement
type PatchError struct {
	Msg string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("illegal patch: %s", e.Msg)
}

func patchErrorf(format string, args ...any) error {
	return &PatchError{Msg: fmt.Sprintf(format, args...)}
}
