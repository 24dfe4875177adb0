package handlers

import "fmt"

// UserError carries the exact reply text for a user-facing command failure
// (bad arguments, missing permission). The router renders Reply in the
// invoking chat and does not log it as a system fault.
type UserError struct {
	Reply string
}

func (e *UserError) Error() string {
	return e.Reply
}

// Usagef builds a UserError from a format string.
func Usagef(format string, args ...any) error {
	return &UserError{Reply: fmt.Sprintf(format, args...)}
}
