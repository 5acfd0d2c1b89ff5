package o11y

import (
	"errors"
)

// errWarning sits at the bottom of every warning's chain.
var errWarning = errors.New("")

// warning is an expected failure, such as an empty result, that spans record without
// marking the operation as errored.
type warning struct {
	msg string
}

func (w *warning) Error() string { return w.msg }

func (w *warning) Unwrap() error { return errWarning }

// NewWarning returns a distinct warning. Two warnings are never equal under errors.Is.
func NewWarning(msg string) error {
	return &warning{msg: msg}
}

// IsWarning reports whether any error in err's chain is a warning.
func IsWarning(err error) bool {
	return errors.Is(err, errWarning)
}

// IsWarningNoUnwrap reports whether err is the warning sentinel itself. It lets an error's Is
// method answer IsWarning without unwrapping.
func IsWarningNoUnwrap(err error) bool {
	return err == errWarning //nolint:errorlint
}
