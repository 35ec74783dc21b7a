package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyName          = errors.New("invalid stage name")
	ErrDuplicateName      = errors.New("duplicate stage name")
	ErrOptionTypeMismatch = errors.New("option type mismatch")
	ErrUnresolvedInput    = errors.New("unresolved input")
)

// ValidationError identifies the stage, option or descriptor which made a
// workflow invalid. It unwraps to one of the sentinel errors above.
type ValidationError struct {
	Kind       error
	Stage      string
	Option     string
	Descriptor string
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrDuplicateName):
		return fmt.Sprintf("name %s is used twice", e.Stage)
	case errors.Is(e.Kind, ErrOptionTypeMismatch):
		return fmt.Sprintf("mismatch between declared option type and default value type for %s in stage %s",
			e.Option, e.Stage)
	case errors.Is(e.Kind, ErrUnresolvedInput):
		return fmt.Sprintf("no stage produces %s required by %s", e.Descriptor, e.Stage)
	default:
		return e.Kind.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}
