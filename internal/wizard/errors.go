package wizard

import (
	"errors"
	"fmt"
)

// User-facing messages. They are shown verbatim in the error view.
const (
	MsgEmptyTopic    = "Please enter a topic."
	MsgModulesFailed = "Failed to generate learning modules. Please try again."
	MsgContentFailed = "Failed to generate module content. Please try again."
	msgUnknownGrade  = "Please choose a grade level from the list."
)

// Generation operations, used in GenerationError.Op.
const (
	OpGenerateModules = "generate_modules"
	OpGenerateContent = "generate_content"
)

var (
	// ErrBusy is returned for any transition attempted while a generation
	// request is in flight.
	ErrBusy = errors.New("a generation request is already in progress")
	// ErrResetRequired is returned while the error view is showing; only
	// ResetOnError is allowed then.
	ErrResetRequired = errors.New("an error is pending; reset to continue")
	// ErrInvalidTransition is returned when an action does not apply to the
	// current step.
	ErrInvalidTransition = errors.New("action not available in the current step")
	// ErrNoSuchModule is returned when selecting a module index that is not
	// in the generated list.
	ErrNoSuchModule = errors.New("no module at that position")
)

// ValidationError reports bad user input. It never involves the generator.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// GenerationError wraps a generator failure. Message is the static text shown
// to the user; Err keeps the cause for logs.
type GenerationError struct {
	Op      string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
