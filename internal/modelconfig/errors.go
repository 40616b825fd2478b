package modelconfig

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("modelconfig: validation failed")
	// ErrCommandNotFound matches every CommandNotFoundError.
	ErrCommandNotFound = errors.New("modelconfig: command not found")
)

// ValidationError reports a run file that parsed but is not usable.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CommandNotFoundError reports a dispatch of a command missing from the
// run file's commands table.
type CommandNotFoundError struct {
	Command   string
	Available []string
}

func (e *CommandNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("command %q not found: model configuration defines no commands", e.Command)
	}
	return fmt.Sprintf("command %q not found (available: %s)", e.Command, strings.Join(e.Available, ", "))
}

func (e *CommandNotFoundError) Is(target error) bool {
	return target == ErrCommandNotFound
}
