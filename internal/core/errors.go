package core

import (
	"errors"
	"fmt"
	"strings"
)

// PipelineError reports which remote step broke an analysis pipeline.
// Message is the exact string the mobile client shows the user.
type PipelineError struct {
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", strings.TrimSuffix(e.Message, "."), e.Err)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error { return e.Err }

func stepFailure(message string, err error) *PipelineError {
	return &PipelineError{Message: message, Err: err}
}

// UserText renders a pipeline error the way the client renders
// assistant-side failures.
func UserText(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return "❌ " + pe.Message
	}
	return "❌ Unknown error."
}
