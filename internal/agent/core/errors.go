package core

import (
	"errors"
	"fmt"
)

// Pipeline stages, as carried by StageError.
const (
	StagePlanning  = "planning"
	StageSearching = "searching"
	StageDrafting  = "drafting"
	StageVerifying = "verifying"
	StageRevising  = "revising"
)

// StageError is a fatal pipeline error. It names the stage that failed and
// wraps the underlying cause. Search-item and verification failures are
// absorbed by their stages and never surface as StageErrors.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage reports which stage a pipeline error came from, if any.
func FailedStage(err error) (string, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
