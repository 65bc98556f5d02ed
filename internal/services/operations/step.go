package operations

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrUnknownAction is returned when a step request names no known action
var ErrUnknownAction = errors.New("unknown step action")

// Step is one request of the single-endpoint flow: either StepStart or StepPoll
type Step interface {
	isStep()
}

// StepStart asks to start kind on target
type StepStart struct {
	Kind   Kind
	Target string
}

// StepPoll asks for progress of the operation on target since Cursor.
// JobID, when set, ties Cursor to the job that issued it.
type StepPoll struct {
	Kind   Kind
	Target string
	JobID  string
	Cursor uint64
}

func (StepStart) isStep() {}
func (StepPoll) isStep()  {}

// ParseStep reads action, kind, target, job_id and cursor query parameters
func ParseStep(values url.Values) (Step, error) {
	kind, err := ParseKind(values.Get("kind"))
	if err != nil {
		return nil, err
	}
	target := values.Get("target")

	switch action := values.Get("action"); action {
	case "start":
		return StepStart{Kind: kind, Target: target}, nil
	case "poll":
		var cursor uint64
		if raw := values.Get("cursor"); raw != "" {
			cursor, err = strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid cursor %q: %w", raw, err)
			}
		}
		return StepPoll{Kind: kind, Target: target, JobID: values.Get("job_id"), Cursor: cursor}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}
