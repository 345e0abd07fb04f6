package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoChange means the proposed status equals the current one. Callers
// surface it as an informational notice, not a failure, and skip persistence.
var ErrNoChange = errors.New("no changes detected")

// ErrInvalidStatus means the proposed code is not in the type's workflow.
var ErrInvalidStatus = errors.New("status not in workflow")

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Evaluate decides a proposed transition. Comparison is case-insensitive
// because current values can arrive in mixed case from imported data. Any
// jump between two distinct members of the type's list is accepted; the
// lists carry no forward-only ordering.
func (r Registry) Evaluate(assignmentType, current, proposed string) error {
	if equalFold(current, proposed) {
		return ErrNoChange
	}
	if !r.Valid(assignmentType, proposed) {
		return fmt.Errorf("%w: %q is not valid for type %s", ErrInvalidStatus, proposed, assignmentType)
	}
	return nil
}
