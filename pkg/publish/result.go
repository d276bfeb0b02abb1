package publish

import (
	"fmt"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
)

// Severity indicates whether an issue blocks publishing.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	CodeEmptyFlow         = "EMPTY_FLOW"
	CodeTooManyNodes      = "TOO_MANY_NODES"
	CodeNoStart           = "NO_START_NODE"
	CodeMultipleStarts    = "MULTIPLE_START_NODES"
	CodeStartHasIncoming  = "START_HAS_INCOMING"
	CodeNoEnd             = "NO_END_NODE"
	CodeEndHasOutgoing    = "END_HAS_OUTGOING"
	CodeIsolatedNode      = "ISOLATED_NODE"
	CodeDuplicateEdge     = "DUPLICATE_CONNECTION"
	CodeEmptyCondition    = "EMPTY_CONDITION"
	CodeInvalidCondition  = "INVALID_CONDITION"
	CodeUnreachable       = "UNREACHABLE_NODE"
	CodeCycle             = "CYCLE_DEPENDENCY"
	CodeIncompleteBranch  = "INCOMPLETE_BRANCH"
	CodeInvalidBranch     = "INVALID_BRANCH"
	CodeTerminateFailed   = "END_NODE_GENERATION_FAILED"
	CodeLayoutFailed      = "LAYOUT_FAILED"
	CodeCancelled         = "CANCELLED"
	CodePublishInProgress = "PUBLISH_IN_PROGRESS"
	CodeAutoGeneratedEnds = "END_NODES_GENERATED"
)

// Issue is a single validation problem with location context.
type Issue struct {
	Path     string   `json:"path"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Path, i.Message)
}

// Result aggregates validation issues.
type Result struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Valid reports whether there are no errors. Warnings are acceptable.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *Result) AddError(path, code, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{
		Path: path, Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity issue.
func (r *Result) AddWarning(path, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{
		Path: path, Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning,
	})
}

// Merge combines another Result into this one.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Has reports whether an issue with the given code was recorded.
func (r *Result) Has(code string) bool {
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Code == code {
				return true
			}
		}
	}
	return false
}

// Err converts the result to an error, or nil if it is valid. Cycle issues
// map to CYCLE_ERROR, everything else to INVALID_INPUT.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	code := ferrors.ErrCodeInvalidInput
	for _, i := range r.Errors {
		if i.Code == CodeCycle {
			code = ferrors.ErrCodeCycle
			break
		}
	}
	if len(r.Errors) == 1 {
		return ferrors.New(code, "%s", r.Errors[0].Message)
	}
	return ferrors.New(code, "publish blocked by %d errors", len(r.Errors))
}

func nodePath(id string) string { return "nodes." + id }

func edgePath(id string) string { return "edges." + id }
