package types

import (
	"errors"
	"fmt"
	"strings"
)

// Entity kinds used in NotFoundError messages.
const (
	KindWorkspace = "workspace"
	KindItemType  = "item type"
	KindField     = "field"
	KindOption    = "option"
	KindRole      = "role"
	KindUser      = "user"
	KindItem      = "work item"
)

// Resolution and validation errors.
var (
	ErrNoWorkspaces    = errors.New("no workspaces visible to this token")
	ErrNothingToUpdate = errors.New("no resolvable fields to update")
	ErrEmptyIdentifier = errors.New("identifier must not be empty")
)

// NotFoundError reports a name that could not be resolved to a key. It
// always carries remediation detail: the alternatives that do exist, and,
// when fuzzy matching was refused, the ambiguous candidates.
type NotFoundError struct {
	Kind         string
	Name         string
	Alternatives []string
	Candidates   []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	if len(e.Candidates) > 1 {
		msg += fmt.Sprintf(" (ambiguous between: %s)", strings.Join(e.Candidates, ", "))
	}
	if len(e.Alternatives) > 0 {
		msg += fmt.Sprintf("; available: %s", strings.Join(e.Alternatives, ", "))
	}
	return msg
}

// IsNotFound reports whether err is a resolution failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError is a field-scoped input error; it is never silently
// coerced into a write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// RemoteError is an application-level failure embedded in an otherwise
// successful transport response (non-zero service code), or a terminal HTTP
// error. Message is flattened from the remote's nested error detail.
type RemoteError struct {
	Code       int
	HTTPStatus int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote http %d: %s", e.HTTPStatus, e.Message)
}

// RateLimited reports whether the error is a rate-limit response.
func (e *RemoteError) RateLimited() bool { return e.HTTPStatus == 429 }

// IsRateLimited reports whether err is shaped like a rate-limit failure.
// Besides the typed check it recognizes flattened messages that carry the
// status through string form, matching what the remote actually sends.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) && re.RateLimited() {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "429") && strings.Contains(s, "Too Many Requests")
}

// MaskKey shortens an opaque identifier for user-visible messages so full
// keys never leak into output or logs.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:4] + "…" + key[len(key)-4:]
}
