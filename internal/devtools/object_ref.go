package devtools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BacktraceHandle is the handle component that selects the variables of a scope
// (identified by the frame and scope indices) instead of a heap object.
const BacktraceHandle = "backtrace"

var ErrInvalidObjectRef = errors.New("invalid object reference")

// ObjectRef identifies an engine value the front end may ask about later.
// On the wire it is a single string "frame:scope:handle".
type ObjectRef struct {
	Frame  int
	Scope  int
	Handle string
}

func NewHandleRef(handle int) ObjectRef {
	return ObjectRef{Handle: strconv.Itoa(handle)}
}

func NewScopeRef(frame, scope int) ObjectRef {
	return ObjectRef{Frame: frame, Scope: scope, Handle: BacktraceHandle}
}

func (r ObjectRef) Encode() string {
	return fmt.Sprintf("%d:%d:%s", r.Frame, r.Scope, r.Handle)
}

func (r ObjectRef) String() string {
	return r.Encode()
}

func (r ObjectRef) IsScope() bool {
	return r.Handle == BacktraceHandle
}

// HandleID returns the numeric engine handle the reference points to.
func (r ObjectRef) HandleID() (int, error) {
	if r.IsScope() {
		return 0, fmt.Errorf("%w: %s refers to scope variables, not to a heap object", ErrInvalidObjectRef, r.Encode())
	}
	h, err := strconv.Atoi(r.Handle)
	if err != nil {
		return 0, fmt.Errorf("%w: handle '%s' is not a number", ErrInvalidObjectRef, r.Handle)
	}
	return h, nil
}

func ParseObjectRef(s string) (ObjectRef, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return ObjectRef{}, fmt.Errorf("%w: '%s' does not have the frame:scope:handle form", ErrInvalidObjectRef, s)
	}

	frame, frameErr := strconv.Atoi(parts[0])
	if frameErr != nil {
		return ObjectRef{}, fmt.Errorf("%w: frame index '%s' is not a number", ErrInvalidObjectRef, parts[0])
	}
	scope, scopeErr := strconv.Atoi(parts[1])
	if scopeErr != nil {
		return ObjectRef{}, fmt.Errorf("%w: scope index '%s' is not a number", ErrInvalidObjectRef, parts[1])
	}
	if parts[2] == "" {
		return ObjectRef{}, fmt.Errorf("%w: '%s' has an empty handle", ErrInvalidObjectRef, s)
	}

	return ObjectRef{Frame: frame, Scope: scope, Handle: parts[2]}, nil
}
