/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package planner

import (
	"errors"
	"fmt"

	"github.com/awslabs/operatorpkg/serrors"
)

// ErrorKind classifies why a planner call failed, mirroring the four kinds
// the original planner.c reports through errno (plus a theoretical fifth
// for allocation failure, which no Go code path here actually produces).
type ErrorKind int

const (
	// KindInvalid covers ill-formed arguments: a nil planner, an
	// out-of-window start time, an unknown span id, calling
	// AvailTimeNext with no live iterator.
	KindInvalid ErrorKind = iota + 1
	// KindRange covers numerically out-of-range requests, such as a
	// request that exceeds the resource total.
	KindRange
	// KindNotFound means no schedulable point satisfies an availability
	// query. This is an expected outcome, not a bug.
	KindNotFound
	// KindInternal means an invariant the planner relies on has been
	// violated (e.g. the min-time resource tree's augmentation found an
	// anchor but no matching point). It indicates a defect in the
	// planner itself, never a caller error.
	KindInternal
	// KindOutOfMemory mirrors the original's allocation-failure status.
	// Go has no recoverable allocation-failure convention (the runtime
	// aborts the process instead), so this kind exists for interface
	// parity but is never returned.
	KindOutOfMemory
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalid:
		return "INVALID"
	case KindRange:
		return "RANGE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInternal:
		return "INTERNAL"
	case KindOutOfMemory:
		return "OUT_OF_MEMORY"
	default:
		return "UNKNOWN"
	}
}

// plannerError is a structured error carrying a Kind plus the key/value
// context callers need to diagnose it, built on
// awslabs/operatorpkg/serrors.Error rather than a bare fmt.Errorf chain.
type plannerError struct {
	kind ErrorKind
	err  error
}

func (e *plannerError) Error() string { return e.err.Error() }
func (e *plannerError) Unwrap() error { return e.err }
func (e *plannerError) Kind() ErrorKind { return e.kind }

func newError(kind ErrorKind, msg string, keysAndValues ...any) error {
	return &plannerError{kind: kind, err: serrors.Wrap(errors.New(msg), keysAndValues...)}
}

func newErrorf(kind ErrorKind, keysAndValues []any, format string, args ...any) error {
	return &plannerError{kind: kind, err: serrors.Wrap(fmt.Errorf(format, args...), keysAndValues...)}
}

// Kind returns the ErrorKind carried by err, or 0 if err was not produced by
// this package (including err == nil).
func Kind(err error) ErrorKind {
	var pe *plannerError
	if errors.As(err, &pe) {
		return pe.kind
	}
	return 0
}

// IsInvalid reports whether err is a KindInvalid error.
func IsInvalid(err error) bool { return Kind(err) == KindInvalid }

// IsRange reports whether err is a KindRange error.
func IsRange(err error) bool { return Kind(err) == KindRange }

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return Kind(err) == KindNotFound }

// IsInternal reports whether err is a KindInternal error.
func IsInternal(err error) bool { return Kind(err) == KindInternal }

var errNoHandle = newError(KindInvalid, "planner is nil")
