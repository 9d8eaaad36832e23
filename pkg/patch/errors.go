package patch

import (
	"fmt"
	"strings"
	"time"
)

// LockTimeoutError means exclusive access to the target file could not be
// obtained within the configured timeout.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire lock on %s within %s", e.Path, e.Timeout)
}

// DecodeError means the target file is not valid property-list content.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %s", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StructuralError means a region of the tree the engine must not silently
// repair has the wrong shape.
type StructuralError struct {
	Path string
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("unexpected structure in %s: %s", e.Path, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// VerificationError means the post-write readback of the committed file
// does not contain the records that were just appended.
type VerificationError struct {
	Path    string
	Missing []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification of %s failed, missing: %s", e.Path, strings.Join(e.Missing, ", "))
}
