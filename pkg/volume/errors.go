package volume

import (
	"fmt"
	"strings"
)

// StrategyError records one failed attempt in a mount or unmount chain.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e StrategyError) Error() string {
	return e.Strategy + ": " + e.Err.Error()
}

// MountFailedError means every mount strategy was exhausted. Attempts holds
// the per-strategy failures in the order they were tried; none are dropped
// when a later strategy also fails.
type MountFailedError struct {
	Volume   string
	Attempts []StrategyError
}

func (e *MountFailedError) Error() string {
	return fmt.Sprintf("failed to mount %s: %s", e.Volume, joinAttempts(e.Attempts))
}

// UnmountFailedError means every unmount strategy was exhausted and the
// volume must be released manually.
type UnmountFailedError struct {
	Target   string
	Attempts []StrategyError
}

func (e *UnmountFailedError) Error() string {
	return fmt.Sprintf("failed to unmount %s: %s", e.Target, joinAttempts(e.Attempts))
}

func joinAttempts(attempts []StrategyError) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Error())
	}
	return strings.Join(parts, "; ")
}
