package tilereplay

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Run and RenderContext. Device errors are
// wrapped with one of them so callers can classify failures with errors.Is.
var (
	// ErrConfig indicates an invalid configuration or unreadable input.
	ErrConfig = errors.New("tilereplay: invalid configuration")

	// ErrSetup indicates the device could not be opened or lacks a
	// required capability.
	ErrSetup = errors.New("tilereplay: device setup failed")

	// ErrResource indicates a failed allocation, copy, register write or
	// launch.
	ErrResource = errors.New("tilereplay: device resource error")

	// ErrTimeout indicates a launch did not complete in time.
	ErrTimeout = errors.New("tilereplay: device timeout")

	// ErrMismatch indicates the output differs from the reference image.
	ErrMismatch = errors.New("tilereplay: output mismatch")
)

// MismatchError reports how many pixels differ from the reference.
type MismatchError struct {
	Reference string
	Count     int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("tilereplay: %d pixels differ from %s", e.Count, e.Reference)
}

// Is reports whether target is ErrMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// maxExitMismatch keeps mismatch exit codes clear of shell-reserved values.
const maxExitMismatch = 125

// ExitCode maps an error returned by Run to a process exit status:
// 0 on success, 2 for configuration errors, the mismatch count (at most
// 125) for reference mismatches and 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var mismatch *MismatchError
	switch {
	case errors.As(err, &mismatch):
		return min(max(mismatch.Count, 1), maxExitMismatch)
	case errors.Is(err, ErrConfig):
		return 2
	default:
		return 1
	}
}
