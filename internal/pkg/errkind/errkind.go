// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package errkind defines the error kinds the build core surfaces to the
// command line layer. Components wrap one of these sentinels with
// fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is while keeping a human readable cause.
package errkind

import "errors"

var (
	// ErrConfig is a malformed source descriptor, mutually exclusive
	// options, or mismatched source/fingerprint list lengths.
	ErrConfig = errors.New("configuration error")

	// ErrCorruptIndex is any index rule violation: duplicate sections,
	// repeated fields, bad field values, or a same-origin violation.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrTrust is a failed signature verification, checksum mismatch,
	// missing detached signature, or fingerprint mismatch.
	ErrTrust = errors.New("trust failure")

	// ErrFetch is a transport failure: bad HTTP status, network error,
	// or truncated response.
	ErrFetch = errors.New("fetch error")

	// ErrCache is a cache directory or rename failure.
	ErrCache = errors.New("cache error")

	// ErrNoPlan means the planner could not reach the goal. The
	// transition catalog is closed, so this indicates an internal
	// inconsistency rather than bad user input.
	ErrNoPlan = errors.New("no plan found")

	// ErrExec is a non-zero exit from an external tool.
	ErrExec = errors.New("command failed")

	// ErrCustomize is a guest filesystem operation failure.
	ErrCustomize = errors.New("customization failed")
)
