// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package vblog implements the leveled stderr logger used by all virtbuild
// Go code.
package vblog

type messageLevel int

// Log levels. Negative levels silence progressively more output, which is
// how --quiet and --silent are implemented.
const (
	FatalLevel   messageLevel = iota - 4 // FatalLevel   : -4
	ErrorLevel                           // ErrorLevel   : -3
	WarnLevel                            // WarnLevel    : -2
	LogLevel                             // LogLevel     : -1
	_                                    // Unused level : 0
	InfoLevel                            // InfoLevel    : 1
	VerboseLevel                         // VerboseLevel : 2
	_                                    // Unused level : 3
	_                                    // Unused level : 4
	DebugLevel                           // DebugLevel   : 5
)

func (l messageLevel) String() string {
	str, ok := messageLabels[l]
	if !ok {
		str = "????"
	}
	return str
}

var messageLabels = map[messageLevel]string{
	FatalLevel:   "FATAL",
	ErrorLevel:   "ERROR",
	WarnLevel:    "WARNING",
	LogLevel:     "LOG",
	InfoLevel:    "INFO",
	VerboseLevel: "VERBOSE",
	DebugLevel:   "DEBUG",
}
