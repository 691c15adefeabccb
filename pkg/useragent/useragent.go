// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package useragent holds the HTTP user agent sent with repository and
// template requests.
package useragent

import (
	"fmt"
	"runtime"
	"strings"
)

var value = "Virtbuild (unknown)"

// Value returns the virtbuild user agent.
//
// For example, "Virtbuild/1.0.0 (linux amd64) Go/1.18.1".
func Value() string {
	return value
}

// InitValue sets the value returned by Value for this process.
func InitValue(name, version string) {
	value = fmt.Sprintf("%v/%v (%v %v) %v",
		strings.Title(name),
		strings.Split(version, "-")[0],
		runtime.GOOS,
		runtime.GOARCH,
		goVersion())
}

func goVersion() string {
	version := strings.TrimPrefix(runtime.Version(), "go")
	return fmt.Sprintf("Go/%v", version)
}
