// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package bin provides access to external binaries
package bin

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// FindBin returns the path to the named binary, or an error if it is not
// found.
func FindBin(name string) (path string, err error) {
	switch name {
	// Basic system executables that we assume are always on PATH
	case "cp", "mv", "curl":
		return findOnPath(name)
	// Image manipulation executables that we assume are on PATH but
	// may be overridden through the environment
	case "qemu-img", "virt-resize", "xzcat", "guestfish":
		return findFromEnvOrPath(name)
	}
	return "", fmt.Errorf("unknown executable name %q", name)
}

// findOnPath performs a normal PATH search for the named executable,
// returning its full path.
func findOnPath(name string) (path string, err error) {
	path, err = exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "while searching for %q", name)
	}
	vblog.Debugf("Found %q at %q", name, path)
	return path, nil
}

// findFromEnvOrPath retrieves the path to an executable from a
// VIRTBUILD_<NAME>_PATH environment variable, or searches PATH if not
// set there.
func findFromEnvOrPath(name string) (path string, err error) {
	envKey := "VIRTBUILD_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name)) + "_PATH"

	path = os.Getenv(envKey)
	if path == "" {
		return findOnPath(name)
	}

	vblog.Debugf("Using %q at %q (from %s)", name, path, envKey)

	// Use lookPath with the absolute path to confirm it is accessible
	// and executable
	return exec.LookPath(path)
}
