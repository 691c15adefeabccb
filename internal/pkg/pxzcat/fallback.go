// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package pxzcat

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/virtbuild/virtbuild/internal/pkg/util/bin"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// DecompressExternal spawns the external xzcat with stdout redirected
// to the output file. It handles filter chains the in-process decoder
// does not.
func DecompressExternal(input, output string) error {
	xzcat, err := bin.FindBin("xzcat")
	if err != nil {
		return err
	}

	out, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	cmd := exec.Command(xzcat, input)
	cmd.Stdout = out
	cmd.Stderr = vblog.Writer()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xzcat %s: %v", input, err)
	}
	return out.Close()
}

// Run decompresses input to output in-process, falling back to the
// external xzcat for filter chains the block decoder cannot handle.
func Run(input, output string) error {
	err := Decompress(input, output)
	if errors.Is(err, ErrUnsupported) {
		vblog.Verbosef("Falling back to external xzcat: %v", err)
		return DecompressExternal(input, output)
	}
	return err
}
