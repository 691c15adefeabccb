// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"github.com/virtbuild/virtbuild/cmd/internal/cli"
	"github.com/virtbuild/virtbuild/pkg/useragent"
)

const version = "1.0.0"

func main() {
	useragent.InitValue("virtbuild", version)

	// In cmd/internal/cli/virtbuild.go
	cli.ExecuteVirtbuild()
}
