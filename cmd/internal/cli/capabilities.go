// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/virtbuild/virtbuild/docs"
	"github.com/virtbuild/virtbuild/internal/app/virtbuild"
	"github.com/virtbuild/virtbuild/pkg/cmdline"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(CapabilitiesCmd)
	})
}

// CapabilitiesCmd virtbuild capabilities
var CapabilitiesCmd = &cobra.Command{
	Args: cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, _ []string) {
		for _, c := range virtbuild.Capabilities() {
			fmt.Println(c)
		}
	},

	Use:     docs.CapabilitiesUse,
	Short:   docs.CapabilitiesShort,
	Long:    docs.CapabilitiesLong,
	Example: docs.CapabilitiesExample,
}
