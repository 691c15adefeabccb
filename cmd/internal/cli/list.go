// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/virtbuild/virtbuild/docs"
	"github.com/virtbuild/virtbuild/internal/app/virtbuild"
	"github.com/virtbuild/virtbuild/pkg/cmdline"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

var (
	listLong   bool
	listJSON   bool
	listHidden bool
)

// --long
var listLongFlag = cmdline.Flag{
	ID:           "listLongFlag",
	Value:        &listLong,
	DefaultValue: false,
	Name:         "long",
	Usage:        "include notes, aliases and sizes",
	EnvKeys:      []string{"LIST_LONG"},
}

// --json
var listJSONFlag = cmdline.Flag{
	ID:           "listJSONFlag",
	Value:        &listJSON,
	DefaultValue: false,
	Name:         "json",
	Usage:        "machine readable output",
	EnvKeys:      []string{"LIST_JSON"},
}

// --hidden
var listHiddenFlag = cmdline.Flag{
	ID:           "listHiddenFlag",
	Value:        &listHidden,
	DefaultValue: false,
	Name:         "hidden",
	Usage:        "include hidden templates",
	EnvKeys:      []string{"LIST_HIDDEN"},
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(ListCmd)

		cmdManager.RegisterFlagForCmd(&listLongFlag, ListCmd)
		cmdManager.RegisterFlagForCmd(&listJSONFlag, ListCmd)
		cmdManager.RegisterFlagForCmd(&listHiddenFlag, ListCmd)
		cmdManager.RegisterFlagForCmd(&buildSourceFlag, ListCmd)
		cmdManager.RegisterFlagForCmd(&buildFingerprintFlag, ListCmd)
		cmdManager.RegisterFlagForCmd(&buildNoCheckSignatureFlag, ListCmd)
	})
}

// ListCmd virtbuild list
var ListCmd = &cobra.Command{
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(0),
	Run:                   listRun,
	Use:                   docs.ListUse,
	Short:                 docs.ListShort,
	Long:                  docs.ListLong,
	Example:               docs.ListExample,
}

func listRun(cmd *cobra.Command, _ []string) {
	err := virtbuild.List(cmd.Context(), os.Stdout, virtbuild.ListArgs{
		Sources:        buildSources,
		Fingerprints:   buildFingerprints,
		CheckSignature: !buildNoCheckSignature,
		Long:           listLong,
		JSON:           listJSON,
		Hidden:         listHidden,
	})
	if err != nil {
		vblog.Fatalf("While listing templates: %s", err)
	}
}
