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
	"github.com/virtbuild/virtbuild/pkg/cmdline"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// envPrefix is prepended to every flag environment key.
const envPrefix = "VIRTBUILD_"

var (
	debug   bool
	nocolor bool
	quiet   bool
	verbose bool
	silent  bool
)

// -d|--debug
var debugFlag = cmdline.Flag{
	ID:           "debugFlag",
	Value:        &debug,
	DefaultValue: false,
	Name:         "debug",
	ShortHand:    "d",
	Usage:        "print debugging information (highest verbosity)",
	EnvKeys:      []string{"DEBUG"},
}

// --nocolor
var noColorFlag = cmdline.Flag{
	ID:           "nocolorFlag",
	Value:        &nocolor,
	DefaultValue: false,
	Name:         "nocolor",
	Usage:        "print without color output (default False)",
	EnvKeys:      []string{"NOCOLOR"},
}

// -s|--silent
var silentFlag = cmdline.Flag{
	ID:           "silentFlag",
	Value:        &silent,
	DefaultValue: false,
	Name:         "silent",
	ShortHand:    "s",
	Usage:        "only print errors",
	EnvKeys:      []string{"SILENT"},
}

// -q|--quiet
var quietFlag = cmdline.Flag{
	ID:           "quietFlag",
	Value:        &quiet,
	DefaultValue: false,
	Name:         "quiet",
	ShortHand:    "q",
	Usage:        "suppress normal output",
	EnvKeys:      []string{"QUIET"},
}

// -v|--verbose
var verboseFlag = cmdline.Flag{
	ID:           "verboseFlag",
	Value:        &verbose,
	DefaultValue: false,
	Name:         "verbose",
	ShortHand:    "v",
	Usage:        "print additional information",
	EnvKeys:      []string{"VERBOSE"},
}

var cmdManager *cmdline.CommandManager

// rootCmd is the virtbuild base command.
var rootCmd = &cobra.Command{
	Use:           docs.VirtbuildUse,
	Short:         docs.VirtbuildShort,
	Long:          docs.VirtbuildLong,
	Example:       docs.VirtbuildExample,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if err := cmdManager.UpdateCmdFlagFromEnv(cmd, envPrefix); err != nil {
			vblog.Fatalf("While processing flag environment variables: %s", err)
		}
		setLogLevel()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// cmdInits collects the per-file command registrations run by Execute.
var cmdInits []func(*cmdline.CommandManager)

func addCmdInit(fn func(*cmdline.CommandManager)) {
	cmdInits = append(cmdInits, fn)
}

func setLogLevel() {
	level := 1 // info
	switch {
	case debug:
		level = 5
	case verbose:
		level = 2
	case quiet:
		level = -1
	case silent:
		level = -3
	}
	vblog.SetLevel(level, !nocolor)
}

func init() {
	cmdManager = cmdline.NewCommandManager(rootCmd)
	cmdManager.RegisterFlagForCmd(&debugFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&noColorFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&silentFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&quietFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&verboseFlag, rootCmd)
}

// ExecuteVirtbuild runs the command tree and exits non-zero on any
// fatal error kind.
func ExecuteVirtbuild() {
	for _, fn := range cmdInits {
		fn(cmdManager)
	}

	if err := rootCmd.Execute(); err != nil {
		vblog.Errorf("%s", err)
		os.Exit(1)
	}
}
