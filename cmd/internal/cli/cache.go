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

var cacheDir string

// --cache
var cacheDirFlag = cmdline.Flag{
	ID:           "cacheDirFlag",
	Value:        &cacheDir,
	DefaultValue: "",
	Name:         "cache",
	Usage:        "template cache directory",
	EnvKeys:      []string{"CACHE"},
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(CacheCmd)
		cmdManager.RegisterSubCmd(CacheCmd, CacheCleanCmd)
		cmdManager.RegisterSubCmd(CacheCmd, CacheListCmd)

		cmdManager.RegisterFlagForCmd(&cacheDirFlag, CacheCleanCmd)
		cmdManager.RegisterFlagForCmd(&cacheDirFlag, CacheListCmd)
	})
}

// CacheCmd virtbuild cache
var CacheCmd = &cobra.Command{
	Use:     docs.CacheUse,
	Short:   docs.CacheShort,
	Long:    docs.CacheLong,
	Example: docs.CacheExample,
}

// CacheCleanCmd virtbuild cache clean
var CacheCleanCmd = &cobra.Command{
	Args: cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, _ []string) {
		if err := virtbuild.CacheClean(cacheDir); err != nil {
			vblog.Fatalf("While cleaning cache: %s", err)
		}
	},

	Use:     docs.CacheCleanUse,
	Short:   docs.CacheCleanShort,
	Long:    docs.CacheCleanLong,
	Example: docs.CacheCleanExample,
}

// CacheListCmd virtbuild cache list
var CacheListCmd = &cobra.Command{
	Args: cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, _ []string) {
		if err := virtbuild.CacheList(os.Stdout, cacheDir); err != nil {
			vblog.Fatalf("While listing cache: %s", err)
		}
	},

	Use:     docs.CacheListUse,
	Short:   docs.CacheListShort,
	Long:    docs.CacheListLong,
	Example: docs.CacheListExample,
}
