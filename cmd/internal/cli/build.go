// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"runtime"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/virtbuild/virtbuild/docs"
	"github.com/virtbuild/virtbuild/internal/app/virtbuild"
	"github.com/virtbuild/virtbuild/internal/pkg/guestfs"
	"github.com/virtbuild/virtbuild/pkg/cmdline"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

var (
	buildOutput           string
	buildSize             string
	buildFormat           string
	buildArch             string
	buildSources          []string
	buildFingerprints     []string
	buildNoCheckSignature bool
	buildCacheDir         string
	buildNoCache          bool
	buildNoDelete         bool
	buildSync             bool
)

// -o|--output
var buildOutputFlag = cmdline.Flag{
	ID:           "buildOutputFlag",
	Value:        &buildOutput,
	DefaultValue: "",
	Name:         "output",
	ShortHand:    "o",
	Usage:        "output image path (default <os-version>.img)",
	EnvKeys:      []string{"OUTPUT"},
}

// --size
var buildSizeFlag = cmdline.Flag{
	ID:           "buildSizeFlag",
	Value:        &buildSize,
	DefaultValue: "",
	Name:         "size",
	Usage:        "virtual size of the output image, e.g. 20G",
	EnvKeys:      []string{"SIZE"},
}

// --format
var buildFormatFlag = cmdline.Flag{
	ID:           "buildFormatFlag",
	Value:        &buildFormat,
	DefaultValue: "",
	Name:         "format",
	Usage:        "output disk format: raw or qcow2",
	EnvKeys:      []string{"FORMAT"},
}

// --arch
var buildArchFlag = cmdline.Flag{
	ID:           "buildArchFlag",
	Value:        &buildArch,
	DefaultValue: defaultArch(),
	Name:         "arch",
	Usage:        "template architecture",
	EnvKeys:      []string{"ARCH"},
}

// --source
var buildSourceFlag = cmdline.Flag{
	ID:           "buildSourceFlag",
	Value:        &buildSources,
	DefaultValue: []string(nil),
	Name:         "source",
	Usage:        "additional repository index URI (repeatable, takes priority over configured sources)",
	EnvKeys:      []string{"SOURCE"},
	StringArray:  true,
}

// --fingerprint
var buildFingerprintFlag = cmdline.Flag{
	ID:           "buildFingerprintFlag",
	Value:        &buildFingerprints,
	DefaultValue: []string(nil),
	Name:         "fingerprint",
	Usage:        "key fingerprint for --source (one per source, or a single one for all)",
	EnvKeys:      []string{"FINGERPRINT"},
	StringArray:  true,
}

// --no-check-signature
var buildNoCheckSignatureFlag = cmdline.Flag{
	ID:           "buildNoCheckSignatureFlag",
	Value:        &buildNoCheckSignature,
	DefaultValue: false,
	Name:         "no-check-signature",
	Usage:        "do not verify index signatures",
	EnvKeys:      []string{"NO_CHECK_SIGNATURE"},
}

// --cache
var buildCacheDirFlag = cmdline.Flag{
	ID:           "buildCacheDirFlag",
	Value:        &buildCacheDir,
	DefaultValue: "",
	Name:         "cache",
	Usage:        "template cache directory",
	EnvKeys:      []string{"CACHE"},
}

// --no-cache
var buildNoCacheFlag = cmdline.Flag{
	ID:           "buildNoCacheFlag",
	Value:        &buildNoCache,
	DefaultValue: false,
	Name:         "no-cache",
	Usage:        "do not use or populate the template cache",
	EnvKeys:      []string{"NO_CACHE"},
}

// --no-delete-on-failure
var buildNoDeleteFlag = cmdline.Flag{
	ID:           "buildNoDeleteFlag",
	Value:        &buildNoDelete,
	DefaultValue: false,
	Name:         "no-delete-on-failure",
	Usage:        "keep the partial output file when the build fails",
	EnvKeys:      []string{"NO_DELETE_ON_FAILURE"},
}

// --sync
var buildSyncFlag = cmdline.Flag{
	ID:           "buildSyncFlag",
	Value:        &buildSync,
	DefaultValue: false,
	Name:         "sync",
	Usage:        "fsync the output file after customization",
	EnvKeys:      []string{"SYNC"},
}

// Customization flags share the ordered accumulator in ops.go.
var (
	buildWriteFlag = cmdline.Flag{
		ID:    "buildWriteFlag",
		Value: &opValue{kind: "FILE:CONTENT", parse: parseWriteOp},
		Name:  "write",
		Usage: "write CONTENT to guest FILE (repeatable)",
	}
	buildUploadFlag = cmdline.Flag{
		ID:    "buildUploadFlag",
		Value: &opValue{kind: "FILE:DEST", parse: parseUploadOp},
		Name:  "upload",
		Usage: "upload host FILE to guest DEST, keeping permissions (repeatable)",
	}
	buildEditFlag = cmdline.Flag{
		ID:    "buildEditFlag",
		Value: &opValue{kind: "FILE:EXPR", parse: parseEditOp},
		Name:  "edit",
		Usage: "apply a s/PATTERN/REPLACEMENT/ expression to a guest file (repeatable)",
	}
	buildDeleteFlag = cmdline.Flag{
		ID:    "buildDeleteFlag",
		Value: &opValue{kind: "PATH", parse: parseDeleteOp},
		Name:  "delete",
		Usage: "delete a guest path recursively (repeatable)",
	}
	buildScrubFlag = cmdline.Flag{
		ID:    "buildScrubFlag",
		Value: &opValue{kind: "FILE", parse: parseScrubOp},
		Name:  "scrub",
		Usage: "empty a guest file, keeping it in place (repeatable)",
	}
	buildMkdirFlag = cmdline.Flag{
		ID:    "buildMkdirFlag",
		Value: &opValue{kind: "DIR", parse: parseMkdirOp},
		Name:  "mkdir",
		Usage: "create a guest directory with parents (repeatable)",
	}
	buildRunCommandFlag = cmdline.Flag{
		ID:    "buildRunCommandFlag",
		Value: &opValue{kind: "COMMAND", parse: parseRunCommandOp},
		Name:  "run-command",
		Usage: "run a command inside the guest during the build (repeatable)",
	}
	buildFirstbootCommandFlag = cmdline.Flag{
		ID:    "buildFirstbootCommandFlag",
		Value: &opValue{kind: "COMMAND", parse: parseFirstbootCommandOp},
		Name:  "firstboot-command",
		Usage: "run a command on the first boot of the image (repeatable)",
	}
	buildInstallFlag = cmdline.Flag{
		ID:    "buildInstallFlag",
		Value: &opValue{kind: "PKG,PKG,..", parse: parseInstallOp},
		Name:  "install",
		Usage: "install packages with the guest package manager (repeatable)",
	}
	buildRootPasswordFlag = cmdline.Flag{
		ID:    "buildRootPasswordFlag",
		Value: &opValue{kind: "SELECTOR", parse: parseRootPasswordOp},
		Name:  "root-password",
		Usage: "set the root password: password:WORD, file:FILE or locked",
	}
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(BuildCmd)

		cmdManager.RegisterFlagForCmd(&buildOutputFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildSizeFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildFormatFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildArchFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildSourceFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildFingerprintFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildNoCheckSignatureFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildCacheDirFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildNoCacheFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildNoDeleteFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildSyncFlag, BuildCmd)

		cmdManager.RegisterFlagForCmd(&buildWriteFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildUploadFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildEditFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildDeleteFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildScrubFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildMkdirFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildRunCommandFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildFirstbootCommandFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildInstallFlag, BuildCmd)
		cmdManager.RegisterFlagForCmd(&buildRootPasswordFlag, BuildCmd)
	})
}

// BuildCmd virtbuild build
var BuildCmd = &cobra.Command{
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(1),
	Run:                   buildRun,
	Use:                   docs.BuildUse,
	Short:                 docs.BuildShort,
	Long:                  docs.BuildLong,
	Example:               docs.BuildExample,
}

func buildRun(cmd *cobra.Command, args []string) {
	osVersion := args[0]

	output := buildOutput
	if output == "" {
		output = osVersion + ".img"
	}

	var size int64
	if buildSize != "" {
		s, err := units.RAMInBytes(buildSize)
		if err != nil {
			vblog.Fatalf("Bad --size %q: %s", buildSize, err)
		}
		size = s
	}

	switch buildFormat {
	case "", "raw", "qcow2":
	default:
		vblog.Fatalf("Bad --format %q: expecting raw or qcow2", buildFormat)
	}

	err := virtbuild.Build(cmd.Context(), virtbuild.BuildArgs{
		OSVersion:       osVersion,
		Arch:            buildArch,
		Output:          output,
		Size:            size,
		Format:          buildFormat,
		Sources:         buildSources,
		Fingerprints:    buildFingerprints,
		CheckSignature:  !buildNoCheckSignature,
		CacheDir:        buildCacheDir,
		NoCache:         buildNoCache,
		DeleteOnFailure: !buildNoDelete,
		Sync:            buildSync,
		Ops:             buildOps,
		Launcher:        guestfs.NewGuestfishLauncher(),
	})
	if err != nil {
		vblog.Fatalf("While building %s: %s", osVersion, err)
	}
}

// defaultArch maps the runtime architecture to the names templates are
// published under.
func defaultArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	}
	return runtime.GOARCH
}
