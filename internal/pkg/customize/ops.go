// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package customize

import (
	"context"
	"fmt"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/guestfs"
)

// WriteOp creates a guest file with literal content.
type WriteOp struct {
	Path    string
	Content []byte
}

func (o WriteOp) String() string { return "write " + o.Path }

func (o WriteOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	return g.Write(ctx, o.Path, o.Content)
}

// UploadOp copies a host file into the guest, carrying permissions
// over.
type UploadOp struct {
	Src  string
	Dest string
}

func (o UploadOp) String() string { return fmt.Sprintf("upload %s to %s", o.Src, o.Dest) }

func (o UploadOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	return g.Upload(ctx, o.Src, o.Dest)
}

// EditOp rewrites a guest file through a host-side transformation.
type EditOp struct {
	Path string
	Edit func([]byte) ([]byte, error)
	// Desc is the user's expression, for display only.
	Desc string
}

func (o EditOp) String() string { return "edit " + o.Path }

func (o EditOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	tmp, err := hostTempFile()
	if err != nil {
		return err
	}
	defer tmp.cleanup()

	if err := g.Download(ctx, o.Path, tmp.path); err != nil {
		return err
	}
	data, err := tmp.read()
	if err != nil {
		return err
	}
	edited, err := o.Edit(data)
	if err != nil {
		return err
	}
	return g.Write(ctx, o.Path, edited)
}

// DeleteOp removes a guest path recursively.
type DeleteOp struct {
	Path string
}

func (o DeleteOp) String() string { return "delete " + o.Path }

func (o DeleteOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	return g.Rm(ctx, o.Path)
}

// ScrubOp empties a guest file while keeping it in place, for log files
// that must exist but carry no build-time content.
type ScrubOp struct {
	Path string
}

func (o ScrubOp) String() string { return "scrub " + o.Path }

func (o ScrubOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	return g.Truncate(ctx, o.Path)
}

// MkdirOp creates a guest directory with parents.
type MkdirOp struct {
	Path string
}

func (o MkdirOp) String() string { return "mkdir " + o.Path }

func (o MkdirOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	return g.Mkdir(ctx, o.Path)
}

// RunOp executes a command line inside the guest during the build.
type RunOp struct {
	Command string
}

func (o RunOp) String() string { return "run command " + o.Command }

func (o RunOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	out, err := g.Sh(ctx, o.Command)
	if out != "" {
		fmt.Print(out)
	}
	return err
}

// FirstbootOp installs a script executed on the first boot of the
// built image. The installation layout is delegated to the configured
// collaborator.
type FirstbootOp struct {
	Script string
}

func (o FirstbootOp) String() string { return "install firstboot script" }

func (o FirstbootOp) apply(ctx context.Context, g guestfs.Guest, opts *Options) error {
	if opts.InstallFirstboot == nil {
		return fmt.Errorf("firstboot scripts are not supported by this build")
	}
	return opts.InstallFirstboot(ctx, g, o.Script)
}

// InstallOp installs packages with the guest's package manager. The
// command line dispatch is delegated to the configured collaborator.
type InstallOp struct {
	Packages []string
}

func (o InstallOp) String() string { return "install " + strings.Join(o.Packages, ", ") }

func (o InstallOp) apply(ctx context.Context, g guestfs.Guest, opts *Options) error {
	if opts.InstallCommand == nil {
		return fmt.Errorf("package installation is not supported by this build")
	}
	cmd, err := opts.InstallCommand(o.Packages)
	if err != nil {
		return err
	}
	out, err := g.Sh(ctx, cmd)
	if out != "" {
		fmt.Print(out)
	}
	return err
}

// RootPasswordOp sets or locks the root password.
type RootPasswordOp struct {
	// Password is the plain text password, empty when locking.
	Password string
	// Locked disables password logins for root.
	Locked bool
}

func (o RootPasswordOp) String() string { return "set root password" }

func (o RootPasswordOp) apply(ctx context.Context, g guestfs.Guest, _ *Options) error {
	return g.SetPassword(ctx, "root", o.Password, o.Locked)
}
