// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package customize mounts the produced image through the guest-fs API
// and applies the user's customization operations in command-line
// order.
package customize

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/guestfs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// Op is one customization operation. Operations apply strictly in the
// order the user gave them.
type Op interface {
	apply(ctx context.Context, g guestfs.Guest, opts *Options) error
	String() string
}

// Options configures a customization run.
type Options struct {
	// InstallCommand produces the guest command line installing the
	// given packages. The dispatch over the guest's package manager
	// is an external collaborator.
	InstallCommand func(pkgs []string) (string, error)
	// InstallFirstboot installs a script to run on first boot. The
	// script layout inside the guest is an external collaborator.
	InstallFirstboot func(ctx context.Context, g guestfs.Guest, script string) error
	// Sync fsyncs the output file after the appliance shut down.
	Sync bool
}

// Customizer applies operations to one image.
type Customizer struct {
	launcher guestfs.Launcher
	opts     Options
}

// New returns a customizer using the given appliance launcher.
func New(launcher guestfs.Launcher, opts Options) *Customizer {
	return &Customizer{launcher: launcher, opts: opts}
}

// Run boots the appliance for image, mounts its filesystems and applies
// ops in order. The appliance is shut down on every return path.
func (c *Customizer) Run(ctx context.Context, image, format string, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	g, err := c.launcher.Launch(ctx, image, format)
	if err != nil {
		return fmt.Errorf("%w: could not launch appliance: %v", errkind.ErrCustomize, err)
	}
	defer g.Shutdown(ctx)

	if err := c.mountAll(ctx, g); err != nil {
		return err
	}

	// Writes from the host side must not be relabeled by the guest
	// policy while we modify files.
	if err := g.SELinuxRelabel(ctx, false); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}

	for i, op := range ops {
		vblog.Infof("[%d/%d] %s", i+1, len(ops), op)
		if err := op.apply(ctx, g, &c.opts); err != nil {
			return fmt.Errorf("%w: %s: %v", errkind.ErrCustomize, op, err)
		}
	}

	if err := g.SELinuxRelabel(ctx, true); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}

	if err := g.Sync(ctx); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}
	if err := g.UmountAll(ctx); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}
	if err := g.Shutdown(ctx); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}

	if c.opts.Sync {
		if err := fsyncFile(image); err != nil {
			return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
		}
	}
	return nil
}

// mountAll inspects the image, rejects multi-boot layouts and mounts
// the filesystems by increasing mount point length so parents mount
// before children.
func (c *Customizer) mountAll(ctx context.Context, g guestfs.Guest) error {
	roots, err := g.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}
	switch len(roots) {
	case 0:
		return fmt.Errorf("%w: no operating system found on the image", errkind.ErrCustomize)
	case 1:
	default:
		return fmt.Errorf("%w: multi-boot image with %d operating systems is not supported", errkind.ErrCustomize, len(roots))
	}

	mps, err := g.Mountpoints(ctx, roots[0])
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrCustomize, err)
	}
	sort.SliceStable(mps, func(i, j int) bool {
		return len(mps[i].Path) < len(mps[j].Path)
	})

	for _, mp := range mps {
		if err := g.Mount(ctx, mp.Device, mp.Path); err != nil {
			return fmt.Errorf("%w: mounting %s on %s: %v", errkind.ErrCustomize, mp.Device, mp.Path, err)
		}
	}
	return nil
}

func fsyncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
