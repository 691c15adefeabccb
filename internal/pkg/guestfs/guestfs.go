// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package guestfs defines the contract with the guest filesystem
// appliance used to customize images. The concrete backend is an
// external capability; this package only fixes the operations the
// customizer relies on.
package guestfs

import "context"

// Mountpoint pairs a guest device with the path it mounts at.
type Mountpoint struct {
	Device string
	Path   string
}

// Guest is a launched appliance attached to one image file. All
// operations act inside the guest namespace. Implementations are not
// required to be safe for concurrent use.
type Guest interface {
	// Inspect lists the root filesystems found on the image.
	Inspect(ctx context.Context) ([]string, error)
	// Mountpoints returns the fstab-derived mountpoints for a root.
	Mountpoints(ctx context.Context, root string) ([]Mountpoint, error)
	// Mount mounts a device at a guest path.
	Mount(ctx context.Context, device, path string) error

	// Write creates a guest file with the given contents.
	Write(ctx context.Context, path string, data []byte) error
	// Upload copies a host file into the guest, carrying the host
	// file's permission bits over.
	Upload(ctx context.Context, hostPath, guestPath string) error
	// Download copies a guest file to the host.
	Download(ctx context.Context, guestPath, hostPath string) error
	// Chmod changes the mode of a guest path.
	Chmod(ctx context.Context, mode int, path string) error
	// Mkdir creates a guest directory including parents.
	Mkdir(ctx context.Context, path string) error
	// Rm removes a guest path recursively.
	Rm(ctx context.Context, path string) error
	// Truncate empties a guest file, keeping it in place.
	Truncate(ctx context.Context, path string) error

	// Command runs a command inside the guest.
	Command(ctx context.Context, args []string) (string, error)
	// Sh runs a shell command line inside the guest.
	Sh(ctx context.Context, cmd string) (string, error)

	// SetPassword sets or locks a user's password. Hashing is the
	// backend's concern.
	SetPassword(ctx context.Context, user, password string, locked bool) error

	// SELinuxRelabel controls whether files written from here on
	// are relabeled by the guest policy.
	SELinuxRelabel(ctx context.Context, enabled bool) error

	// Sync flushes guest writes to the image file.
	Sync(ctx context.Context) error
	// UmountAll unmounts everything mounted through Mount.
	UmountAll(ctx context.Context) error
	// Shutdown stops the appliance. No operation is valid after.
	Shutdown(ctx context.Context) error
}

// Launcher opens an image file and boots an appliance for it.
type Launcher interface {
	Launch(ctx context.Context, image, format string) (Guest, error)
}
