// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package customize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/guestfs"
)

// fakeGuest records operations so tests can check ordering and mount
// behavior without a real appliance.
type fakeGuest struct {
	roots       []string
	mountpoints []guestfs.Mountpoint
	files       map[string][]byte
	log         []string
	shutdown    bool
}

func newFakeGuest(roots ...string) *fakeGuest {
	return &fakeGuest{
		roots: roots,
		mountpoints: []guestfs.Mountpoint{
			{Device: "/dev/sda2", Path: "/boot"},
			{Device: "/dev/sda1", Path: "/"},
			{Device: "/dev/sda3", Path: "/boot/efi"},
		},
		files: make(map[string][]byte),
	}
}

func (f *fakeGuest) record(format string, a ...interface{}) {
	f.log = append(f.log, fmt.Sprintf(format, a...))
}

func (f *fakeGuest) Inspect(context.Context) ([]string, error) { return f.roots, nil }

func (f *fakeGuest) Mountpoints(_ context.Context, root string) ([]guestfs.Mountpoint, error) {
	return f.mountpoints, nil
}

func (f *fakeGuest) Mount(_ context.Context, device, path string) error {
	f.record("mount %s %s", device, path)
	return nil
}

func (f *fakeGuest) Write(_ context.Context, path string, data []byte) error {
	f.record("write %s", path)
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeGuest) Upload(_ context.Context, hostPath, guestPath string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	f.record("upload %s", guestPath)
	f.files[guestPath] = data
	return nil
}

func (f *fakeGuest) Download(_ context.Context, guestPath, hostPath string) error {
	data, ok := f.files[guestPath]
	if !ok {
		return fmt.Errorf("%s: no such file", guestPath)
	}
	return os.WriteFile(hostPath, data, 0o644)
}

func (f *fakeGuest) Chmod(_ context.Context, mode int, path string) error {
	f.record("chmod %o %s", mode, path)
	return nil
}

func (f *fakeGuest) Mkdir(_ context.Context, path string) error {
	f.record("mkdir %s", path)
	return nil
}

func (f *fakeGuest) Rm(_ context.Context, path string) error {
	f.record("rm %s", path)
	delete(f.files, path)
	return nil
}

func (f *fakeGuest) Truncate(_ context.Context, path string) error {
	f.record("truncate %s", path)
	f.files[path] = nil
	return nil
}

func (f *fakeGuest) Command(_ context.Context, args []string) (string, error) {
	f.record("command %s", strings.Join(args, " "))
	return "", nil
}

func (f *fakeGuest) Sh(_ context.Context, cmd string) (string, error) {
	f.record("sh %s", cmd)
	return "", nil
}

func (f *fakeGuest) SetPassword(_ context.Context, user, password string, locked bool) error {
	f.record("password %s locked=%v", user, locked)
	return nil
}

func (f *fakeGuest) SELinuxRelabel(_ context.Context, enabled bool) error {
	f.record("selinux %v", enabled)
	return nil
}

func (f *fakeGuest) Sync(context.Context) error {
	f.record("sync")
	return nil
}

func (f *fakeGuest) UmountAll(context.Context) error {
	f.record("umount-all")
	return nil
}

func (f *fakeGuest) Shutdown(context.Context) error {
	f.shutdown = true
	return nil
}

type fakeLauncher struct {
	guest *fakeGuest
}

func (l *fakeLauncher) Launch(context.Context, string, string) (guestfs.Guest, error) {
	return l.guest, nil
}

func TestRunAppliesOpsInOrder(t *testing.T) {
	g := newFakeGuest("/dev/sda1")
	c := New(&fakeLauncher{guest: g}, Options{
		InstallCommand: func(pkgs []string) (string, error) {
			return "pkg install " + strings.Join(pkgs, " "), nil
		},
	})

	ops := []Op{
		MkdirOp{Path: "/etc/app"},
		WriteOp{Path: "/etc/app/conf", Content: []byte("x=1\n")},
		InstallOp{Packages: []string{"vim", "ssh"}},
		RunOp{Command: "systemctl enable app"},
		ScrubOp{Path: "/var/log/messages"},
		DeleteOp{Path: "/root/.bash_history"},
		RootPasswordOp{Locked: true},
	}
	if err := c.Run(context.Background(), "out.img", "raw", ops); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"mount /dev/sda1 /",
		"mount /dev/sda2 /boot",
		"mount /dev/sda3 /boot/efi",
		"selinux false",
		"mkdir /etc/app",
		"write /etc/app/conf",
		"sh pkg install vim ssh",
		"sh systemctl enable app",
		"truncate /var/log/messages",
		"rm /root/.bash_history",
		"password root locked=true",
		"selinux true",
		"sync",
		"umount-all",
	}
	if len(g.log) != len(want) {
		t.Fatalf("log = %q, want %q", g.log, want)
	}
	for i := range want {
		if g.log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, g.log[i], want[i])
		}
	}
	if !g.shutdown {
		t.Error("appliance not shut down")
	}
}

func TestRunRejectsMultiBoot(t *testing.T) {
	g := newFakeGuest("/dev/sda1", "/dev/sdb1")
	c := New(&fakeLauncher{guest: g}, Options{})

	err := c.Run(context.Background(), "out.img", "raw", []Op{MkdirOp{Path: "/x"}})
	if !errors.Is(err, errkind.ErrCustomize) {
		t.Errorf("Run: got %v, want customize error", err)
	}
	if !g.shutdown {
		t.Error("appliance not shut down on failure")
	}
}

func TestRunNoOpsSkipsAppliance(t *testing.T) {
	c := New(&fakeLauncher{guest: nil}, Options{})
	if err := c.Run(context.Background(), "out.img", "raw", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestEditOp(t *testing.T) {
	g := newFakeGuest("/dev/sda1")
	g.files["/etc/hostname"] = []byte("old\n")
	c := New(&fakeLauncher{guest: g}, Options{})

	ops := []Op{
		EditOp{
			Path: "/etc/hostname",
			Edit: func(data []byte) ([]byte, error) {
				return bytes.ReplaceAll(data, []byte("old"), []byte("new")), nil
			},
		},
	}
	if err := c.Run(context.Background(), "out.img", "raw", ops); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(g.files["/etc/hostname"]); got != "new\n" {
		t.Errorf("edited file = %q", got)
	}
}

func TestUploadOp(t *testing.T) {
	src, err := os.CreateTemp(t.TempDir(), "upload")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.WriteString("payload"); err != nil {
		t.Fatal(err)
	}
	src.Close()

	g := newFakeGuest("/dev/sda1")
	c := New(&fakeLauncher{guest: g}, Options{})

	ops := []Op{UploadOp{Src: src.Name(), Dest: "/opt/payload"}}
	if err := c.Run(context.Background(), "out.img", "raw", ops); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(g.files["/opt/payload"]); got != "payload" {
		t.Errorf("uploaded file = %q", got)
	}
}
