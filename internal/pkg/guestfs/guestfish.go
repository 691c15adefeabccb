// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package guestfs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/util/bin"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// GuestfishLauncher drives a guestfish remote session. One launcher can
// be reused; each Launch starts a fresh appliance.
type GuestfishLauncher struct{}

// NewGuestfishLauncher returns the guestfish-backed launcher.
func NewGuestfishLauncher() *GuestfishLauncher {
	return &GuestfishLauncher{}
}

// Launch boots the appliance attached to image and returns a Guest
// driving it over the guestfish remote protocol.
func (l *GuestfishLauncher) Launch(ctx context.Context, image, format string) (Guest, error) {
	fish, err := bin.FindBin("guestfish")
	if err != nil {
		return nil, err
	}

	args := []string{"--listen", "-a", image}
	if format != "" {
		args = append(args, "--format="+format)
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, fish, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = vblog.Writer()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("guestfish --listen: %v", err)
	}

	// The listen output is "GUESTFISH_PID=nnnn; export GUESTFISH_PID".
	line := strings.TrimSpace(stdout.String())
	eq := strings.Index(line, "=")
	semi := strings.Index(line, ";")
	if !strings.HasPrefix(line, "GUESTFISH_PID=") || semi < eq {
		return nil, fmt.Errorf("unexpected guestfish output %q", line)
	}

	g := &fishGuest{fish: fish, remote: "--remote=" + line[eq+1:semi]}
	if _, err := g.call(ctx, "run"); err != nil {
		g.Shutdown(ctx)
		return nil, err
	}
	return g, nil
}

// fishGuest sends individual guestfish commands to a listening
// appliance.
type fishGuest struct {
	fish   string
	remote string
	down   bool
}

func (g *fishGuest) call(ctx context.Context, args ...string) (string, error) {
	vblog.Debugf("guestfish %s %v", g.remote, args)
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, g.fish, append([]string{g.remote, "--"}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = vblog.Writer()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("guestfish %s: %v", args[0], err)
	}
	return stdout.String(), nil
}

func (g *fishGuest) Inspect(ctx context.Context) ([]string, error) {
	out, err := g.call(ctx, "inspect-os")
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

func (g *fishGuest) Mountpoints(ctx context.Context, root string) ([]Mountpoint, error) {
	out, err := g.call(ctx, "inspect-get-mountpoints", root)
	if err != nil {
		return nil, err
	}

	var mps []Mountpoint
	for _, line := range strings.Split(out, "\n") {
		// Lines have the form "/boot: /dev/sda1".
		path, device, ok := strings.Cut(strings.TrimSpace(line), ": ")
		if !ok {
			continue
		}
		mps = append(mps, Mountpoint{Device: device, Path: path})
	}
	return mps, nil
}

func (g *fishGuest) Mount(ctx context.Context, device, path string) error {
	_, err := g.call(ctx, "mount", device, path)
	return err
}

func (g *fishGuest) Write(ctx context.Context, path string, data []byte) error {
	// Contents go through a host file so arbitrary bytes survive the
	// fish command quoting.
	tmp, err := os.CreateTemp("", "virtbuild-write-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	_, err = g.call(ctx, "upload", tmp.Name(), path)
	return err
}

func (g *fishGuest) Upload(ctx context.Context, hostPath, guestPath string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}
	if _, err := g.call(ctx, "upload", hostPath, guestPath); err != nil {
		return err
	}
	return g.Chmod(ctx, int(info.Mode().Perm()), guestPath)
}

func (g *fishGuest) Download(ctx context.Context, guestPath, hostPath string) error {
	_, err := g.call(ctx, "download", guestPath, hostPath)
	return err
}

func (g *fishGuest) Chmod(ctx context.Context, mode int, path string) error {
	_, err := g.call(ctx, "chmod", fmt.Sprintf("0%o", mode), path)
	return err
}

func (g *fishGuest) Mkdir(ctx context.Context, path string) error {
	_, err := g.call(ctx, "mkdir-p", path)
	return err
}

func (g *fishGuest) Rm(ctx context.Context, path string) error {
	_, err := g.call(ctx, "rm-rf", path)
	return err
}

func (g *fishGuest) Truncate(ctx context.Context, path string) error {
	_, err := g.call(ctx, "truncate", path)
	return err
}

func (g *fishGuest) Command(ctx context.Context, args []string) (string, error) {
	return g.call(ctx, append([]string{"command"}, strings.Join(args, " "))...)
}

func (g *fishGuest) Sh(ctx context.Context, cmdline string) (string, error) {
	return g.call(ctx, "sh", cmdline)
}

func (g *fishGuest) SetPassword(ctx context.Context, user, password string, locked bool) error {
	if locked {
		_, err := g.Sh(ctx, "passwd -l "+user)
		return err
	}
	// chpasswd hashes inside the guest, so no crypted material ever
	// crosses the command line.
	_, err := g.Sh(ctx, fmt.Sprintf("echo %s:%s | chpasswd", user, shellQuote(password)))
	return err
}

func (g *fishGuest) SELinuxRelabel(ctx context.Context, enabled bool) error {
	// Relabeling is deferred to the first boot; while the appliance
	// has the image open the policy must stay out of the way.
	if enabled {
		_, err := g.call(ctx, "sh", "test -e /etc/selinux/config && touch /.autorelabel || true")
		return err
	}
	_, err := g.call(ctx, "setenforce", "0")
	if err != nil {
		// Hosts without SELinux support reject the call; that is
		// the state we want anyway.
		vblog.Debugf("setenforce not available: %v", err)
	}
	return nil
}

func (g *fishGuest) Sync(ctx context.Context) error {
	_, err := g.call(ctx, "sync")
	return err
}

func (g *fishGuest) UmountAll(ctx context.Context) error {
	_, err := g.call(ctx, "umount-all")
	return err
}

func (g *fishGuest) Shutdown(ctx context.Context) error {
	if g.down {
		return nil
	}
	g.down = true
	_, err := g.call(ctx, "exit")
	return err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
