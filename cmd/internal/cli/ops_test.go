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
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/virtbuild/virtbuild/internal/pkg/customize"
	"gotest.tools/v3/assert"
)

func TestOpsPreserveCommandLineOrder(t *testing.T) {
	buildOps = nil

	cmd := &cobra.Command{Use: "x", Run: func(*cobra.Command, []string) {}}
	cmd.Flags().Var(&opValue{kind: "FILE:CONTENT", parse: parseWriteOp}, "write", "")
	cmd.Flags().Var(&opValue{kind: "DIR", parse: parseMkdirOp}, "mkdir", "")
	cmd.Flags().Var(&opValue{kind: "PATH", parse: parseDeleteOp}, "delete", "")

	cmd.SetArgs([]string{
		"--mkdir", "/a",
		"--write", "/a/f:hello",
		"--delete", "/b",
		"--mkdir", "/c",
	})
	assert.NilError(t, cmd.Execute())

	assert.Equal(t, len(buildOps), 4)
	assert.Equal(t, buildOps[0].String(), "mkdir /a")
	assert.Equal(t, buildOps[1].String(), "write /a/f")
	assert.Equal(t, buildOps[2].String(), "delete /b")
	assert.Equal(t, buildOps[3].String(), "mkdir /c")
}

func TestParseRootPasswordOp(t *testing.T) {
	op, err := parseRootPasswordOp("password:secret")
	assert.NilError(t, err)
	assert.Equal(t, op.(customize.RootPasswordOp).Password, "secret")

	op, err = parseRootPasswordOp("locked")
	assert.NilError(t, err)
	assert.Assert(t, op.(customize.RootPasswordOp).Locked)

	pwFile := filepath.Join(t.TempDir(), "pw")
	assert.NilError(t, os.WriteFile(pwFile, []byte("filepw\n"), 0o600))
	op, err = parseRootPasswordOp("file:" + pwFile)
	assert.NilError(t, err)
	assert.Equal(t, op.(customize.RootPasswordOp).Password, "filepw")

	_, err = parseRootPasswordOp("plaintext")
	assert.ErrorContains(t, err, "expecting")
}

func TestParseInstallOp(t *testing.T) {
	op, err := parseInstallOp("vim, openssh-server,tmux")
	assert.NilError(t, err)
	pkgs := op.(customize.InstallOp).Packages
	assert.DeepEqual(t, pkgs, []string{"vim", "openssh-server", "tmux"})
}

func TestParseEditOp(t *testing.T) {
	op, err := parseEditOp("/etc/hosts:s/old/new/")
	assert.NilError(t, err)

	edit := op.(customize.EditOp).Edit
	out, err := edit([]byte("old old"))
	assert.NilError(t, err)
	assert.Equal(t, string(out), "new old")

	op, err = parseEditOp("/etc/hosts:s/old/new/g")
	assert.NilError(t, err)
	out, err = op.(customize.EditOp).Edit([]byte("old old"))
	assert.NilError(t, err)
	assert.Equal(t, string(out), "new new")

	_, err = parseEditOp("/etc/hosts")
	assert.ErrorContains(t, err, "expecting")

	_, err = parseEditOp("/etc/hosts:x/old/new/")
	assert.ErrorContains(t, err, "expecting")
}

func TestParseWriteUploadPairs(t *testing.T) {
	op, err := parseWriteOp("/etc/motd:hello world")
	assert.NilError(t, err)
	w := op.(customize.WriteOp)
	assert.Equal(t, w.Path, "/etc/motd")
	assert.Equal(t, string(w.Content), "hello world")

	_, err = parseWriteOp("/etc/motd")
	assert.ErrorContains(t, err, "expecting")

	op, err = parseUploadOp("local.conf:/etc/app.conf")
	assert.NilError(t, err)
	u := op.(customize.UploadOp)
	assert.Equal(t, u.Src, "local.conf")
	assert.Equal(t, u.Dest, "/etc/app.conf")
}
