// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRegisterFlagForCmd(t *testing.T) {
	var (
		s  string
		b  bool
		sl []string
	)

	root := &cobra.Command{Use: "root"}
	cmd := &cobra.Command{Use: "sub", Run: func(*cobra.Command, []string) {}}

	m := NewCommandManager(root)
	m.RegisterCmd(cmd)
	m.RegisterFlagForCmd(&Flag{
		ID: "stringFlag", Value: &s, DefaultValue: "def",
		Name: "string", ShortHand: "s", Usage: "a string",
		EnvKeys: []string{"STRING"},
	}, cmd)
	m.RegisterFlagForCmd(&Flag{
		ID: "boolFlag", Value: &b, DefaultValue: false,
		Name: "bool", Usage: "a bool",
	}, cmd)
	m.RegisterFlagForCmd(&Flag{
		ID: "sliceFlag", Value: &sl, DefaultValue: []string(nil),
		Name: "slice", Usage: "a slice", StringArray: true,
	}, cmd)

	root.SetArgs([]string{"sub", "--string", "x", "--bool", "--slice", "a", "--slice", "b"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if s != "x" {
		t.Errorf("string flag = %q", s)
	}
	if !b {
		t.Error("bool flag not set")
	}
	if len(sl) != 2 || sl[0] != "a" || sl[1] != "b" {
		t.Errorf("slice flag = %v", sl)
	}
}

func TestUpdateCmdFlagFromEnv(t *testing.T) {
	var s string

	root := &cobra.Command{Use: "root"}
	m := NewCommandManager(root)
	m.RegisterFlagForCmd(&Flag{
		ID: "envFlag", Value: &s, DefaultValue: "",
		Name: "from-env", Usage: "an env flag",
		EnvKeys: []string{"FROM_ENV"},
	}, root)

	t.Setenv("VIRTBUILD_FROM_ENV", "env value")
	if err := m.UpdateCmdFlagFromEnv(root, "VIRTBUILD_"); err != nil {
		t.Fatalf("UpdateCmdFlagFromEnv: %v", err)
	}
	if s != "env value" {
		t.Errorf("flag = %q, want env value", s)
	}
}
