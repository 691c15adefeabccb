// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/customize"
)

// buildOps accumulates customization operations in the order their
// flags appear on the command line. Every customization flag shares one
// accumulator, so pflag's Set calls preserve the user's ordering.
var buildOps []customize.Op

// opValue is a repeatable flag value appending one operation per
// occurrence.
type opValue struct {
	kind  string
	parse func(string) (customize.Op, error)
	count int
}

func (v *opValue) String() string { return "" }
func (v *opValue) Type() string   { return v.kind }

func (v *opValue) Set(s string) error {
	op, err := v.parse(s)
	if err != nil {
		return err
	}
	buildOps = append(buildOps, op)
	v.count++
	return nil
}

// splitPair splits "A:B" at the first colon.
func splitPair(s, what string) (string, string, error) {
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("expecting %s in the form A:B, got %q", what, s)
	}
	return s[:i], s[i+1:], nil
}

func parseWriteOp(s string) (customize.Op, error) {
	path, content, err := splitPair(s, "--write")
	if err != nil {
		return nil, err
	}
	return customize.WriteOp{Path: path, Content: []byte(content)}, nil
}

func parseUploadOp(s string) (customize.Op, error) {
	src, dest, err := splitPair(s, "--upload")
	if err != nil {
		return nil, err
	}
	return customize.UploadOp{Src: src, Dest: dest}, nil
}

func parseDeleteOp(s string) (customize.Op, error) {
	return customize.DeleteOp{Path: s}, nil
}

func parseScrubOp(s string) (customize.Op, error) {
	return customize.ScrubOp{Path: s}, nil
}

func parseMkdirOp(s string) (customize.Op, error) {
	return customize.MkdirOp{Path: s}, nil
}

func parseRunCommandOp(s string) (customize.Op, error) {
	return customize.RunOp{Command: s}, nil
}

func parseFirstbootCommandOp(s string) (customize.Op, error) {
	return customize.FirstbootOp{Script: s}, nil
}

func parseInstallOp(s string) (customize.Op, error) {
	pkgs := strings.Split(s, ",")
	for i := range pkgs {
		pkgs[i] = strings.TrimSpace(pkgs[i])
	}
	return customize.InstallOp{Packages: pkgs}, nil
}

func parseRootPasswordOp(s string) (customize.Op, error) {
	switch {
	case s == "locked":
		return customize.RootPasswordOp{Locked: true}, nil
	case strings.HasPrefix(s, "password:"):
		return customize.RootPasswordOp{Password: strings.TrimPrefix(s, "password:")}, nil
	case strings.HasPrefix(s, "file:"):
		data, err := os.ReadFile(strings.TrimPrefix(s, "file:"))
		if err != nil {
			return nil, err
		}
		password, _, _ := strings.Cut(string(data), "\n")
		return customize.RootPasswordOp{Password: password}, nil
	}
	return nil, fmt.Errorf("expecting --root-password password:WORD, file:FILE or locked, got %q", s)
}

// parseEditOp accepts FILE:s/PATTERN/REPLACEMENT/[g] substitution
// expressions.
func parseEditOp(s string) (customize.Op, error) {
	path, expr, err := splitPair(s, "--edit")
	if err != nil {
		return nil, err
	}

	edit, err := compileSubstitution(expr)
	if err != nil {
		return nil, err
	}
	return customize.EditOp{Path: path, Edit: edit, Desc: expr}, nil
}

func compileSubstitution(expr string) (func([]byte) ([]byte, error), error) {
	if len(expr) < 4 || expr[0] != 's' {
		return nil, fmt.Errorf("expecting a s/PATTERN/REPLACEMENT/ expression, got %q", expr)
	}
	delim := string(expr[1])
	parts := strings.Split(expr[2:], delim)
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("malformed substitution %q", expr)
	}

	re, err := regexp.Compile(parts[0])
	if err != nil {
		return nil, fmt.Errorf("bad pattern in %q: %v", expr, err)
	}
	repl := []byte(parts[1])
	global := len(parts) == 3 && parts[2] == "g"

	return func(data []byte) ([]byte, error) {
		if global {
			return re.ReplaceAll(data, repl), nil
		}
		done := false
		return re.ReplaceAllFunc(data, func(m []byte) []byte {
			if done {
				return m
			}
			done = true
			return re.ReplaceAll(m, repl)
		}), nil
	}, nil
}
