// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package vblog

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func capture(t *testing.T, level int, color bool, fn func()) string {
	t.Helper()

	var buf bytes.Buffer
	old := SetWriter(&buf)
	oldLevel, oldColor := loggerLevel, colorized
	SetLevel(level, color)
	defer func() {
		SetWriter(old)
		loggerLevel, colorized = oldLevel, oldColor
	}()

	fn()
	return buf.String()
}

func TestLevelFiltering(t *testing.T) {
	out := capture(t, int(InfoLevel), false, func() {
		Debugf("hidden")
		Infof("shown")
		Warningf("also shown")
	})

	if strings.Contains(out, "hidden") {
		t.Errorf("debug message printed at info level: %q", out)
	}
	if !strings.Contains(out, "INFO:") || !strings.Contains(out, "shown") {
		t.Errorf("info message missing: %q", out)
	}
	if !strings.Contains(out, "WARNING:") {
		t.Errorf("warning message missing: %q", out)
	}
}

func TestQuietSuppressesInfo(t *testing.T) {
	out := capture(t, int(LogLevel), false, func() {
		Infof("info")
		Errorf("error")
	})

	if strings.Contains(out, "info") {
		t.Errorf("info message printed when quiet: %q", out)
	}
	if !strings.Contains(out, "ERROR:") {
		t.Errorf("error message missing when quiet: %q", out)
	}
}

func TestColorToggle(t *testing.T) {
	plain := capture(t, int(InfoLevel), false, func() { Infof("x") })
	if strings.Contains(plain, "\x1b[") {
		t.Errorf("escape sequence in uncolored output: %q", plain)
	}

	colored := capture(t, int(InfoLevel), true, func() { Infof("x") })
	if !strings.Contains(colored, "\x1b[34m") || !strings.Contains(colored, colorReset) {
		t.Errorf("missing escape sequences in colored output: %q", colored)
	}
}

func TestWriterDiscardsWhenQuiet(t *testing.T) {
	oldLevel, oldColor := loggerLevel, colorized
	defer func() { loggerLevel, colorized = oldLevel, oldColor }()

	SetLevel(int(LogLevel), false)
	if Writer() != io.Discard {
		t.Error("Writer() not discarding at quiet level")
	}

	SetLevel(int(InfoLevel), false)
	if Writer() == io.Discard {
		t.Error("Writer() discarding at info level")
	}
}
