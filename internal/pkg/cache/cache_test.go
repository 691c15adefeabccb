// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := New(Config{RootDir: filepath.Join(t.TempDir(), "cache")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestFileName(t *testing.T) {
	got := FileName("fedora-30", "x86_64", "3")
	want := "fedora-30.x86_64.3"
	if got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestGetEntryFinalize(t *testing.T) {
	h := testHandle(t)

	ent, err := h.GetEntry("img1", "x86_64", "2")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if ent.Exists {
		t.Fatal("entry reported as cached before any download")
	}
	if filepath.Dir(ent.TmpPath) != filepath.Dir(ent.Path) {
		t.Errorf("TmpPath %q is not a sibling of %q", ent.TmpPath, ent.Path)
	}
	suffix := strings.TrimPrefix(ent.TmpPath, ent.Path+".")
	if len(suffix) != 8 {
		t.Errorf("TmpPath suffix %q is not 8 characters", suffix)
	}

	// Simulate a verified download.
	if err := os.WriteFile(ent.TmpPath, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ent.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if !h.IsCached("img1", "x86_64", "2") {
		t.Error("IsCached is false after Finalize")
	}
	if h.IsCached("img1", "x86_64", "3") {
		t.Error("IsCached is true for a different revision")
	}

	ent2, err := h.GetEntry("img1", "x86_64", "2")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !ent2.Exists {
		t.Error("second GetEntry does not see the canonical file")
	}
}

func TestCleanTmpLeavesCanonical(t *testing.T) {
	h := testHandle(t)

	ent, err := h.GetEntry("img1", "x86_64", "1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if err := os.WriteFile(ent.TmpPath, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Failed verification path: temporary removed, canonical absent.
	ent.CleanTmp()
	if _, err := os.Stat(ent.TmpPath); !os.IsNotExist(err) {
		t.Error("temporary file still present after CleanTmp")
	}
	if h.IsCached("img1", "x86_64", "1") {
		t.Error("canonical file present without Finalize")
	}
}

func TestDisabled(t *testing.T) {
	h, err := New(Config{Disable: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !h.IsDisabled() {
		t.Error("IsDisabled is false")
	}
	if h.IsCached("a", "b", "c") {
		t.Error("disabled cache reports a hit")
	}
	if _, err := h.GetEntry("a", "b", "c"); err == nil {
		t.Error("GetEntry on a disabled cache did not error")
	}
}

func TestList(t *testing.T) {
	h := testHandle(t)

	for _, name := range []string{"b.x86_64.1", "a.x86_64.2"} {
		if err := os.WriteFile(filepath.Join(h.Dir(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := h.List(&buf, true); err != nil {
		t.Fatalf("List: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "NAME") {
		t.Errorf("missing header in %q", out)
	}
	if strings.Index(out, "a.x86_64.2") > strings.Index(out, "b.x86_64.1") {
		t.Errorf("listing not sorted: %q", out)
	}
}
