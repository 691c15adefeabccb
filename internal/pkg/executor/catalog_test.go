// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/virtbuild/virtbuild/internal/pkg/planner"
)

const (
	gib = int64(1024 * 1024 * 1024)
)

func TestPlanXZPath(t *testing.T) {
	// A compressed raw template at the right size: a single
	// decompression step straight to the output is the cheapest
	// plan, not copy-then-decompress.
	e := New(Request{
		Output: "out.img",
		TmpDir: t.TempDir(),
	})

	itags := planner.Tags{
		Template: true,
		Filename: "cache/a.xz",
		Size:     gib,
		Format:   "raw",
		XZ:       true,
	}

	plan, err := planner.Search(e.Transitions, itags, e.Goal(itags), 6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("plan has %d steps, want 1: %+v", len(plan), planNames(plan))
	}
	if !strings.HasPrefix(plan[0].Task.Name(), "uncompress") {
		t.Errorf("step = %q, want uncompress", plan[0].Task.Name())
	}
	if !strings.HasSuffix(plan[0].Task.Name(), "out.img") {
		t.Errorf("step %q does not target the output", plan[0].Task.Name())
	}
	if w := planner.TotalWeight(plan); w != 80 {
		t.Errorf("TotalWeight = %d, want 80", w)
	}
}

func TestPlanGrowthPath(t *testing.T) {
	// Growing by a gigabyte exceeds the in-place headroom, so the
	// planner takes virt-resize directly rather than copy plus
	// qemu-img resize.
	e := New(Request{
		Output: "out.img",
		Size:   2 * gib,
		TmpDir: t.TempDir(),
	})

	itags := planner.Tags{
		Template: true,
		Filename: "cache/a",
		Size:     gib,
		Format:   "raw",
	}

	plan, err := planner.Search(e.Transitions, itags, e.Goal(itags), 6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("plan has %d steps, want 1: %+v", len(plan), planNames(plan))
	}
	if !strings.HasPrefix(plan[0].Task.Name(), "resize") {
		t.Errorf("step = %q, want resize", plan[0].Task.Name())
	}
	if w := planner.TotalWeight(plan); w != 100 {
		t.Errorf("TotalWeight = %d, want 100", w)
	}
}

func TestPlanSmallGrowthUsesDiskResize(t *testing.T) {
	// Below the virt-resize headroom only the in-place container
	// resize can grow the image: copy first, then resize.
	e := New(Request{
		Output: "out.img",
		Size:   gib + 1024*1024,
		TmpDir: t.TempDir(),
	})

	itags := planner.Tags{
		Template: true,
		Filename: "cache/a",
		Size:     gib,
		Format:   "raw",
	}

	plan, err := planner.Search(e.Transitions, itags, e.Goal(itags), 6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("plan has %d steps, want 2: %+v", len(plan), planNames(plan))
	}
	if !strings.HasPrefix(plan[0].Task.Name(), "copy") {
		t.Errorf("step 1 = %q, want copy", plan[0].Task.Name())
	}
	if !strings.Contains(plan[1].Task.Name(), "in place") {
		t.Errorf("step 2 = %q, want in-place resize", plan[1].Task.Name())
	}
}

func TestPlanConvertPath(t *testing.T) {
	e := New(Request{
		Output: "out.img",
		Format: "qcow2",
		TmpDir: t.TempDir(),
	})

	itags := planner.Tags{
		Template: true,
		Filename: "cache/a",
		Size:     gib,
		Format:   "raw",
	}

	plan, err := planner.Search(e.Transitions, itags, e.Goal(itags), 6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("plan has %d steps, want 1: %+v", len(plan), planNames(plan))
	}
	if !strings.HasPrefix(plan[0].Task.Name(), "convert") {
		t.Errorf("step = %q, want convert", plan[0].Task.Name())
	}
}

func TestPlanNeverProbesTemplate(t *testing.T) {
	// An unknown-format template must not reach qemu-img convert
	// with autodetection while still the shared template.
	e := New(Request{
		Output: "out.img",
		Format: "qcow2",
		TmpDir: t.TempDir(),
	})

	itags := planner.Tags{
		Template: true,
		Filename: "cache/a",
		Size:     gib,
	}

	for _, tr := range e.Transitions(itags) {
		if strings.HasPrefix(tr.Task.Name(), "convert") {
			t.Errorf("catalog offers %q for an unknown-format template", tr.Task.Name())
		}
	}
}

func TestPlanChainsThroughIntermediate(t *testing.T) {
	// Decompress then convert: the first step must land on the
	// intermediate file, the second on the output.
	e := New(Request{
		Output: "out.img",
		Format: "qcow2",
		TmpDir: t.TempDir(),
	})

	itags := planner.Tags{
		Template: true,
		Filename: "cache/a.xz",
		Size:     gib,
		Format:   "raw",
		XZ:       true,
	}

	plan, err := planner.Search(e.Transitions, itags, e.Goal(itags), 6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("plan has %d steps, want 2: %+v", len(plan), planNames(plan))
	}
	if !strings.HasPrefix(plan[0].Task.Name(), "uncompress") {
		t.Errorf("step 1 = %q, want uncompress", plan[0].Task.Name())
	}
	if !strings.HasPrefix(plan[1].Task.Name(), "convert") {
		t.Errorf("step 2 = %q, want convert", plan[1].Task.Name())
	}
	if plan[1].Out.Filename != "out.img" {
		t.Errorf("final filename = %q", plan[1].Out.Filename)
	}
}

func TestRunCopyRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.WriteFile(src, []byte("image"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.img")

	e := New(Request{
		Output:          out,
		TmpDir:          dir,
		DeleteOnFailure: true,
	})

	itags := planner.Tags{Template: true, Filename: src, Size: 5, Format: "raw"}
	plan, err := planner.Search(e.Transitions, itags, e.Goal(itags), 6)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if err := e.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "image" {
		t.Errorf("output = %q", got)
	}
	// The template must survive a copy-based plan.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("template gone after plan: %v", err)
	}
}

func TestRunDeletesOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.img")
	if err := os.WriteFile(out, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Request{
		Output:          out,
		TmpDir:          dir,
		DeleteOnFailure: true,
	})

	plan := []planner.Step{{
		Task: e.pxzcatTask(filepath.Join(dir, "missing.xz"), out),
	}}
	if err := e.Run(context.Background(), plan); err == nil {
		t.Fatal("Run with missing input did not fail")
	}

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output still present after failed run")
	}
}

func planNames(plan []planner.Step) []string {
	names := make([]string, len(plan))
	for i, s := range plan {
		names[i] = s.Task.Name()
	}
	return names
}
