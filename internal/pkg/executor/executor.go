// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package executor turns a planned sequence of image transformations
// into tool invocations: cp/mv for copies and renames, the in-process
// parallel xz decoder, and qemu-img/virt-resize for resizing and format
// conversion. It also owns the transition catalog the planner searches.
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/virtbuild/virtbuild/internal/pkg/cleanup"
	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/planner"
	"github.com/virtbuild/virtbuild/internal/pkg/pxzcat"
	"github.com/virtbuild/virtbuild/internal/pkg/util/bin"
	"github.com/virtbuild/virtbuild/internal/pkg/util/fs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// virtResizeHeadroom is the minimum growth virt-resize needs to operate
// usefully; smaller increases go through qemu-img resize instead.
const virtResizeHeadroom = 256 * 1024 * 1024

// Request describes one transformation pipeline from a verified
// template to the user's output file.
type Request struct {
	// Output is the final image path.
	Output string
	// OutputIsBlockDev disables renames onto the output and sparse
	// handling.
	OutputIsBlockDev bool
	// Size is the requested virtual size; 0 keeps the template size.
	Size int64
	// Format is the requested disk format; empty keeps the template
	// format.
	Format string
	// Expand is the partition grown by virt-resize, if any.
	Expand string
	// LVExpand is the logical volume grown by virt-resize, if any.
	LVExpand string
	// TmpDir is where the intermediate file is placed, normally the
	// cache directory.
	TmpDir string
	// DeleteOnFailure unlinks the output when a step fails. It has
	// no effect for block device outputs.
	DeleteOnFailure bool
	// Cleanup registers the intermediate file for removal at
	// process exit.
	Cleanup *cleanup.Registry
}

// Executor runs plans for one request.
type Executor struct {
	req Request
	// tmpFile is the single intermediate target the catalog offers
	// besides the output itself.
	tmpFile string
}

// New prepares an executor. The intermediate file name is allocated
// here and registered for deletion at process exit.
func New(req Request) *Executor {
	tmpFile := filepath.Join(req.TmpDir, "build-"+fs.RandomSuffix()+".img")
	if req.Cleanup != nil {
		req.Cleanup.RegisterFile(tmpFile)
	}
	return &Executor{req: req, tmpFile: tmpFile}
}

// task pairs a display name with its runner, bound to concrete file
// names at transition generation time.
type task struct {
	name string
	run  func(ctx context.Context) error
}

func (t *task) Name() string { return t.name }

// Run carries out the plan step by step. On failure the output file is
// unlinked unless the request opted out or the output is a block
// device.
func (e *Executor) Run(ctx context.Context, plan []planner.Step) (err error) {
	defer func() {
		if err != nil && e.req.DeleteOnFailure && !e.req.OutputIsBlockDev {
			vblog.Verbosef("Removing partial output %s", e.req.Output)
			os.Remove(e.req.Output)
		}
		os.Remove(e.tmpFile)
	}()

	for i, step := range plan {
		t, ok := step.Task.(*task)
		if !ok {
			return fmt.Errorf("%w: foreign task %q in plan", errkind.ErrExec, step.Task.Name())
		}
		vblog.Infof("[%d/%d] %s", i+1, len(plan), t.name)
		if err := t.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runTool executes an external command without a shell, streaming its
// output to the log writer.
func runTool(ctx context.Context, tool string, args ...string) error {
	path, err := bin.FindBin(tool)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrExec, tool, err)
	}

	vblog.Debugf("Running %s %v", path, args)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = vblog.Writer()
	cmd.Stderr = vblog.Writer()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrExec, tool, err)
	}
	return nil
}

func (e *Executor) copyTask(src, dst string) *task {
	return &task{
		name: fmt.Sprintf("copy %s to %s", src, dst),
		run: func(ctx context.Context) error {
			return runTool(ctx, "cp", src, dst)
		},
	}
}

func (e *Executor) renameTask(src, dst string) *task {
	return &task{
		name: fmt.Sprintf("rename %s to %s", src, dst),
		run: func(ctx context.Context) error {
			return runTool(ctx, "mv", src, dst)
		},
	}
}

func (e *Executor) pxzcatTask(src, dst string) *task {
	return &task{
		name: fmt.Sprintf("uncompress %s to %s", src, dst),
		run: func(ctx context.Context) error {
			return pxzcat.Run(src, dst)
		},
	}
}

func (e *Executor) virtResizeTask(src, dst string, in planner.Tags, outFormat string, size int64) *task {
	return &task{
		name: fmt.Sprintf("resize %s to %s (%d bytes)", src, dst, size),
		run: func(ctx context.Context) error {
			// The output container exists before virt-resize
			// fills it.
			createArgs := []string{"create", "-f", outFormat}
			if outFormat == "qcow2" {
				createArgs = append(createArgs, "-o", "preallocation=metadata")
			}
			createArgs = append(createArgs, dst, strconv.FormatInt(size, 10))
			if !e.req.OutputIsBlockDev {
				if err := runTool(ctx, "qemu-img", createArgs...); err != nil {
					return err
				}
			}

			args := []string{}
			if in.Format != "" {
				args = append(args, "--format", in.Format)
			}
			args = append(args, "--output-format", outFormat)
			if e.req.Expand != "" {
				args = append(args, "--expand", e.req.Expand)
			}
			if e.req.LVExpand != "" {
				args = append(args, "--lv-expand", e.req.LVExpand)
			}
			args = append(args, "--unknown-filesystems=error")
			if e.req.OutputIsBlockDev {
				args = append(args, "--no-sparse")
			}
			args = append(args, src, dst)
			return runTool(ctx, "virt-resize", args...)
		},
	}
}

func (e *Executor) diskResizeTask(file string, size int64) *task {
	// qemu-img wants sizes in 512 byte units.
	rounded := (size + 511) &^ 511
	return &task{
		name: fmt.Sprintf("resize %s in place to %d bytes", file, rounded),
		run: func(ctx context.Context) error {
			return runTool(ctx, "qemu-img", "resize", file, strconv.FormatInt(rounded, 10))
		},
	}
}

func (e *Executor) convertTask(src, dst, inFormat, outFormat string) *task {
	return &task{
		name: fmt.Sprintf("convert %s to %s format %s", src, dst, outFormat),
		run: func(ctx context.Context) error {
			args := []string{"convert"}
			if inFormat != "" {
				args = append(args, "-f", inFormat)
			}
			args = append(args, "-O", outFormat, src, dst)
			return runTool(ctx, "qemu-img", args...)
		},
	}
}
