// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package executor

import (
	"github.com/virtbuild/virtbuild/internal/pkg/planner"
)

// Weights of the transition catalog. Cheaper is better; renames are
// free, copies cost less than decompression, virt-resize is the most
// expensive step.
const (
	weightRename     = 0
	weightCopy       = 50
	weightConvert    = 60
	weightDiskResize = 60
	weightPxzcat     = 80
	weightVirtResize = 100
)

// Goal returns the planner goal for the request: the output file at the
// requested size and format, no longer compressed and no longer the
// shared template.
func (e *Executor) Goal(template planner.Tags) planner.Goal {
	have := planner.Tags{Filename: e.req.Output}
	if e.req.Size != 0 {
		have.Size = e.req.Size
	} else {
		have.Size = template.Size
	}
	if e.req.Format != "" {
		have.Format = e.req.Format
	} else if template.Format != "" {
		have.Format = template.Format
	}
	return planner.Goal{
		Have:    have,
		NotKeys: []planner.Key{planner.KeyTemplate, planner.KeyXZ},
	}
}

// targets lists the files a filename-producing task may write: the
// final output first (so equal-weight plans prefer finishing directly)
// and one intermediate file.
func (e *Executor) targets(src string) []string {
	var out []string
	if src != e.req.Output {
		out = append(out, e.req.Output)
	}
	if src != e.tmpFile {
		out = append(out, e.tmpFile)
	}
	return out
}

// outFormat is the format a format-setting task produces.
func (e *Executor) outFormat(tags planner.Tags) string {
	if e.req.Format != "" {
		return e.req.Format
	}
	if tags.Format != "" {
		return tags.Format
	}
	return "raw"
}

// Transitions enumerates the applicable transformations for a tag set.
// It is the catalog the planner searches.
func (e *Executor) Transitions(tags planner.Tags) []planner.Transition {
	var out []planner.Transition
	emit := func(t planner.Task, weight int, o planner.Tags) {
		out = append(out, planner.Transition{Task: t, Weight: weight, Out: o})
	}

	// Copy: always possible, detaches from the shared template.
	for _, dst := range e.targets(tags.Filename) {
		o := tags
		o.Template = false
		o.Filename = dst
		emit(e.copyTask(tags.Filename, dst), weightCopy, o)
	}

	// Rename: free, but never moves the shared template and never
	// targets a block device.
	if !tags.Template && !e.req.OutputIsBlockDev && tags.Filename != e.req.Output {
		o := tags
		o.Filename = e.req.Output
		emit(e.renameTask(tags.Filename, e.req.Output), weightRename, o)
	}

	// Pxzcat: block-parallel decompression to a fresh file.
	if tags.XZ {
		for _, dst := range e.targets(tags.Filename) {
			o := tags
			o.XZ = false
			o.Template = false
			o.Filename = dst
			emit(e.pxzcatTask(tags.Filename, dst), weightPxzcat, o)
		}
	}

	// Virt_resize: grows the filesystem, needs real headroom.
	if !tags.XZ && e.req.Size != 0 && e.req.Size >= tags.Size+virtResizeHeadroom {
		format := e.outFormat(tags)
		for _, dst := range e.targets(tags.Filename) {
			o := tags
			o.Template = false
			o.Filename = dst
			o.Size = e.req.Size
			o.Format = format
			emit(e.virtResizeTask(tags.Filename, dst, tags, format, e.req.Size), weightVirtResize, o)
		}
	}

	// Disk_resize: in-place container growth; the file must be our
	// own and its format known.
	if !tags.XZ && !tags.Template && tags.Format != "" && e.req.Size > tags.Size && tags.Size != 0 {
		o := tags
		o.Size = e.req.Size
		emit(e.diskResizeTask(tags.Filename, e.req.Size), weightDiskResize, o)
	}

	// Convert: format change; an unknown input format would make
	// qemu-img probe the shared template, which is not allowed.
	if !tags.XZ && !(tags.Format == "" && tags.Template) {
		format := e.outFormat(tags)
		for _, dst := range e.targets(tags.Filename) {
			o := tags
			o.Template = false
			o.Filename = dst
			o.Format = format
			emit(e.convertTask(tags.Filename, dst, tags.Format, format), weightConvert, o)
		}
	}

	return out
}
