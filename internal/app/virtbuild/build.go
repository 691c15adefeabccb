// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package virtbuild implements the top level operations behind the
// command line: building an image from a template repository, listing
// templates and managing the cache.
package virtbuild

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/cache"
	"github.com/virtbuild/virtbuild/internal/pkg/cleanup"
	"github.com/virtbuild/virtbuild/internal/pkg/customize"
	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/executor"
	"github.com/virtbuild/virtbuild/internal/pkg/fetch"
	"github.com/virtbuild/virtbuild/internal/pkg/guestfs"
	"github.com/virtbuild/virtbuild/internal/pkg/index"
	"github.com/virtbuild/virtbuild/internal/pkg/planner"
	"github.com/virtbuild/virtbuild/internal/pkg/sources"
	"github.com/virtbuild/virtbuild/internal/pkg/util/fs"
	"github.com/virtbuild/virtbuild/pkg/vbfs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// maxPlanDepth bounds the planner search. The longest sensible pipeline
// is decompress, resize, convert and a final rename, so this leaves
// headroom without letting a catalog bug run away.
const maxPlanDepth = 8

// BuildArgs carries everything the build flow needs from the command
// line.
type BuildArgs struct {
	// OSVersion is the requested template name or alias.
	OSVersion string
	// Arch is the template architecture.
	Arch string
	// Output is the image path to produce.
	Output string
	// Size is the requested virtual size, 0 for the template size.
	Size int64
	// Format is "raw" or "qcow2", empty for the template format.
	Format string

	// Sources and Fingerprints are the --source/--fingerprint
	// values, prepended to the configured registry.
	Sources      []string
	Fingerprints []string

	// CheckSignature is false with --no-check-signature.
	CheckSignature bool

	// CacheDir overrides the template cache location; NoCache
	// disables caching.
	CacheDir string
	NoCache  bool

	// DeleteOnFailure controls unlinking a partial output.
	DeleteOnFailure bool
	// Sync fsyncs the output after customization.
	Sync bool

	// Ops are the customizations in command line order.
	Ops []customize.Op
	// Launcher boots the guest appliance; nil makes Build fail with a
	// customization error when ops were requested.
	Launcher guestfs.Launcher
	// CustomizeOptions configures the customizer collaborators.
	CustomizeOptions customize.Options
}

// Build resolves the requested template, verifies and caches it, plans
// and runs the transformation pipeline, and applies customizations.
func Build(ctx context.Context, args BuildArgs) error {
	reg := cleanup.NewRegistry()
	defer reg.Run()
	stop := reg.OnSignal()
	defer stop()

	// A partial output never survives an interrupted build unless
	// the user opted out or writes to a block device.
	outputIsBlockDev := fs.IsBlockDevice(args.Output)
	var outputHandle cleanup.Handle
	if args.DeleteOnFailure && !outputIsBlockDev {
		outputHandle = reg.RegisterFile(args.Output)
	}

	imgCache := openCache(args)
	fetcher := fetch.New(imgCache, "")

	registry, err := sources.Load()
	if err != nil {
		return err
	}
	srcs, err := sources.FromCommandLine(args.Sources, args.Fingerprints, registry)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return fmt.Errorf("%w: no repository sources configured", errkind.ErrConfig)
	}

	entries, err := loadEntries(ctx, fetcher, srcs, args.CheckSignature, reg)
	if err != nil {
		return err
	}

	entry, err := index.Resolve(entries, args.OSVersion, args.Arch)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrConfig, err)
	}
	vblog.Infof("Found template %s", entry)

	if args.Size != 0 && args.Size < entry.Size {
		return fmt.Errorf("%w: requested size %d is smaller than the template size %d",
			errkind.ErrConfig, args.Size, entry.Size)
	}

	templatePath, isTmp, err := fetchTemplate(ctx, fetcher, entry, reg)
	if err != nil {
		return err
	}
	if isTmp {
		reg.RegisterFile(templatePath)
	}

	if err := transform(ctx, args, entry, templatePath, imgCache, outputIsBlockDev, reg); err != nil {
		return err
	}

	if len(args.Ops) > 0 {
		if args.Launcher == nil {
			return fmt.Errorf("%w: no guest appliance available for customization", errkind.ErrCustomize)
		}
		opts := args.CustomizeOptions
		opts.Sync = args.Sync
		c := customize.New(args.Launcher, opts)
		if err := c.Run(ctx, args.Output, args.Format, args.Ops); err != nil {
			return err
		}
	}

	// The finished output is no longer ours to delete.
	if args.DeleteOnFailure && !outputIsBlockDev {
		reg.Drop(outputHandle)
	}
	vblog.Infof("Output written to %s", args.Output)
	return nil
}

// openCache opens the template cache, downgrading to no cache with a
// warning when the directory cannot be initialized.
func openCache(args BuildArgs) *cache.Handle {
	cfg := cache.Config{RootDir: args.CacheDir, Disable: args.NoCache}
	if cfg.RootDir == "" {
		cfg.RootDir = vbfs.CacheDir()
	}

	imgCache, err := cache.New(cfg)
	if err != nil {
		vblog.Warningf("Could not initialize the cache, continuing without: %v", err)
		imgCache, _ = cache.New(cache.Config{Disable: true})
	}
	return imgCache
}

// fetchTemplate downloads the template for entry through the cache,
// verifying it before it lands under its canonical name. Declared
// checksums are authoritative; the detached signature is only consulted
// when the entry carries no checksums.
func fetchTemplate(ctx context.Context, fetcher *fetch.Fetcher, entry *index.Entry, reg *cleanup.Registry) (string, bool, error) {
	verify := func(path string) error {
		if len(entry.Checksums) > 0 {
			return entry.Verifier.VerifyChecksums(entry.Checksums, path)
		}
		if !entry.Verifier.Enabled() {
			return nil
		}
		if entry.SigURI == "" {
			return fmt.Errorf("%w: entry %s has neither checksums nor a signature", errkind.ErrConfig, entry.Name)
		}

		sigPath, sigTmp, err := fetcher.Download(ctx, entry.SigURI, fetch.Options{Proxy: entry.Proxy})
		if err != nil {
			return err
		}
		if sigTmp {
			defer os.Remove(sigPath)
		}
		return entry.Verifier.VerifyDetached(path, sigPath)
	}

	vblog.Infof("Downloading %s", entry.FileURI)
	return fetcher.Download(ctx, entry.FileURI, fetch.Options{
		Key: &fetch.TemplateKey{
			Name:     entry.Name,
			Arch:     entry.Arch,
			Revision: entry.Revision.String(),
		},
		Verify:   verify,
		Progress: fetch.ProgressBarCallback(ctx),
		Proxy:    entry.Proxy,
	})
}

// transform plans and executes the pipeline from the verified template
// to the output file.
func transform(ctx context.Context, args BuildArgs, entry *index.Entry, templatePath string, imgCache *cache.Handle, outputIsBlockDev bool, reg *cleanup.Registry) error {
	tmpDir := os.TempDir()
	if !imgCache.IsDisabled() {
		tmpDir = imgCache.Dir()
	}

	exe := executor.New(executor.Request{
		Output:           args.Output,
		OutputIsBlockDev: outputIsBlockDev,
		Size:             args.Size,
		Format:           args.Format,
		Expand:           entry.Expand,
		LVExpand:         entry.LVExpand,
		TmpDir:           tmpDir,
		DeleteOnFailure:  args.DeleteOnFailure,
		Cleanup:          reg,
	})

	itags := planner.Tags{
		Template: true,
		Filename: templatePath,
		Size:     entry.Size,
		Format:   entry.Format,
		XZ:       strings.HasSuffix(entry.FileURI, ".xz"),
	}

	plan, err := planner.Search(exe.Transitions, itags, exe.Goal(itags), maxPlanDepth)
	if err != nil {
		return err
	}
	vblog.Debugf("Plan of %d steps, total weight %d", len(plan), planner.TotalWeight(plan))

	return exe.Run(ctx, plan)
}

// Capabilities returns the machine readable capability list.
func Capabilities() []string {
	return []string{
		"output:raw",
		"output:qcow2",
		"xz",
		"checksums",
		"gpg",
		"customize",
	}
}
