// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package virtbuild

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/virtbuild/virtbuild/internal/pkg/cleanup"
	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/fetch"
	"github.com/virtbuild/virtbuild/internal/pkg/index"
	"github.com/virtbuild/virtbuild/internal/pkg/sources"
)

// ListArgs selects what the template listing shows.
type ListArgs struct {
	Sources        []string
	Fingerprints   []string
	CheckSignature bool
	// Long includes notes, aliases and sizes.
	Long bool
	// JSON emits a machine readable listing instead.
	JSON bool
	// Hidden includes entries flagged as hidden.
	Hidden bool
}

// List prints the templates advertised by the configured repositories.
func List(ctx context.Context, w io.Writer, args ListArgs) error {
	reg := cleanup.NewRegistry()
	defer reg.Run()

	fetcher := fetch.New(nil, "")

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

	shown := entries[:0]
	for _, e := range entries {
		if e.Hidden && !args.Hidden {
			continue
		}
		shown = append(shown, e)
	}

	switch {
	case args.JSON:
		return listJSON(w, shown)
	case args.Long:
		return listLong(w, shown)
	}
	return listShort(w, shown)
}

func listShort(w io.Writer, entries []*index.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		name := e.Name
		if e.DisplayName != "" {
			name = e.DisplayName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", color.New(color.Bold).Sprint(e.Name), e.Arch, name)
	}
	return tw.Flush()
}

func listLong(w io.Writer, entries []*index.Entry) error {
	title := color.New(color.Bold)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\n", title.Sprintf("os-version:           %s", e.Name))
		if e.DisplayName != "" {
			fmt.Fprintf(w, "Full name:            %s\n", e.DisplayName)
		}
		fmt.Fprintf(w, "Architecture:         %s\n", e.Arch)
		fmt.Fprintf(w, "Revision:             %s\n", e.Revision)
		if e.Format != "" {
			fmt.Fprintf(w, "Format:               %s\n", e.Format)
		}
		fmt.Fprintf(w, "Size:                 %d\n", e.Size)
		if e.CompressedSize >= 0 {
			fmt.Fprintf(w, "Compressed size:      %d\n", e.CompressedSize)
		}
		if e.Expand != "" {
			fmt.Fprintf(w, "Expandable partition: %s\n", e.Expand)
		}
		if len(e.Aliases) > 0 {
			fmt.Fprintf(w, "Aliases:              %s\n", strings.Join(e.Aliases, " "))
		}
		for _, n := range e.Notes {
			if n.Lang == "" {
				fmt.Fprintf(w, "Notes:\n\n%s\n", n.Text)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

type jsonEntry struct {
	Name           string   `json:"os-version"`
	FullName       string   `json:"full-name,omitempty"`
	Arch           string   `json:"arch"`
	Revision       string   `json:"revision"`
	Format         string   `json:"format,omitempty"`
	Size           int64    `json:"size"`
	CompressedSize int64    `json:"compressed-size,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	Hidden         bool     `json:"hidden"`
}

func listJSON(w io.Writer, entries []*index.Entry) error {
	out := struct {
		Version   int         `json:"version"`
		Templates []jsonEntry `json:"templates"`
	}{Version: 1}

	for _, e := range entries {
		je := jsonEntry{
			Name:     e.Name,
			FullName: e.DisplayName,
			Arch:     e.Arch,
			Revision: e.Revision.String(),
			Format:   e.Format,
			Size:     e.Size,
			Aliases:  e.Aliases,
			Hidden:   e.Hidden,
		}
		if e.CompressedSize >= 0 {
			je.CompressedSize = e.CompressedSize
		}
		out.Templates = append(out.Templates, je)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
