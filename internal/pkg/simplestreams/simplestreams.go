// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package simplestreams parses the JSON "simple streams" repository
// variant: a root index of format "index:1.0" pointing at product lists
// of format "products:1.0". Each product contributes one entry, built
// from the newest version's disk image item. Unlike the native format,
// references resolve against the tree root rather than the index file,
// so the same-origin policy does not apply here.
package simplestreams

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/index"
	"github.com/virtbuild/virtbuild/internal/pkg/trust"
)

const (
	indexPath    = "streams/v1/index.json"
	formatIndex  = "index:1.0"
	formatProds  = "products:1.0"
	diskItem     = "disk.img"
	disk1Item    = "disk1.img"
	dataTypeImgs = "image-downloads"
)

// Fetch retrieves the contents of uri. It abstracts the fetcher so the
// parser can be driven from tests and from the build flow alike.
type Fetch func(ctx context.Context, uri string) ([]byte, error)

type rootIndex struct {
	Format string `json:"format"`
	Index  map[string]struct {
		DataType string   `json:"datatype"`
		Path     string   `json:"path"`
		Products []string `json:"products"`
	} `json:"index"`
}

type productsFile struct {
	Format   string             `json:"format"`
	Products map[string]product `json:"products"`
}

type product struct {
	Arch     string `json:"arch"`
	OS       string `json:"os"`
	Release  string `json:"release"`
	Aliases  string `json:"aliases"`
	Versions map[string]struct {
		Items map[string]item `json:"items"`
	} `json:"versions"`
}

type item struct {
	FType  string `json:"ftype"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	SHA512 string `json:"sha512"`
	Size   int64  `json:"size"`
}

// Parse reads the simple-streams tree rooted at baseURI and returns its
// entries. opts carries the verifier and proxy policy attached to every
// entry.
func Parse(ctx context.Context, baseURI string, fetch Fetch, opts index.Options) ([]*index.Entry, error) {
	uri := baseURI + "/" + indexPath
	data, err := fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	var root rootIndex
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errkind.ErrCorruptIndex, uri, err)
	}
	if root.Format != formatIndex {
		return nil, fmt.Errorf("%w: %s: unexpected format %q", errkind.ErrCorruptIndex, uri, root.Format)
	}

	// Sort the index keys so the entry order is stable.
	keys := make([]string, 0, len(root.Index))
	for k := range root.Index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []*index.Entry
	for _, k := range keys {
		idx := root.Index[k]
		if idx.DataType != dataTypeImgs || idx.Path == "" {
			continue
		}
		prodEntries, err := parseProducts(ctx, baseURI, idx.Path, fetch, opts)
		if err != nil {
			return nil, err
		}
		entries = append(entries, prodEntries...)
	}
	return entries, nil
}

func parseProducts(ctx context.Context, baseURI, path string, fetch Fetch, opts index.Options) ([]*index.Entry, error) {
	uri := baseURI + "/" + path
	data, err := fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	var prods productsFile
	if err := json.Unmarshal(data, &prods); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errkind.ErrCorruptIndex, uri, err)
	}
	if prods.Format != formatProds {
		return nil, fmt.Errorf("%w: %s: unexpected format %q", errkind.ErrCorruptIndex, uri, prods.Format)
	}

	keys := make([]string, 0, len(prods.Products))
	for k := range prods.Products {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entries []*index.Entry
	for _, k := range keys {
		e, err := makeEntry(baseURI, k, prods.Products[k], opts)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// makeEntry builds an entry from the newest version of a product, or
// nil when the product carries no disk image.
func makeEntry(baseURI, key string, p product, opts index.Options) (*index.Entry, error) {
	if len(p.Versions) == 0 {
		return nil, nil
	}

	// Newest version first: version labels are date strings ordered
	// lexicographically.
	versions := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	newest := versions[0]

	items := p.Versions[newest].Items
	img, ok := items[diskItem]
	if !ok {
		img, ok = items[disk1Item]
	}
	if !ok {
		for _, it := range items {
			if it.FType == diskItem || it.FType == disk1Item {
				img, ok = it, true
				break
			}
		}
	}
	if !ok {
		return nil, nil
	}
	if img.Path == "" {
		return nil, fmt.Errorf("%w: product %q item has no path", errkind.ErrCorruptIndex, key)
	}

	name := key
	if p.OS != "" && p.Release != "" {
		name = strings.ToLower(p.OS) + "-" + p.Release
	}

	e := &index.Entry{
		Name:           name,
		DisplayName:    fmt.Sprintf("%s %s", p.OS, p.Release),
		FileURI:        baseURI + "/" + img.Path,
		Arch:           normalizeArch(p.Arch),
		Revision:       index.StringRevision(newest),
		Size:           img.Size,
		CompressedSize: -1,
		Verifier:       opts.Verifier,
		Proxy:          opts.Proxy,
	}
	if p.Aliases != "" {
		e.Aliases = strings.Split(p.Aliases, ",")
	}
	if img.SHA256 != "" {
		e.Checksums = append(e.Checksums, trust.Checksum{Kind: trust.SHA256, Hex: img.SHA256})
	}
	if img.SHA512 != "" {
		e.Checksums = append(e.Checksums, trust.Checksum{Kind: trust.SHA512, Hex: img.SHA512})
	}
	return e, nil
}

// normalizeArch maps simple-streams architecture labels to the names
// used by native indexes.
func normalizeArch(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "armhf":
		return "armv7l"
	case "i386":
		return "i686"
	case "ppc64el":
		return "ppc64le"
	}
	return arch
}
