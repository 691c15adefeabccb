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
	"os"

	"github.com/virtbuild/virtbuild/internal/pkg/cleanup"
	"github.com/virtbuild/virtbuild/internal/pkg/fetch"
	"github.com/virtbuild/virtbuild/internal/pkg/index"
	"github.com/virtbuild/virtbuild/internal/pkg/simplestreams"
	"github.com/virtbuild/virtbuild/internal/pkg/sources"
	"github.com/virtbuild/virtbuild/internal/pkg/trust"
	"github.com/virtbuild/virtbuild/pkg/vbfs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// loadEntries downloads and parses the index of every source, verifying
// index signatures through each source's trust chain, and returns the
// combined entry list deduplicated by (name, arch). The trust chains
// stay alive through each entry's Verifier for later template
// verification; their scoped keyrings are registered with reg and closed
// when it runs.
func loadEntries(ctx context.Context, fetcher *fetch.Fetcher, srcs []*sources.Source, checkSignature bool, reg *cleanup.Registry) ([]*index.Entry, error) {
	var entries []*index.Entry

	for _, src := range srcs {
		chain, err := trust.New(src.Key, vbfs.AmbientKeyring(), checkSignature)
		if err != nil {
			return nil, err
		}
		reg.Register(chain.Close)

		srcEntries, err := loadSource(ctx, fetcher, src, chain)
		if err != nil {
			return nil, err
		}
		vblog.Debugf("Source %q contributed %d entries", src.Name, len(srcEntries))
		entries = append(entries, srcEntries...)
	}

	return index.Dedup(entries), nil
}

func loadSource(ctx context.Context, fetcher *fetch.Fetcher, src *sources.Source, chain *trust.Chain) ([]*index.Entry, error) {
	opts := index.Options{Verifier: chain, Proxy: src.Proxy}

	switch src.Format {
	case sources.SimpleStreams:
		// Simple-streams trees are not signed as a whole; items
		// carry checksums instead.
		fetchFn := func(ctx context.Context, uri string) ([]byte, error) {
			path, isTmp, err := fetcher.Download(ctx, uri, fetch.Options{Proxy: src.Proxy})
			if err != nil {
				return nil, err
			}
			if isTmp {
				defer os.Remove(path)
			}
			return os.ReadFile(path)
		}
		return simplestreams.Parse(ctx, src.URI, fetchFn, opts)

	default:
		path, isTmp, err := fetcher.Download(ctx, src.URI, fetch.Options{Proxy: src.Proxy})
		if err != nil {
			return nil, err
		}
		if isTmp {
			defer os.Remove(path)
		}

		// The index is normally an inline-signed file; verify and
		// strip the wrapper. An unsigned index passes through
		// untouched when verification is off.
		unsigned, err := chain.VerifyAndRemoveSignature(path)
		if err != nil {
			return nil, err
		}
		if unsigned != "" {
			defer os.Remove(unsigned)
			path = unsigned
		}

		return index.ParseFile(path, src.URI, opts)
	}
}
