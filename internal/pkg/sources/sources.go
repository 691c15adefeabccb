// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sources loads repository source descriptors from the repos.d
// configuration directories and merges them with sources given on the
// command line.
package sources

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/fetch"
	"github.com/virtbuild/virtbuild/internal/pkg/trust"
	"github.com/virtbuild/virtbuild/pkg/vbfs"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// Format discriminates the index format of a source.
type Format int

const (
	// Native is the INI-with-subkeys index format.
	Native Format = iota
	// SimpleStreams is the two-level JSON index format.
	SimpleStreams
)

// Source is one repository descriptor. Sources are created at config
// load and immutable thereafter.
type Source struct {
	// Name is the logical name, from the section header or the
	// command line position.
	Name string
	// URI locates the index (native) or the tree root
	// (simple-streams).
	URI string
	// Key is the trust anchor for this source.
	Key trust.KeyDescriptor
	// Proxy applies to every request against this source.
	Proxy fetch.ProxyPolicy
	// Format selects the index parser.
	Format Format
}

// Load scans the repos.d directory below each XDG config directory in
// order and returns the parsed sources. For the same file base name,
// the first directory wins; a file counts as seen only after it parsed
// successfully.
func Load() ([]*Source, error) {
	var out []*Source
	seen := make(map[string]bool)

	for _, dir := range vbfs.ConfigDirs() {
		reposDir := filepath.Join(dir, vbfs.ReposDir)
		names, err := os.ReadDir(reposDir)
		if err != nil {
			if !os.IsNotExist(err) {
				vblog.Warningf("Could not read %s: %v", reposDir, err)
			}
			continue
		}

		files := make([]string, 0, len(names))
		for _, n := range names {
			if !n.IsDir() && strings.HasSuffix(n.Name(), ".conf") {
				files = append(files, n.Name())
			}
		}
		sort.Strings(files)

		for _, name := range files {
			if seen[name] {
				continue
			}
			path := filepath.Join(reposDir, name)
			srcs, err := parseFile(path)
			if err != nil {
				vblog.Warningf("Skipping %s: %v", path, err)
				continue
			}
			seen[name] = true
			out = append(out, srcs...)
		}
	}
	return out, nil
}

// FromCommandLine builds sources from --source/--fingerprint values and
// prepends them to the registry list. The fingerprint list must either
// match the source list in length, or hold a single fingerprint applied
// to all sources.
func FromCommandLine(uris, fingerprints []string, registry []*Source) ([]*Source, error) {
	if len(fingerprints) > 1 && len(fingerprints) != len(uris) {
		return nil, fmt.Errorf("%w: %d sources but %d fingerprints given",
			errkind.ErrConfig, len(uris), len(fingerprints))
	}

	out := make([]*Source, 0, len(uris)+len(registry))
	for i, uri := range uris {
		src := &Source{
			Name:  fmt.Sprintf("command line source %d", i+1),
			URI:   uri,
			Proxy: fetch.ProxyPolicy{Mode: fetch.ProxySystem},
		}
		switch {
		case len(fingerprints) == 1:
			src.Key = trust.KeyDescriptor{Kind: trust.Fingerprint, Fingerprint: fingerprints[0]}
		case len(fingerprints) == len(uris):
			src.Key = trust.KeyDescriptor{Kind: trust.Fingerprint, Fingerprint: fingerprints[i]}
		}
		out = append(out, src)
	}
	return append(out, registry...), nil
}

// parseFile parses one repos.d INI file. Each top-level section defines
// a source.
func parseFile(path string) ([]*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		out    []*Source
		cur    *Source
		lineno int
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue

		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			if cur != nil {
				if err := finishSource(cur, path); err != nil {
					return nil, err
				}
				out = append(out, cur)
			}
			cur = &Source{
				Name:  line[1 : len(line)-1],
				Proxy: fetch.ProxyPolicy{Mode: fetch.ProxySystem},
			}

		default:
			if cur == nil {
				return nil, fmt.Errorf("%w: %s:%d: option outside a section", errkind.ErrConfig, path, lineno)
			}
			eq := strings.Index(line, "=")
			if eq < 1 {
				return nil, fmt.Errorf("%w: %s:%d: malformed line %q", errkind.ErrConfig, path, lineno, line)
			}
			key, value := line[:eq], line[eq+1:]
			if err := setOption(cur, key, value, path, lineno); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if cur != nil {
		if err := finishSource(cur, path); err != nil {
			return nil, err
		}
		out = append(out, cur)
	}
	return out, nil
}

func setOption(src *Source, key, value, path string, lineno int) error {
	switch key {
	case "uri":
		src.URI = value
	case "gpgkey":
		u, err := url.Parse(value)
		if err != nil || u.Scheme != "file" {
			// Only local key files are accepted; anything else
			// downgrades the source to unverified.
			vblog.Warningf("%s:%d: ignoring gpgkey %q: only file:// keys are supported", path, lineno, value)
			return nil
		}
		src.Key = trust.KeyDescriptor{Kind: trust.KeyFile, Path: u.Path}
	case "proxy":
		switch value {
		case "no", "off":
			src.Proxy = fetch.ProxyPolicy{Mode: fetch.ProxyUnset}
		case "system":
			src.Proxy = fetch.ProxyPolicy{Mode: fetch.ProxySystem}
		default:
			src.Proxy = fetch.ProxyPolicy{Mode: fetch.ProxyForced, URL: value}
		}
	case "format":
		switch value {
		case "native", "":
			src.Format = Native
		case "simple-streams":
			src.Format = SimpleStreams
		default:
			return fmt.Errorf("%w: %s:%d: unknown format %q", errkind.ErrConfig, path, lineno, value)
		}
	default:
		vblog.Warningf("%s:%d: ignoring unknown option %q", path, lineno, key)
	}
	return nil
}

func finishSource(src *Source, path string) error {
	if src.URI == "" {
		return fmt.Errorf("%w: %s: source %q has no uri", errkind.ErrConfig, path, src.Name)
	}
	return nil
}
