// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/fetch"
	"github.com/virtbuild/virtbuild/internal/pkg/trust"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// Options modifies a Parse call.
type Options struct {
	// TemplateMode relaxes required fields for the repository
	// building tool: missing values are permitted and a missing
	// architecture is guessed.
	TemplateMode bool
	// Verifier is attached to every produced entry.
	Verifier *trust.Chain
	// Proxy is attached to every produced entry.
	Proxy fetch.ProxyPolicy
}

// field is one parsed key[subkey]=value line.
type field struct {
	key    string
	subkey string
	value  string
}

// section is one [name] block with its fields in source order.
type section struct {
	name   string
	line   int
	fields []field
}

func corrupt(uri string, line int, format string, a ...interface{}) error {
	msg := fmt.Sprintf(format, a...)
	return fmt.Errorf("%w: %s:%d: %s", errkind.ErrCorruptIndex, uri, line, msg)
}

// ParseFile parses the native index at path, resolving template
// references against indexURI.
func ParseFile(path, indexURI string, opts Options) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrCorruptIndex, err)
	}
	defer f.Close()

	return Parse(f, indexURI, opts)
}

// Parse parses a native INI-with-subkeys index into entries. Sections
// with the same (name, arch) at distinct revisions are deduplicated
// keeping the highest revision; equal revisions are rejected as
// duplicates.
func Parse(r io.Reader, indexURI string, opts Options) ([]*Entry, error) {
	sections, err := lex(r, indexURI)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(sections))
	for _, sec := range sections {
		e, err := makeEntry(sec, indexURI, opts)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	// Two sections advertising the same (name, arch, revision) can
	// only be an authoring mistake; differing revisions are the
	// supported upgrade case and collapse to the highest one.
	seen := make(map[string][]Revision)
	for _, e := range entries {
		for _, rev := range seen[e.Key()] {
			if rev.Compare(e.Revision) == 0 {
				return nil, fmt.Errorf("%w: %s: duplicate section for %s (%s)",
					errkind.ErrCorruptIndex, indexURI, e.Name, e.Arch)
			}
		}
		seen[e.Key()] = append(seen[e.Key()], e.Revision)
	}

	return Dedup(entries), nil
}

// lex splits the input into sections, handling subkeys and line
// continuations (a single leading space continues the previous value).
func lex(r io.Reader, uri string) ([]*section, error) {
	var (
		sections []*section
		cur      *section
		lineno   int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineno++
		line := scanner.Text()

		switch {
		case strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#"):
			continue

		case strings.HasPrefix(line, "["):
			if !strings.HasSuffix(line, "]") || len(line) < 3 {
				return nil, corrupt(uri, lineno, "malformed section header %q", line)
			}
			cur = &section{name: line[1 : len(line)-1], line: lineno}
			sections = append(sections, cur)

		case strings.HasPrefix(line, " "):
			if cur == nil || len(cur.fields) == 0 {
				return nil, corrupt(uri, lineno, "continuation line outside a value")
			}
			f := &cur.fields[len(cur.fields)-1]
			f.value += "\n" + line[1:]

		default:
			if cur == nil {
				return nil, corrupt(uri, lineno, "field outside a section")
			}
			eq := strings.Index(line, "=")
			if eq < 1 {
				return nil, corrupt(uri, lineno, "malformed line %q", line)
			}
			key, subkey := line[:eq], ""
			if br := strings.Index(key, "["); br >= 0 {
				if !strings.HasSuffix(key, "]") {
					return nil, corrupt(uri, lineno, "malformed subkey in %q", line)
				}
				key, subkey = key[:br], key[br+1:len(key)-1]
			}
			for _, f := range cur.fields {
				if f.key == key && f.subkey == subkey {
					return nil, corrupt(uri, lineno, "repeated field %s[%s] in section %q", key, subkey, cur.name)
				}
			}
			cur.fields = append(cur.fields, field{key: key, subkey: subkey, value: line[eq+1:]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errkind.ErrCorruptIndex, uri, err)
	}

	return sections, nil
}

func makeEntry(sec *section, indexURI string, opts Options) (*Entry, error) {
	if sec.name == "" {
		return nil, corrupt(indexURI, sec.line, "empty section name")
	}

	e := &Entry{
		Name:           sec.name,
		CompressedSize: -1,
		Size:           -1,
		Verifier:       opts.Verifier,
		Proxy:          opts.Proxy,
	}

	var file string
	for _, f := range sec.fields {
		switch f.key {
		case "name":
			e.DisplayName = f.value
		case "osinfo":
			e.OsinfoID = f.value
		case "file":
			file = f.value
		case "arch":
			e.Arch = f.value
		case "signature", "sig":
			e.SigURI = resolveURI(indexURI, f.value)
		case "checksum":
			kind := trust.ChecksumKind(f.subkey)
			if f.subkey == "" {
				kind = trust.SHA512
			}
			if kind != trust.SHA256 && kind != trust.SHA512 {
				return nil, corrupt(indexURI, sec.line, "unsupported checksum %q in section %q", f.subkey, sec.name)
			}
			e.Checksums = append(e.Checksums, trust.Checksum{Kind: kind, Hex: strings.TrimSpace(f.value)})
		case "revision":
			n, err := strconv.ParseInt(f.value, 10, 64)
			if err != nil {
				return nil, corrupt(indexURI, sec.line, "unparsable revision %q in section %q", f.value, sec.name)
			}
			e.Revision = IntRevision(n)
		case "format":
			e.Format = f.value
		case "size":
			n, err := strconv.ParseInt(f.value, 10, 64)
			if err != nil || n < 0 {
				return nil, corrupt(indexURI, sec.line, "unparsable size %q in section %q", f.value, sec.name)
			}
			e.Size = n
		case "compressed_size":
			n, err := strconv.ParseInt(f.value, 10, 64)
			if err != nil || n < 0 {
				return nil, corrupt(indexURI, sec.line, "unparsable compressed_size %q in section %q", f.value, sec.name)
			}
			e.CompressedSize = n
		case "expand":
			e.Expand = f.value
		case "lvexpand":
			e.LVExpand = f.value
		case "notes":
			e.Notes = append(e.Notes, Note{Lang: f.subkey, Text: f.value})
		case "hidden":
			hidden, err := strconv.ParseBool(f.value)
			if err != nil {
				return nil, corrupt(indexURI, sec.line, "unparsable hidden %q in section %q", f.value, sec.name)
			}
			e.Hidden = hidden
		case "aliases":
			e.Aliases = strings.Fields(f.value)
		default:
			vblog.Warningf("Ignoring unknown field %q in section %q of %s", f.key, sec.name, indexURI)
		}
	}

	// The same-origin policy: template references must stay relative
	// to the index location.
	switch {
	case file == "" && !opts.TemplateMode:
		return nil, corrupt(indexURI, sec.line, "missing file in section %q", sec.name)
	case file != "":
		if strings.Contains(file, "://") || strings.HasPrefix(file, "/") {
			return nil, corrupt(indexURI, sec.line, "non-relative file %q in section %q", file, sec.name)
		}
		e.FileURI = resolveURI(indexURI, file)
	}

	if e.Arch == "" {
		if !opts.TemplateMode {
			return nil, corrupt(indexURI, sec.line, "missing arch in section %q", sec.name)
		}
		e.Arch = guessArch(sec.name)
		e.ArchGuessed = true
	}
	if e.Size < 0 && !opts.TemplateMode {
		return nil, corrupt(indexURI, sec.line, "missing size in section %q", sec.name)
	}

	return e, nil
}

// resolveURI appends a relative path to the directory of the index URI.
func resolveURI(indexURI, rel string) string {
	base := fetch.BaseURI(indexURI)
	return base + "/" + rel
}

// knownArches are the architecture tokens recognized when guessing an
// architecture from a section name in template mode.
var knownArches = []string{"x86_64", "aarch64", "armv7l", "i686", "ppc64le", "ppc64", "s390x", "riscv64"}

func guessArch(name string) string {
	for _, arch := range knownArches {
		if strings.Contains(name, arch) {
			return arch
		}
	}
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "ppc64le":
		return "ppc64le"
	case "s390x":
		return "s390x"
	case "riscv64":
		return "riscv64"
	}
	return runtime.GOARCH
}
