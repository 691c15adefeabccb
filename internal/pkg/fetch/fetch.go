// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package fetch downloads repository indexes and templates. Downloads
// land in a random sibling of their final name and are renamed into
// place only after the transfer and the caller's verification hook both
// succeed, so a file at a canonical cache name is always complete and
// trustworthy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/virtbuild/virtbuild/internal/pkg/cache"
	"github.com/virtbuild/virtbuild/internal/pkg/errkind"
	"github.com/virtbuild/virtbuild/internal/pkg/util/bin"
	"github.com/virtbuild/virtbuild/internal/pkg/util/fs"
	"github.com/virtbuild/virtbuild/pkg/useragent"
	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// TemplateKey identifies a template in the cache.
type TemplateKey struct {
	Name     string
	Arch     string
	Revision string
}

// Options modifies a single Download call.
type Options struct {
	// Key, when set together with an enabled cache, makes the
	// download land under the canonical cache name.
	Key *TemplateKey
	// Verify runs against the downloaded file before it is renamed
	// to its final name. An error discards the download.
	Verify func(path string) error
	// Progress reports transfer progress; nil disables reporting.
	Progress ProgressCallback
	// Proxy is the proxy policy of the originating source.
	Proxy ProxyPolicy
}

// Fetcher downloads URIs, optionally through the template cache.
type Fetcher struct {
	cache  *cache.Handle
	tmpDir string
}

// New returns a fetcher. imgCache may be a disabled handle; tmpDir is
// where keyless downloads are placed (empty for the system default).
func New(imgCache *cache.Handle, tmpDir string) *Fetcher {
	return &Fetcher{cache: imgCache, tmpDir: tmpDir}
}

const retries = 3

// Download fetches uri to a local file and returns its path. When the
// returned isTemporary is true the caller owns the file and removes it
// when done; otherwise the path is a canonical cache entry shared
// across invocations.
func (f *Fetcher) Download(ctx context.Context, uri string, opts Options) (path string, isTemporary bool, err error) {
	if opts.Key != nil && f.cache != nil && !f.cache.IsDisabled() {
		ent, err := f.cache.GetEntry(opts.Key.Name, opts.Key.Arch, opts.Key.Revision)
		if err != nil {
			return "", false, err
		}
		if ent.Exists {
			vblog.Infof("Using cached template %s", ent.Path)
			return ent.Path, false, nil
		}
		defer ent.CleanTmp()

		if err := f.fetch(ctx, uri, ent.TmpPath, opts); err != nil {
			return "", false, err
		}
		if opts.Verify != nil {
			if err := opts.Verify(ent.TmpPath); err != nil {
				return "", false, err
			}
		}
		if err := ent.Finalize(); err != nil {
			return "", false, err
		}
		return ent.Path, false, nil
	}

	tmp, err := os.CreateTemp(f.tmpDir, "virtbuild-download-")
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", errkind.ErrFetch, err)
	}
	tmp.Close()

	if err := f.fetch(ctx, uri, tmp.Name(), opts); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	if opts.Verify != nil {
		if err := opts.Verify(tmp.Name()); err != nil {
			os.Remove(tmp.Name())
			return "", false, err
		}
	}
	return tmp.Name(), true, nil
}

// fetch transfers uri into dst through a random sibling rename.
func (f *Fetcher) fetch(ctx context.Context, uri, dst string, opts Options) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: could not parse %q: %v", errkind.ErrFetch, uri, err)
	}

	inflight := fs.TmpSibling(dst)
	defer os.Remove(inflight)

	switch u.Scheme {
	case "", "file":
		src := u.Path
		if u.Scheme == "" {
			src = uri
		}
		vblog.Debugf("Copying local file %s", src)
		if err := fs.CopyFile(src, inflight, 0o644); err != nil {
			return fmt.Errorf("%w: %v", errkind.ErrFetch, err)
		}
	case "http", "https":
		if err := f.fetchHTTP(ctx, uri, inflight, opts); err != nil {
			return err
		}
	case "ftp":
		if err := f.fetchExternal(ctx, uri, inflight, u.Scheme, opts); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", errkind.ErrFetch, u.Scheme)
	}

	if err := os.Rename(inflight, dst); err != nil {
		return fmt.Errorf("%w: could not rename %s: %v", errkind.ErrCache, inflight, err)
	}
	return nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri, dst string, opts Options) error {
	proxyFn, err := opts.Proxy.proxyFunc()
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrConfig, err)
	}

	client := &http.Client{
		Transport: &http.Transport{Proxy: proxyFn},
	}

	// Status probe before committing to the body transfer.
	size, err := f.probe(ctx, client, uri)
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", useragent.Value())

		res, err := client.Do(req)
		if err != nil {
			// Transport errors may be transient.
			return err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status %s", res.Status))
		}

		out, err := os.OpenFile(dst, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer out.Close()

		progress := opts.Progress
		if progress == nil {
			progress = func(_ int64, r io.Reader, w io.Writer) error {
				_, err := CopyWithContext(ctx, w, r)
				return err
			}
		}
		if err := progress(size, res.Body, out); err != nil {
			return err
		}
		return out.Close()
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), retries), ctx)
	if err := backoff.RetryNotify(op, bo, func(err error, d time.Duration) {
		vblog.Warningf("Download of %s failed (%v), retrying in %v", uri, err, d)
	}); err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrFetch, uri, err)
	}
	return nil
}

// fetchExternal transfers schemes net/http does not speak through the
// external transfer tool, with the proxy envelope applied per scheme.
// The same status-probe-then-body protocol applies: a HEAD-equivalent
// request first, failing before any body bytes move, then the
// transfer itself.
func (f *Fetcher) fetchExternal(ctx context.Context, uri, dst, scheme string, opts Options) error {
	curl, err := bin.FindBin("curl")
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrFetch, err)
	}
	env := append(os.Environ(), opts.Proxy.Envelope(scheme)...)

	probe := exec.CommandContext(ctx, curl, "--head", "--fail", "--silent", "--show-error",
		"--user-agent", useragent.Value(), "--output", os.DevNull, uri)
	probe.Env = env
	probe.Stderr = vblog.Writer()
	if err := probe.Run(); err != nil {
		return fmt.Errorf("%w: %s: status probe failed: %v", errkind.ErrFetch, uri, err)
	}

	body := exec.CommandContext(ctx, curl, "--fail", "--silent", "--show-error",
		"--user-agent", useragent.Value(), "--output", dst, uri)
	body.Env = env
	body.Stderr = vblog.Writer()
	if err := body.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrFetch, uri, err)
	}
	return nil
}

// probe issues the HEAD-equivalent status check, failing on 4xx/5xx or
// an explicitly empty body, and returns the advertised size (-1 when
// unknown).
func (f *Fetcher) probe(ctx context.Context, client *http.Client, uri string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", errkind.ErrFetch, err)
	}
	req.Header.Set("User-Agent", useragent.Value())

	res, err := client.Do(req)
	if err != nil {
		return -1, fmt.Errorf("%w: %s: %v", errkind.ErrFetch, uri, err)
	}
	res.Body.Close()

	if res.StatusCode >= 400 {
		return -1, fmt.Errorf("%w: %s: unexpected status %s", errkind.ErrFetch, uri, res.Status)
	}
	if res.ContentLength == 0 {
		return -1, fmt.Errorf("%w: %s: empty response", errkind.ErrFetch, uri)
	}
	return res.ContentLength, nil
}

// BaseURI truncates uri at its last slash, yielding the directory all
// same-origin references resolve against.
func BaseURI(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[:i]
	}
	return uri
}
