// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package fetch

import (
	"fmt"
	"net/http"
	"net/url"
)

// ProxyMode discriminates the proxy policy variants.
type ProxyMode int

const (
	// ProxyUnset disables proxying entirely, regardless of the
	// environment.
	ProxyUnset ProxyMode = iota
	// ProxySystem uses the proxy configuration from the environment.
	ProxySystem
	// ProxyForced routes every request through a fixed proxy URL.
	ProxyForced
)

// ProxyPolicy is the per-source proxy policy. The zero value is
// ProxyUnset.
type ProxyPolicy struct {
	Mode ProxyMode
	// URL is set for the ProxyForced mode.
	URL string
}

func (p ProxyPolicy) String() string {
	switch p.Mode {
	case ProxySystem:
		return "system"
	case ProxyForced:
		return p.URL
	}
	return "unset"
}

// Envelope returns the environment overrides applied to the external
// transfer tool for a request on the given scheme: unset blanks the
// scheme's proxy variable and sets a blanket no_proxy, system leaves
// the environment untouched, forced pins the scheme's variable to the
// one URL.
func (p ProxyPolicy) Envelope(scheme string) []string {
	switch p.Mode {
	case ProxyUnset:
		return []string{scheme + "_proxy=", "no_proxy=*"}
	case ProxyForced:
		return []string{scheme + "_proxy=" + p.URL}
	}
	return nil
}

// proxyFunc translates the policy into the transport proxy selector
// used for in-process http/https transfers; it mirrors Envelope's
// semantics.
func (p ProxyPolicy) proxyFunc() (func(*http.Request) (*url.URL, error), error) {
	switch p.Mode {
	case ProxyUnset:
		return func(*http.Request) (*url.URL, error) {
			return nil, nil
		}, nil
	case ProxySystem:
		return http.ProxyFromEnvironment, nil
	case ProxyForced:
		u, err := url.Parse(p.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %v", p.URL, err)
		}
		return http.ProxyURL(u), nil
	}
	return nil, fmt.Errorf("unknown proxy mode %d", p.Mode)
}
