// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cleanup maintains the registry of actions run when the build
// terminates, normally or on SIGINT/SIGTERM. Temporary download files,
// the scoped keyring directory and the partially written output file are
// all released through it.
package cleanup

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/virtbuild/virtbuild/pkg/vblog"
)

// Handle identifies a registered action so it can be dropped once the
// resource it guards has been handed over.
type Handle int

// Registry holds cleanup actions in registration order. Actions run in
// reverse order, at most once.
type Registry struct {
	mu      sync.Mutex
	actions map[Handle]func()
	order   []Handle
	next    Handle
	done    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[Handle]func())}
}

// Register adds fn to the registry and returns its handle.
func (r *Registry) Register(fn func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.next
	r.next++
	r.actions[h] = fn
	r.order = append(r.order, h)
	return h
}

// RegisterFile arranges for path to be removed on exit.
func (r *Registry) RegisterFile(path string) Handle {
	return r.Register(func() {
		vblog.Debugf("Removing %s", path)
		os.Remove(path)
	})
}

// RegisterDir arranges for dir to be recursively removed on exit.
func (r *Registry) RegisterDir(dir string) Handle {
	return r.Register(func() {
		vblog.Debugf("Removing directory %s", dir)
		os.RemoveAll(dir)
	})
}

// Drop removes a registered action without running it.
func (r *Registry) Drop(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, h)
}

// Run executes all registered actions in reverse registration order.
// Subsequent calls are no-ops.
func (r *Registry) Run() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	var fns []func()
	for i := len(r.order) - 1; i >= 0; i-- {
		if fn, ok := r.actions[r.order[i]]; ok {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnSignal installs a SIGINT/SIGTERM handler that runs the registry and
// exits non-zero. The returned function uninstalls the handler.
func (r *Registry) OnSignal() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig, ok := <-ch
		if !ok {
			return
		}
		vblog.Errorf("Interrupted by %s", sig)
		r.Run()
		os.Exit(1)
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
