/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package registry catalogs parsed agent contracts, loaded from a
// discovery directory (spec.md §4.2). A Registry is safe for concurrent
// reads once Load or Refresh has returned without error. The package
// keeps no process-wide instance; callers construct a Registry with New
// and share it themselves.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/marcus-qen/governor/internal/contract"
)

// Registry is the in-memory catalog of parsed AgentDefinitions.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*contract.AgentDefinition
	dir    string
	log    logr.Logger

	oci   *ociPuller
	cache *contractCache
}

// New creates an empty registry. Call Load before using it.
func New(log logr.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*contract.AgentDefinition),
		log:    log,
		oci:    &ociPuller{},
		cache:  newContractCache(0),
	}
}

// WithOCIAuth configures registry credentials for OCI-sourced contracts,
// read the same way the teacher's skill.Loader reads
// LEGATOR_REGISTRY_USERNAME/PASSWORD from the environment.
func (r *Registry) WithOCIAuth(username, password string) *Registry {
	r.oci.Username = username
	r.oci.Password = password
	return r
}

// Load parses every contract file in dir and replaces the registry's
// catalog atomically: either every file parses and the whole catalog is
// replaced, or Load returns an error and the previous catalog (if any) is
// left untouched.
func (r *Registry) Load(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read discovery directory %q: %w", dir, err)
	}

	agents := make(map[string]*contract.AgentDefinition, len(entries))
	bySource := make(map[string]string, len(entries))

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read contract file %q: %w", path, err)
		}

		def, err := contract.Parse(data, path)
		if err != nil {
			return err
		}

		if def.Source != "file" && strings.HasPrefix(def.Source, "oci://") {
			body, err := r.resolveOCIBody(ctx, def.Source)
			if err != nil {
				return fmt.Errorf("resolve OCI source for contract %q (%s): %w", def.Name, path, err)
			}
			def.Prompt = body
		}

		if existing, dup := bySource[def.Name]; dup {
			return fmt.Errorf("duplicate agent name %q: declared in both %q and %q", def.Name, existing, path)
		}
		bySource[def.Name] = path
		agents[def.Name] = def
	}

	r.mu.Lock()
	r.agents = agents
	r.dir = dir
	r.mu.Unlock()

	r.log.Info("agent registry loaded", "dir", dir, "agents", len(agents))
	return nil
}

// Refresh reloads the catalog from the same directory passed to Load.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()

	if dir == "" {
		return fmt.Errorf("registry has not been loaded yet")
	}
	return r.Load(ctx, dir)
}

func (r *Registry) resolveOCIBody(ctx context.Context, source string) (string, error) {
	if body, ok := r.cache.Get(source); ok {
		return body, nil
	}

	refStr := strings.TrimPrefix(source, "oci://")
	ref, err := ParseOCIRef(refStr)
	if err != nil {
		return "", err
	}

	content, err := r.oci.Pull(ctx, ref)
	if err != nil {
		return "", err
	}

	body := strings.TrimSpace(string(content))
	r.cache.Put(source, body)
	return body, nil
}

// Get returns the named agent, or nil if it is not registered.
func (r *Registry) Get(name string) *contract.AgentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[name]
}

// List returns every registered agent, sorted by name for deterministic
// iteration.
func (r *Registry) List() []*contract.AgentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*contract.AgentDefinition, 0, len(r.agents))
	for _, def := range r.agents {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByClass returns every registered agent of the given permission
// class, sorted by name.
func (r *Registry) ListByClass(class contract.Class) []*contract.AgentDefinition {
	var out []*contract.AgentDefinition
	for _, def := range r.List() {
		if def.Class == class {
			out = append(out, def)
		}
	}
	return out
}

// Names returns every registered agent name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
