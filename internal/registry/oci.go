/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// MediaTypeContract is the OCI media type used for a contract file's
// markdown content layer (see SPEC_FULL.md, "OCI-sourced agent bundles").
const MediaTypeContract = "application/vnd.governor.contract.v1+markdown"

// OCIRef identifies an agent-contract artifact in an OCI registry.
// Adapted from the teacher's internal/skills OCIRef (registry.go), which
// the retrieval pack only carries in partial form — this reimplements its
// Pull path directly against oras-go/v2 rather than assuming helper types
// that weren't retrieved.
type OCIRef struct {
	Registry string
	Path     string
	Tag      string
	Digest   string
}

func (r *OCIRef) String() string {
	if r.Digest != "" {
		return fmt.Sprintf("%s/%s@%s", r.Registry, r.Path, r.Digest)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Path, r.Tag)
}

// ParseOCIRef parses "registry/repo:tag" or "registry/repo@sha256:...".
func ParseOCIRef(s string) (*OCIRef, error) {
	ref := &OCIRef{}

	if idx := strings.Index(s, "@"); idx >= 0 {
		ref.Digest = s[idx+1:]
		s = s[:idx]
	} else if idx := strings.LastIndex(s, ":"); idx >= 0 && !strings.Contains(s[idx:], "/") {
		ref.Tag = s[idx+1:]
		s = s[:idx]
	}

	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid OCI reference %q: expected registry/path", s)
	}
	ref.Registry, ref.Path = parts[0], parts[1]

	if ref.Tag == "" && ref.Digest == "" {
		ref.Tag = "latest"
	}
	return ref, nil
}

// ociPuller pulls contract content from an OCI registry. It is the
// registry-load-time collaborator for contracts whose frontmatter
// declares a "source: oci://..." reference instead of an inline body.
type ociPuller struct {
	PlainHTTP bool
	Username  string
	Password  string
}

func (p *ociPuller) repository(ref *OCIRef) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Path)
	if err != nil {
		return nil, err
	}
	repo.PlainHTTP = p.PlainHTTP
	if p.Username != "" {
		repo.Client = &auth.Client{
			Client: retry.DefaultClient,
			Credential: auth.StaticCredential(ref.Registry, auth.Credential{
				Username: p.Username,
				Password: p.Password,
			}),
		}
	}
	return repo, nil
}

// Pull fetches the single content layer of a contract artifact and
// returns its raw bytes.
func (p *ociPuller) Pull(ctx context.Context, ref *OCIRef) ([]byte, error) {
	repo, err := p.repository(ref)
	if err != nil {
		return nil, fmt.Errorf("connect registry: %w", err)
	}

	dst := memory.New()
	pullRef := ref.Tag
	if ref.Digest != "" {
		pullRef = ref.Digest
	}

	manifestDesc, err := oras.Copy(ctx, repo, pullRef, dst, pullRef, oras.DefaultCopyOptions)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", ref.String(), err)
	}

	manifestRC, err := dst.Fetch(ctx, manifestDesc)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	manifestBytes, err := io.ReadAll(manifestRC)
	_ = manifestRC.Close()
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	for _, layer := range manifest.Layers {
		if layer.MediaType != MediaTypeContract {
			continue
		}
		rc, err := dst.Fetch(ctx, layer)
		if err != nil {
			return nil, fmt.Errorf("fetch content layer: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	return nil, fmt.Errorf("no %s layer found in manifest for %s", MediaTypeContract, ref.String())
}
