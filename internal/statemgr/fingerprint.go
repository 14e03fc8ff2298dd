/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package statemgr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// DefaultIgnoreList is the default set of directory names skipped by
// Fingerprint. spec.md §9 notes the source's ignore list is not
// exhaustive and implementations should document and allow configuring
// theirs without changing the algorithm; WithIgnoreList does that.
var DefaultIgnoreList = []string{
	"var",  // the kernel's own variable-data root
	".git",
	"node_modules",
	"vendor",
	".venv",
	"venv",
	"__pycache__",
	"dist",
	"build",
	".cache",
}

// RepositoryID derives a short, collision-resistant id from a
// repository's normalized absolute path, used only for file layout
// (spec.md §4.7).
func RepositoryID(repoRoot string) (string, error) {
	abs, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", repoRoot, err)
	}
	sum := blake2b.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:16], nil
}

// Fingerprint computes a deterministic digest over the sorted file walk
// of root, skipping any path component in ignore. For each file it
// contributes (relative_path, size, content_hash) to a streaming
// digest, then returns the final digest hex-encoded (spec.md §4.7).
func Fingerprint(root string, ignore []string) (string, error) {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	var relPaths []string
	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldSkipFile(rel, skip) {
			return nil
		}
		relPaths = append(relPaths, rel)
		return nil
	}); err != nil {
		return "", fmt.Errorf("walk repository root %q: %w", root, err)
	}

	sort.Strings(relPaths)

	digest, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("init fingerprint digest: %w", err)
	}

	for _, rel := range relPaths {
		full := filepath.Join(root, rel)
		info, err := os.Stat(full)
		if err != nil {
			return "", fmt.Errorf("stat %q: %w", full, err)
		}

		contentHash, err := hashFileContents(full)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(digest, "%s\x00%d\x00%s\x00", rel, info.Size(), contentHash)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

func shouldSkipFile(rel string, skip map[string]bool) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if skip[part] {
			return true
		}
	}
	return false
}

func hashFileContents(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
