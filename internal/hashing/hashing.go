// Package hashing composes the cache-key fragments: module source hash,
// module-relevant config subset hash, and pipeline-level config hash.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// FieldLookup resolves one declared config field path to its string value.
// Returning ok=false means the field is unset; unset fields still contribute
// their path (so setting a field later changes the hash).
type FieldLookup func(path string) (string, bool)

// Key identifies one exact, reproducible (module, input, config) combination.
// Computed fresh on every module invocation attempt; never mutated.
type Key struct {
	ContentHash        string
	Module             string
	ModuleSourceHash   string
	ModuleConfigHash   string
	PipelineConfigHash string
}

// String renders the key's canonical form, used as the persisted lookup key.
func (k Key) String() string {
	return strings.Join([]string{
		k.ContentHash, k.Module, k.ModuleSourceHash,
		k.ModuleConfigHash, k.PipelineConfigHash,
	}, "/")
}

// Digest is the fixed-length form of the key.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// ModuleSourceHash fingerprints a module implementation from its name and
// declared source version. Bumping the version invalidates that module's
// cache entries and nothing else.
func ModuleSourceHash(name, sourceVersion string) string {
	sum := sha256.Sum256([]byte("module\x1f" + name + "\x1f" + sourceVersion))
	return hex.EncodeToString(sum[:])
}

// ConfigHash hashes only the allow-listed config fields a module declared as
// cache-affecting. Unrelated configuration changes must not invalidate the
// cache, so nothing outside the allow-list is read. Field order in the
// declaration does not matter.
func ConfigHash(fields []string, lookup FieldLookup) string {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	h := sha256.New()
	for _, path := range sorted {
		value, ok := lookup(path)
		fmt.Fprintf(h, "%s\x1f%t\x1f%s\x1e", path, ok, value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PipelineConfigHash hashes the pipeline-level settings that affect every
// module's output, passed as ordered "key=value" pairs.
func PipelineConfigHash(pairs []string) string {
	sorted := make([]string, len(pairs))
	copy(sorted, pairs)
	sort.Strings(sorted)
	h := sha256.New()
	for _, p := range sorted {
		fmt.Fprintf(h, "%s\x1e", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
