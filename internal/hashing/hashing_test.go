package hashing

import (
	"strings"
	"testing"
)

func lookupFrom(m map[string]string) FieldLookup {
	return func(path string) (string, bool) {
		v, ok := m[path]
		return v, ok
	}
}

func TestConfigHashIgnoresUnrelatedFields(t *testing.T) {
	fields := []string{"language", "ner.min_token_len"}

	a := ConfigHash(fields, lookupFrom(map[string]string{
		"language": "en", "ner.min_token_len": "2", "topics.seed": "1",
	}))
	b := ConfigHash(fields, lookupFrom(map[string]string{
		"language": "en", "ner.min_token_len": "2", "topics.seed": "99",
	}))
	if a != b {
		t.Error("fields outside the allow-list must not affect the hash")
	}
}

func TestConfigHashSensitiveToDeclaredFields(t *testing.T) {
	fields := []string{"language"}
	a := ConfigHash(fields, lookupFrom(map[string]string{"language": "en"}))
	b := ConfigHash(fields, lookupFrom(map[string]string{"language": "de"}))
	if a == b {
		t.Error("declared field changes must change the hash")
	}
}

func TestConfigHashFieldOrderIrrelevant(t *testing.T) {
	lookup := lookupFrom(map[string]string{"a": "1", "b": "2"})
	if ConfigHash([]string{"a", "b"}, lookup) != ConfigHash([]string{"b", "a"}, lookup) {
		t.Error("declaration order must not affect the hash")
	}
}

func TestConfigHashUnsetVsEmpty(t *testing.T) {
	fields := []string{"language"}
	unset := ConfigHash(fields, lookupFrom(map[string]string{}))
	empty := ConfigHash(fields, lookupFrom(map[string]string{"language": ""}))
	if unset == empty {
		t.Error("an unset field must hash differently from an empty value")
	}
}

func TestModuleSourceHash(t *testing.T) {
	a := ModuleSourceHash("ner", "1.0")
	b := ModuleSourceHash("ner", "1.1")
	c := ModuleSourceHash("sentiment", "1.0")
	if a == b {
		t.Error("version bump must change the source hash")
	}
	if a == c {
		t.Error("different modules must have different source hashes")
	}
}

func TestKeyStringAndDigest(t *testing.T) {
	k := Key{
		ContentHash:        "ch",
		Module:             "stats",
		ModuleSourceHash:   "msh",
		ModuleConfigHash:   "mch",
		PipelineConfigHash: "pch",
	}
	if got := k.String(); got != "ch/stats/msh/mch/pch" {
		t.Errorf("key string = %q", got)
	}
	if len(k.Digest()) != 64 {
		t.Errorf("digest should be a sha256 hex string, got %q", k.Digest())
	}

	k2 := k
	k2.ModuleConfigHash = "other"
	if k.Digest() == k2.Digest() {
		t.Error("any component change must change the digest")
	}
}

func TestPipelineConfigHashOrderIrrelevant(t *testing.T) {
	a := PipelineConfigHash([]string{"language=en", "mode=x"})
	b := PipelineConfigHash([]string{"mode=x", "language=en"})
	if a != b {
		t.Error("pair order must not affect the hash")
	}
	if strings.Contains(a, "/") {
		t.Errorf("hash should be hex, got %q", a)
	}
	if a == PipelineConfigHash([]string{"language=de", "mode=x"}) {
		t.Error("value changes must change the hash")
	}
}
