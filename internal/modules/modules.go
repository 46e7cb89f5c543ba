// Package modules holds the built-in analysis modules. Each is thin and
// single-purpose; the engine only sees them through the module contract.
package modules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snarg/ta-engine/internal/config"
	"github.com/snarg/ta-engine/internal/registry"
	"github.com/snarg/ta-engine/internal/result"
)

// Builtin returns a registry populated with every built-in module, in the
// canonical registration order. Module settings from cfg are bound into the
// descriptors here; a value a descriptor lists in ConfigFields reaches the
// module it configures.
func Builtin(cfg *config.Config) *registry.Registry {
	r := registry.New()
	r.MustRegister(statsDescriptor())
	r.MustRegister(sentimentDescriptor(cfg))
	r.MustRegister(nerDescriptor(cfg))
	r.MustRegister(entitySentimentDescriptor(cfg))
	r.MustRegister(interactionDescriptor(cfg))
	r.MustRegister(emotionDescriptor(cfg))
	r.MustRegister(topicsDescriptor(cfg))
	return r
}

// writeArtifact serializes v under <run dir>/modules/<module>/<name> and
// returns the manifest-facing artifact record.
func writeArtifact(mc registry.ModuleContext, module, name string, v any) (result.Artifact, error) {
	dir := filepath.Join(mc.TranscriptDir(), "modules", module)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result.Artifact{}, fmt.Errorf("create module dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return result.Artifact{}, fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), append(data, '\n'), 0o644); err != nil {
		return result.Artifact{}, fmt.Errorf("write %s: %w", name, err)
	}
	return result.Artifact{
		Name:    name,
		RelPath: filepath.ToSlash(filepath.Join("modules", module, name)),
		Kind:    "data",
		Scope:   "global",
	}, nil
}

func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Trim(strings.ToLower(f), ".,!?;:\"'()[]")
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
