// runcheck audits run directories against their manifests: it rebuilds the
// artifact index from what is on disk and reports any drift. Read-only
// unless "prune-orphans apply" is given.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/snarg/ta-engine/internal/manifest"
)

func main() {
	outDir := flag.String("out", "./runs", "run output directory")
	flag.Parse()

	if len(flag.Args()) > 0 && flag.Arg(0) == "prune-orphans" {
		apply := len(flag.Args()) > 1 && flag.Arg(1) == "apply"
		pruneOrphans(*outDir, apply)
		return
	}

	dirs, err := runDirs(*outDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(dirs) == 0 {
		fmt.Println("no run directories found")
		return
	}

	drifted := 0
	for _, dir := range dirs {
		if !checkRun(dir) {
			drifted++
		}
	}

	fmt.Printf("\n%d run(s) checked, %d with drift\n", len(dirs), drifted)
	if drifted > 0 {
		os.Exit(1)
	}
}

// runDirs lists every directory that should carry a manifest: top-level run
// dirs plus each group dir under groups/.
func runDirs(outDir string) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == "groups" {
			groups, err := os.ReadDir(filepath.Join(outDir, "groups"))
			if err != nil {
				continue
			}
			for _, g := range groups {
				if g.IsDir() {
					dirs = append(dirs, filepath.Join(outDir, "groups", g.Name()))
				}
			}
			continue
		}
		dirs = append(dirs, filepath.Join(outDir, e.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// checkRun compares the stored manifest against a fresh scan. Reports true
// when the run directory matches its manifest.
func checkRun(dir string) bool {
	stored, err := manifest.Read(dir)
	if err != nil {
		fmt.Printf("✗ %s: no readable manifest (%v)\n", dir, err)
		return false
	}

	rebuilt, err := manifest.Build(dir, stored.RunID,
		stored.RunMetadata.TranscriptKey,
		stored.RunMetadata.ModulesEnabled,
		stored.RunMetadata.ConfigHash)
	if err != nil {
		fmt.Printf("✗ %s: rebuild failed (%v)\n", dir, err)
		return false
	}

	// The metadata timestamp records build time and legitimately differs;
	// the artifact list must not.
	a, _ := json.Marshal(stored.Artifacts)
	b, _ := json.Marshal(rebuilt.Artifacts)
	if string(a) == string(b) {
		fmt.Printf("✓ %s: %d artifact(s)\n", dir, len(stored.Artifacts))
		return true
	}

	fmt.Printf("✗ %s: artifact drift\n", dir)
	reportDrift(stored.Artifacts, rebuilt.Artifacts)
	return false
}

func reportDrift(stored, rebuilt []manifest.Entry) {
	byPath := func(es []manifest.Entry) map[string]manifest.Entry {
		m := make(map[string]manifest.Entry, len(es))
		for _, e := range es {
			m[e.RelPath] = e
		}
		return m
	}
	sm, rm := byPath(stored), byPath(rebuilt)

	for path, se := range sm {
		re, ok := rm[path]
		if !ok {
			fmt.Printf("    missing: %s\n", path)
			continue
		}
		if se.Bytes != re.Bytes {
			fmt.Printf("    changed: %s (%d -> %d bytes)\n", path, se.Bytes, re.Bytes)
		} else if se.ID != re.ID || se.Kind != re.Kind {
			fmt.Printf("    changed: %s\n", path)
		}
	}
	for path := range rm {
		if _, ok := sm[path]; !ok {
			fmt.Printf("    untracked: %s\n", path)
		}
	}
}

// pruneOrphans removes run directories with no manifest at all, which a
// crash mid-run can leave behind. Dry run unless "apply" is given.
func pruneOrphans(outDir string, apply bool) {
	dirs, err := runDirs(outDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	orphans := 0
	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); err == nil {
			continue
		}
		orphans++
		if apply {
			if err := os.RemoveAll(dir); err != nil {
				fmt.Printf("failed to remove %s: %v\n", dir, err)
				continue
			}
			fmt.Printf("removed %s\n", dir)
		} else {
			fmt.Printf("would remove %s\n", dir)
		}
	}

	if orphans == 0 {
		fmt.Println("no orphaned run directories")
	} else if !apply {
		fmt.Printf("%d orphan(s); rerun with \"prune-orphans apply\" to remove\n", orphans)
	}
}
